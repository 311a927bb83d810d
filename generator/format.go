package generator

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// 平台不接受 Markdown：列表符号和标题井号会原样显示在笔记里。
// 这里把模型输出的 Markdown 拍平成空行分隔的纯文本段落。

// FlattenMarkdown parses md and returns plain paragraphs separated by
// blank lines. Headings and list items each become their own paragraph;
// code fences are dropped.
func FlattenMarkdown(md string) string {
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			blocks = append(blocks, s)
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Heading:
			add(string(n.Text(src)))
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			add(string(n.Text(src)))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			add(string(n.Text(src)))
			return ast.WalkSkipChildren, nil
		case *ast.Blockquote:
			add(string(n.Text(src)))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(blocks, "\n\n")
}
