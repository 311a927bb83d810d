package generator

import (
	"strings"
	"testing"
)

func TestFlattenMarkdown(t *testing.T) {
	md := "# 大标题\n\n第一段正文。\n\n- 要点一\n- 要点二\n\n1. 第一步\n2. 第二步\n\n```\ncode here\n```\n\n> 引用一句话\n"

	got := FlattenMarkdown(md)

	for _, marker := range []string{"#", "- ", "1. ", "```", "> "} {
		if strings.Contains(got, marker) {
			t.Errorf("flattened text still contains markdown marker %q:\n%s", marker, got)
		}
	}
	for _, want := range []string{"大标题", "第一段正文。", "要点一", "要点二", "第一步", "引用一句话"} {
		if !strings.Contains(got, want) {
			t.Errorf("flattened text lost %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "code here") {
		t.Errorf("code fence content should be dropped:\n%s", got)
	}
}

func TestFlattenMarkdown_PlainTextUnchangedInMeaning(t *testing.T) {
	plain := "这是一段普通文本。\n\n第二段。"
	got := FlattenMarkdown(plain)
	if !strings.Contains(got, "这是一段普通文本。") || !strings.Contains(got, "第二段。") {
		t.Errorf("plain paragraphs lost: %q", got)
	}
}

func TestFlattenMarkdown_InlineEmphasisStripped(t *testing.T) {
	got := FlattenMarkdown("**重点**内容和 *斜体* 词。")
	if strings.Contains(got, "*") {
		t.Errorf("emphasis markers remain: %q", got)
	}
	if !strings.Contains(got, "重点") {
		t.Errorf("emphasis text lost: %q", got)
	}
}
