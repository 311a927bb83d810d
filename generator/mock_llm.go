package generator

import (
	"context"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// 返回固定结构的 JSON 草稿。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString(`  "title": "自动生成示例标题",` + "\n")
	sb.WriteString(`  "content": "这里是一段自动生成的正文，概述全文要点。",` + "\n")
	sb.WriteString(`  "tags": ["示例", "自动化"]` + "\n")
	sb.WriteString("}\n")
	return sb.String(), nil
}
