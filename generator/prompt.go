package generator

import (
	"fmt"
	"strings"
)

// 各模式的写作风格约束，来自运营侧的"去AI味"要求。
const (
	generalStyle = "1. 绝对禁止使用列表：严禁 1. 2. 3. 或 - 等 Markdown 列表符号，内容融合在段落中。\n" +
		"2. 口语化连接：使用\"其实\"\"不过\"\"没想到\"等自然连接词，不要\"首先/其次/最后\"。\n" +
		"3. 情绪递进：第一段抛出话题或反差，中间讲细节和感受，最后给建议，像发朋友圈一样自然。\n" +
		"4. 标点：多用空格、波浪号和逗号句号，少用感叹号。"

	paperStyle = "1. 禁止八股文：严禁\"摘要-方法-实验-结论\"结构，用\"痛点-高光-解密-看法\"的叙事逻辑。\n" +
		"2. 禁止列表符号，必须是自然段落。\n" +
		"3. 口语化：把论文翻译成人话，假设读者是大一学生，多用比喻少用术语。\n" +
		"4. 对创新点要有态度，不要冷冰冰复述。全篇 emoji 限 3-5 个。"

	zhihuStyle = "1. 开头直接回答问题，不要客套，可以先给结论再展开。\n" +
		"2. 正文可以分点但每点要有实质内容，举例子比讲道理有效。\n" +
		"3. 结尾总结核心观点或承认局限性，不写\"希望有帮助\"。\n" +
		"4. 禁止\"首先我们要明确一个概念\"\"从几个方面分析\"这类套话。\n" +
		"5. 鼓励\"我认为\"\"在我看来\"，用个人经历佐证。"
)

// BuildComposePrompt 生成指定模式的成稿提示词。
func BuildComposePrompt(dctx DraftContext, mode string) Prompt {
	var sb strings.Builder

	switch mode {
	case "paper_analysis":
		sb.WriteString("你是一名资深研究员，擅长把前沿论文讲成大家爱看的笔记。\n")
		sb.WriteString("写作要求：\n")
		sb.WriteString(paperStyle)
		sb.WriteString("\n字数控制在 1000-1500 字。\n")
	case "zhihu":
		sb.WriteString("你是一名行业老兵，以知乎答主的身份写深度回答。\n")
		sb.WriteString("写作要求：\n")
		sb.WriteString(zhihuStyle)
		sb.WriteString("\n字数控制在 1000-2000 字。\n")
	default:
		sb.WriteString("你是一名专业的小红书内容创作者，像懂行的朋友在饭桌上聊天那样写作。\n")
		sb.WriteString("写作要求：\n")
		sb.WriteString(generalStyle)
		sb.WriteString("\n")
	}

	sb.WriteString("输出必须是纯 JSON，不要任何额外说明，格式：\n")
	sb.WriteString(`{"title": "标题（20字内，有信息量不做标题党）", "content": "正文", "tags": ["标签1", "标签2", "标签3", "标签4", "标签5"]}`)

	var ub strings.Builder
	fmt.Fprintf(&ub, "主题：%s（%s领域）\n\n", dctx.Topic, dctx.Domain)
	if dctx.Material != "" {
		ub.WriteString("以下是检索到的素材，请基于事实写作，不要编造：\n")
		ub.WriteString(dctx.Material)
		ub.WriteString("\n\n")
	}
	ub.WriteString("请输出符合上述要求的 JSON。")

	return Prompt{
		System: sb.String(),
		User:   ub.String(),
	}
}

// BuildReformulatePrompt 在结构校验失败后构造重述提示词。
// 原始请求和模型上次的输出进入对话历史，纠错要求作为最后一条用户消息。
func BuildReformulatePrompt(base Prompt, raw string, reason string) Prompt {
	history := append(append([]Message{}, base.History...),
		Message{Role: "user", Content: base.User},
		Message{Role: "assistant", Content: clip(raw, 2000)},
	)
	return Prompt{
		System:  base.System,
		History: history,
		User: fmt.Sprintf(
			"你上一次的输出无法解析：%s\n请严格按要求重新输出纯 JSON（title、content、tags 三个字段都不能为空），不要包含任何 JSON 以外的文字。",
			reason,
		),
	}
}

// BuildShortenTitlePrompt 要求模型把超长标题压缩到上限以内。
func BuildShortenTitlePrompt(title string) Prompt {
	user := fmt.Sprintf(
		"请将以下标题缩短到 18 个汉字以内。\n要求：\n1. 保持原意和吸引力\n2. 只输出缩短后的标题，不要任何解释\n3. 必须保留关键词\n\n原标题：\n%s",
		title,
	)
	return Prompt{
		System: "你是一名标题编辑，只输出结果本身。",
		User:   user,
	}
}

// BuildChunkSummaryPrompt 构造分块总结提示词。
func BuildChunkSummaryPrompt(chunk string, limit int) Prompt {
	user := fmt.Sprintf(
		"请总结以下内容，保留核心信息、关键数据和重要结论。\n总结后的长度控制在 %d 字符以内。\n\n原始内容：\n%s",
		limit, chunk,
	)
	return Prompt{
		System: "你是一名信息压缩助手，只输出总结正文。",
		User:   user,
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
