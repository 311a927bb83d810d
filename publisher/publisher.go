package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auto_xhs_publisher/generator"
	"auto_xhs_publisher/logger"
)

// Typed collaborator failures.
var (
	// ErrSessionNotReady means the automation service is still starting
	// or logging in. Retryable.
	ErrSessionNotReady = errors.New("automation session not ready")
	// ErrAuthExpired means the platform login lapsed and a human must
	// re-authenticate. Terminal for the run and for every run after it
	// until resolved.
	ErrAuthExpired = errors.New("authentication expired, re-login required")
	// ErrPayloadTooLarge means the platform rejected the note for size.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// 正文超限时的收缩参数，对应平台 2000 字上限。
const (
	bodyRuneCap      = 2000
	bodyTruncateAt   = 1995
	bodyNewlineFloor = 1800
	shrinkKeepTags   = 3
)

// ToolCaller is the slice of the automation client the adapter needs.
type ToolCaller interface {
	EnsureInitialized(ctx context.Context) error
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Result is the publish acknowledgment.
type Result struct {
	Shrunk bool
	Detail string
}

// Publisher adapts a finished draft to the automation service.
type Publisher struct {
	caller ToolCaller
	log    *logger.Logger
}

func New(caller ToolCaller, log *logger.Logger) (*Publisher, error) {
	if caller == nil {
		return nil, errors.New("tool caller is required")
	}
	if log == nil {
		log = logger.New("info")
	}
	return &Publisher{caller: caller, log: log}, nil
}

// CheckLogin asks the collaborator whether the platform session is live.
func (p *Publisher) CheckLogin(ctx context.Context) (bool, error) {
	out, err := p.caller.CallTool(ctx, "check_login_status", map[string]any{})
	if err != nil {
		return false, classify(out, err)
	}
	lower := strings.ToLower(out)
	if strings.Contains(out, "已登录") || strings.Contains(lower, "logged_in") || strings.Contains(lower, "true") {
		return true, nil
	}
	return false, nil
}

// Publish checks the platform session, then submits the draft and media
// set. A size rejection triggers one deterministic shrink pass and a
// single resubmission.
func (p *Publisher) Publish(ctx context.Context, draft generator.Draft, images []string) (*Result, error) {
	ok, err := p.CheckLogin(ctx)
	if err != nil {
		return nil, fmt.Errorf("login check: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: login check reported logged out", ErrAuthExpired)
	}

	out, err := p.submit(ctx, draft, images)
	if err == nil {
		return &Result{Detail: out}, nil
	}

	if !errors.Is(err, ErrPayloadTooLarge) {
		return nil, err
	}

	p.log.Warn("payload rejected for size, applying shrink pass")
	shrunk := Shrink(draft)
	out, err = p.submit(ctx, shrunk, images)
	if err != nil {
		return nil, fmt.Errorf("resubmission after shrink: %w", err)
	}
	return &Result{Shrunk: true, Detail: out}, nil
}

func (p *Publisher) submit(ctx context.Context, draft generator.Draft, images []string) (string, error) {
	args := map[string]any{
		"title":   draft.Title,
		"content": draft.Body,
		"images":  images,
		"tags":    draft.Tags,
	}

	p.log.Info("submitting note", "title", draft.Title, "images", len(images), "tags", len(draft.Tags))
	out, err := p.caller.CallTool(ctx, "publish_content", args)
	if err != nil {
		return "", classify(out, err)
	}

	if verdict := classify(out, nil); verdict != nil {
		return "", verdict
	}

	lower := strings.ToLower(out)
	if strings.Contains(lower, "success") || strings.Contains(out, "成功") || strings.Contains(lower, "published") {
		return out, nil
	}
	// 没有明确成功标记就当失败处理，交给上层重试。
	return "", fmt.Errorf("publish not acknowledged: %s", snippet(out))
}

// classify maps collaborator responses onto the typed failures.
func classify(out string, err error) error {
	text := out
	if err != nil {
		text += " " + err.Error()
	}
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "auth") && strings.Contains(lower, "expired"),
		strings.Contains(text, "登录已过期"), strings.Contains(text, "未登录"),
		strings.Contains(lower, "login required"):
		return fmt.Errorf("%w: %s", ErrAuthExpired, snippet(text))
	case strings.Contains(lower, "too large"), strings.Contains(lower, "payload size"),
		strings.Contains(text, "超过长度"), strings.Contains(text, "内容过长"):
		return fmt.Errorf("%w: %s", ErrPayloadTooLarge, snippet(text))
	case strings.Contains(lower, "session not ready"), strings.Contains(lower, "not initialized"),
		strings.Contains(lower, "starting up"), strings.Contains(text, "正在启动"):
		return fmt.Errorf("%w: %s", ErrSessionNotReady, snippet(text))
	}

	return err
}

// Shrink applies the deterministic size reduction: drop the
// lowest-relevance tags first, then truncate the body to a safe bound at
// a paragraph break.
func Shrink(draft generator.Draft) generator.Draft {
	if len(draft.Tags) > shrinkKeepTags {
		draft.Tags = draft.Tags[:shrinkKeepTags]
	}

	runes := []rune(draft.Body)
	if len(runes) > bodyRuneCap {
		cut := bodyTruncateAt
		// 在安全下限之上找最近的换行，保持段落完整。
		for i := bodyTruncateAt - 1; i > bodyNewlineFloor; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		draft.Body = string(runes[:cut])
	}
	return draft
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return s
}
