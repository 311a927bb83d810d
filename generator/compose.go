package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"

	"auto_xhs_publisher/logger"
)

// 平台标题上限为 20 个汉字宽度，英文按半角计，所以用显示宽度而不是字符数。
const (
	TitleWidthCap = 40
	MaxTags       = 5
)

// ErrDraftInvalid reports that the model never produced a structurally
// valid draft within the retry bound. Terminal for the current run.
var ErrDraftInvalid = errors.New("draft failed structural validation")

// Composer invokes the language-model collaborator and enforces the
// platform's length and structure constraints on the result.
type Composer struct {
	llm         LLMClient
	log         *logger.Logger
	maxAttempts int
}

func NewComposer(llm LLMClient, log *logger.Logger, maxAttempts int) (*Composer, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if log == nil {
		log = logger.New("info")
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Composer{llm: llm, log: log, maxAttempts: maxAttempts}, nil
}

// Draft produces a publishable draft for the topic. Structural failures
// are retried with a reformulated prompt; transport errors surface as-is
// so the caller can apply its own retry policy.
func (c *Composer) Draft(ctx context.Context, dctx DraftContext, mode string) (Draft, error) {
	prompt := BuildComposePrompt(dctx, mode)

	var lastReason, lastRaw string
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			prompt = BuildReformulatePrompt(BuildComposePrompt(dctx, mode), lastRaw, lastReason)
			c.log.Warn("reformulating draft prompt", "attempt", attempt, "reason", lastReason)
		}

		raw, err := c.llm.Complete(ctx, prompt)
		if err != nil {
			return Draft{}, fmt.Errorf("compose: %w", err)
		}

		draft, err := parseDraft(raw)
		if err != nil {
			lastReason = err.Error()
			lastRaw = raw
			continue
		}

		return c.finalize(ctx, draft), nil
	}

	return Draft{}, fmt.Errorf("%w after %d attempts: %s", ErrDraftInvalid, c.maxAttempts, lastReason)
}

// finalize applies platform constraints: plain-text body, bounded tag
// set, title within the display-width cap.
func (c *Composer) finalize(ctx context.Context, d Draft) Draft {
	d.Body = FlattenMarkdown(d.Body)
	d.Tags = dedupeTags(d.Tags, MaxTags)
	d.Title = c.fitTitle(ctx, strings.TrimSpace(d.Title))
	return d
}

// fitTitle shortens an over-cap title, first by asking the model, then
// by truncating at a rune boundary.
func (c *Composer) fitTitle(ctx context.Context, title string) string {
	if runewidth.StringWidth(title) <= TitleWidthCap {
		return title
	}

	c.log.Warn("title over cap, shortening", "width", runewidth.StringWidth(title))
	if short, err := c.llm.Complete(ctx, BuildShortenTitlePrompt(title)); err == nil {
		short = strings.TrimSpace(short)
		if short != "" && runewidth.StringWidth(short) <= TitleWidthCap {
			return short
		}
		if short != "" {
			title = short
		}
	}

	return runewidth.Truncate(title, TitleWidthCap, "")
}

type rawDraft struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

var jsonBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// parseDraft extracts the draft JSON from a model response that may wrap
// it in a code fence or surrounding prose.
func parseDraft(raw string) (Draft, error) {
	candidates := []string{strings.TrimSpace(raw)}
	if m := jsonBlockRe.FindStringSubmatch(raw); len(m) == 2 {
		candidates = append(candidates, m[1])
	}
	if m := jsonObjectRe.FindString(raw); m != "" {
		candidates = append(candidates, m)
	}

	var rd rawDraft
	parsed := false
	for _, cand := range candidates {
		if err := json.Unmarshal([]byte(cand), &rd); err == nil {
			parsed = true
			break
		}
	}
	if !parsed {
		return Draft{}, errors.New("response is not valid JSON")
	}

	if strings.TrimSpace(rd.Title) == "" {
		return Draft{}, errors.New("missing title")
	}
	if strings.TrimSpace(rd.Content) == "" {
		return Draft{}, errors.New("missing content")
	}
	if len(dedupeTags(rd.Tags, MaxTags)) == 0 {
		return Draft{}, errors.New("missing tags")
	}

	return Draft{
		Title: strings.TrimSpace(rd.Title),
		Body:  rd.Content,
		Tags:  rd.Tags,
	}, nil
}

func dedupeTags(tags []string, max int) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(t, "#"))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}
