package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auto_xhs_publisher/logger"
)

// DefaultBudget is the character budget handed to composition; retrieved
// material beyond it gets compressed first.
const DefaultBudget = 5000

// maxCompressDepth bounds the recursive compression passes.
const maxCompressDepth = 3

// ErrCompressDepth reports that the material would not fit the budget
// within the recursion bound. Terminal for the current run.
var ErrCompressDepth = errors.New("compression recursion depth exceeded")

// Summarizer compresses over-budget retrieved text through the
// language-model collaborator, chunk by chunk, preserving order.
type Summarizer struct {
	llm LLMClient
	log *logger.Logger
}

func NewSummarizer(llm LLMClient, log *logger.Logger) (*Summarizer, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if log == nil {
		log = logger.New("info")
	}
	return &Summarizer{llm: llm, log: log}, nil
}

// MaybeCompress returns content unchanged when it fits the budget,
// otherwise compresses it to at most budget characters.
func (s *Summarizer) MaybeCompress(ctx context.Context, content string, budget int) (string, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if len([]rune(content)) <= budget {
		return content, nil
	}
	return s.compress(ctx, content, budget, 1)
}

func (s *Summarizer) compress(ctx context.Context, content string, budget, depth int) (string, error) {
	if depth > maxCompressDepth {
		return "", fmt.Errorf("%w (depth %d, budget %d)", ErrCompressDepth, depth, budget)
	}

	runes := []rune(content)
	s.log.Info("compressing over-budget material",
		"length", len(runes), "budget", budget, "depth", depth)

	chunks := splitChunks(runes, budget*2)
	// 预留分隔符空间，保证拼接结果仍在预算内。
	perChunk := (budget - (len(chunks) - 1)) / len(chunks)
	if perChunk < 1 {
		perChunk = 1
	}

	var sb strings.Builder
	for i, chunk := range chunks {
		summary, err := s.summarizeChunk(ctx, chunk, perChunk)
		if err != nil {
			// 降级处理：总结失败时直接截断该块，保住本轮任务。
			s.log.Error("chunk summarization failed, truncating", "chunk", i, "error", err)
			summary = hardTruncate(chunk, perChunk)
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(summary)
	}

	result := sb.String()
	if len([]rune(result)) > budget {
		return s.compress(ctx, result, budget, depth+1)
	}
	return result, nil
}

func (s *Summarizer) summarizeChunk(ctx context.Context, chunk string, limit int) (string, error) {
	raw, err := s.llm.Complete(ctx, BuildChunkSummaryPrompt(chunk, limit))
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", errors.New("empty summary")
	}
	if len([]rune(summary)) > limit {
		summary = hardTruncate(summary, limit)
	}
	return summary, nil
}

// splitChunks cuts runes into ordered pieces of at most size runes.
func splitChunks(runes []rune, size int) []string {
	if size < 1 {
		size = 1
	}
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func hardTruncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
