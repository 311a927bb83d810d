package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// scriptedLLM returns queued responses in order.
type scriptedLLM struct {
	responses []string
	err       error
	calls     int
	prompts   []Prompt
}

func (s *scriptedLLM) Complete(_ context.Context, p Prompt) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, p)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("scripted llm exhausted")
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name: "plain json",
			raw:  `{"title": "AI一周热点盘点", "content": "正文", "tags": ["AI", "热点"]}`,
		},
		{
			name: "fenced json",
			raw:  "好的，这是结果：\n```json\n{\"title\": \"t\", \"content\": \"c\", \"tags\": [\"x\"]}\n```",
		},
		{
			name: "embedded object",
			raw:  `前置说明 {"title": "t", "content": "c", "tags": ["x"]} 后置说明`,
		},
		{
			name:    "missing title",
			raw:     `{"content": "c", "tags": ["x"]}`,
			wantErr: "missing title",
		},
		{
			name:    "missing content",
			raw:     `{"title": "t", "tags": ["x"]}`,
			wantErr: "missing content",
		},
		{
			name:    "empty tags",
			raw:     `{"title": "t", "content": "c", "tags": []}`,
			wantErr: "missing tags",
		},
		{
			name:    "not json",
			raw:     "抱歉，我无法完成这个任务。",
			wantErr: "not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := parseDraft(tt.raw)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseDraft() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDraft() unexpected error: %v", err)
			}
			if d.Title == "" || d.Body == "" || len(d.Tags) == 0 {
				t.Errorf("parseDraft() returned incomplete draft: %+v", d)
			}
		})
	}
}

func TestDraft_RetriesReformulation(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"not json at all",
		`{"title": "修订后的标题", "content": "正文内容", "tags": ["AI"]}`,
	}}
	c, err := NewComposer(llm, nil, 3)
	if err != nil {
		t.Fatal(err)
	}

	d, err := c.Draft(context.Background(), DraftContext{Topic: "测试", Domain: "AI"}, "general")
	if err != nil {
		t.Fatalf("Draft returned unexpected error: %v", err)
	}
	if d.Title != "修订后的标题" {
		t.Errorf("Title = %q", d.Title)
	}
	if llm.calls != 2 {
		t.Errorf("llm calls = %d, want 2", llm.calls)
	}

	// The retry prompt replays the failed exchange as history and ends
	// with the correction.
	retry := llm.prompts[1]
	if len(retry.History) != 2 || retry.History[1].Role != "assistant" ||
		!strings.Contains(retry.History[1].Content, "not json at all") {
		t.Errorf("retry prompt history does not carry the failed output: %+v", retry.History)
	}
	if !strings.Contains(retry.User, "无法解析") {
		t.Errorf("retry prompt final message is not the correction: %q", retry.User)
	}
}

func TestDraft_ExhaustedAttemptsIsFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"junk"}}
	c, _ := NewComposer(llm, nil, 3)

	_, err := c.Draft(context.Background(), DraftContext{Topic: "t"}, "general")
	if !errors.Is(err, ErrDraftInvalid) {
		t.Fatalf("error = %v, want ErrDraftInvalid", err)
	}
	if llm.calls != 3 {
		t.Errorf("llm calls = %d, want 3", llm.calls)
	}
}

func TestFitTitle_WithinCapUntouched(t *testing.T) {
	c, _ := NewComposer(&scriptedLLM{}, nil, 1)
	title := "AI一周热点盘点"
	if got := c.fitTitle(context.Background(), title); got != title {
		t.Errorf("fitTitle changed an in-cap title: %q", got)
	}
}

func TestFitTitle_TruncatesAtRuneBoundary(t *testing.T) {
	// Shortening model returns the same over-cap title, forcing the
	// deterministic truncation path.
	long := strings.Repeat("热", 30)
	llm := &scriptedLLM{responses: []string{long}}
	c, _ := NewComposer(llm, nil, 1)

	got := c.fitTitle(context.Background(), long)
	if runewidth.StringWidth(got) > TitleWidthCap {
		t.Errorf("fitTitle width = %d, over cap %d", runewidth.StringWidth(got), TitleWidthCap)
	}
	if !utf8.ValidString(got) {
		t.Error("fitTitle split a multibyte character")
	}
}

func TestFitTitle_UsesModelShortening(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"简短标题"}}
	c, _ := NewComposer(llm, nil, 1)

	got := c.fitTitle(context.Background(), strings.Repeat("超长标题", 20))
	if got != "简短标题" {
		t.Errorf("fitTitle = %q, want model-shortened title", got)
	}
}

func TestDedupeTags(t *testing.T) {
	in := []string{"#AI", "AI", " 热点 ", "", "论文", "机器人", "融资", "多余"}
	got := dedupeTags(in, MaxTags)
	want := []string{"AI", "热点", "论文", "机器人", "融资"}

	if len(got) != len(want) {
		t.Fatalf("dedupeTags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dedupeTags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
