package publisher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"auto_xhs_publisher/generator"
)

// fakeCaller scripts tool responses and records every call's args.
type fakeCaller struct {
	outputs []string
	err     error
	calls   []map[string]any
	tools   []string
}

func (f *fakeCaller) EnsureInitialized(context.Context) error { return nil }

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.tools = append(f.tools, name)
	f.calls = append(f.calls, args)
	if f.err != nil {
		return "", f.err
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

// submissions counts publish_content calls, skipping the login check.
func (f *fakeCaller) submissions() int {
	n := 0
	for _, tool := range f.tools {
		if tool == "publish_content" {
			n++
		}
	}
	return n
}

const loginOK = `{"logged_in": true}`

func sampleDraft() generator.Draft {
	return generator.Draft{
		Title: "AI一周热点",
		Body:  "正文内容",
		Tags:  []string{"AI", "热点", "论文", "融资", "机器人"},
	}
}

func TestPublish_ChecksLoginThenSubmits(t *testing.T) {
	caller := &fakeCaller{outputs: []string{loginOK, "发布成功: note_id=abc123"}}
	p, _ := New(caller, nil)

	res, err := p.Publish(context.Background(), sampleDraft(), []string{"https://img/a.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Shrunk {
		t.Error("Shrunk = true on a clean publish")
	}
	want := []string{"check_login_status", "publish_content"}
	if len(caller.tools) != len(want) || caller.tools[0] != want[0] || caller.tools[1] != want[1] {
		t.Errorf("tools called = %v, want %v", caller.tools, want)
	}
}

func TestPublish_ShrinksOnceOnSizeRejection(t *testing.T) {
	caller := &fakeCaller{outputs: []string{
		loginOK,
		"error: 内容过长，超过长度限制",
		"发布成功",
	}}
	p, _ := New(caller, nil)

	draft := sampleDraft()
	draft.Body = strings.Repeat("长", 2500)

	res, err := p.Publish(context.Background(), draft, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Shrunk {
		t.Error("Shrunk = false after a size rejection")
	}
	if got := caller.submissions(); got != 2 {
		t.Fatalf("submissions = %d, want 2", got)
	}

	resub := caller.calls[len(caller.calls)-1]
	if body, _ := resub["content"].(string); len([]rune(body)) > 2000 {
		t.Errorf("resubmitted body still %d runes", len([]rune(body)))
	}
	if tags, _ := resub["tags"].([]string); len(tags) != 3 {
		t.Errorf("resubmitted tags = %v, want 3 kept", tags)
	}
}

func TestPublish_SecondSizeRejectionIsFinal(t *testing.T) {
	caller := &fakeCaller{outputs: []string{loginOK, "内容过长"}}
	p, _ := New(caller, nil)

	_, err := p.Publish(context.Background(), sampleDraft(), nil)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("error = %v, want ErrPayloadTooLarge", err)
	}
	if got := caller.submissions(); got != 2 {
		t.Errorf("submissions = %d, want exactly one shrink retry", got)
	}
}

func TestPublish_LoggedOutSkipsSubmission(t *testing.T) {
	caller := &fakeCaller{outputs: []string{"操作失败：登录已过期，请重新登录"}}
	p, _ := New(caller, nil)

	_, err := p.Publish(context.Background(), sampleDraft(), nil)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("error = %v, want ErrAuthExpired", err)
	}
	if got := caller.submissions(); got != 0 {
		t.Errorf("submissions = %d, an expired session must be caught before submitting", got)
	}
}

func TestPublish_UnacknowledgedIsError(t *testing.T) {
	caller := &fakeCaller{outputs: []string{loginOK, "收到请求"}}
	p, _ := New(caller, nil)

	_, err := p.Publish(context.Background(), sampleDraft(), nil)
	if err == nil {
		t.Fatal("ambiguous response accepted as success")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
		want error
	}{
		{name: "auth english", out: "error: auth token expired", want: ErrAuthExpired},
		{name: "auth chinese", out: "未登录", want: ErrAuthExpired},
		{name: "size english", out: "payload size exceeds limit, too large", want: ErrPayloadTooLarge},
		{name: "size chinese", out: "正文超过长度限制", want: ErrPayloadTooLarge},
		{name: "session warming", out: "service starting up, try later", want: ErrSessionNotReady},
		{name: "plain error passthrough", err: errors.New("connection refused"), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.out, tt.err)
			if tt.want == nil {
				if !errors.Is(got, tt.err) {
					t.Errorf("classify = %v, want passthrough of %v", got, tt.err)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShrink_CutsAtParagraphBreak(t *testing.T) {
	// A newline sits between the floor and the cap; the cut lands on it.
	body := strings.Repeat("前", 1900) + "\n" + strings.Repeat("后", 600)
	got := Shrink(generator.Draft{Title: "t", Body: body, Tags: []string{"a"}})

	runes := []rune(got.Body)
	if len(runes) != 1900 {
		t.Errorf("body cut at %d runes, want 1900 (the paragraph break)", len(runes))
	}
	if strings.ContainsRune(got.Body, '后') {
		t.Error("content after the break survived the cut")
	}
}

func TestShrink_NoBreakFallsBackToHardCut(t *testing.T) {
	got := Shrink(generator.Draft{Body: strings.Repeat("字", 2600)})
	if n := len([]rune(got.Body)); n != 1995 {
		t.Errorf("body cut at %d runes, want hard bound 1995", n)
	}
}

func TestShrink_UnderCapUntouched(t *testing.T) {
	d := generator.Draft{Body: "短正文", Tags: []string{"a", "b"}}
	got := Shrink(d)
	if got.Body != d.Body || len(got.Tags) != 2 {
		t.Errorf("under-cap draft modified: %+v", got)
	}
}

func TestCheckLogin(t *testing.T) {
	caller := &fakeCaller{outputs: []string{`{"logged_in": true}`}}
	p, _ := New(caller, nil)

	ok, err := p.CheckLogin(context.Background())
	if err != nil || !ok {
		t.Errorf("CheckLogin = (%v, %v), want (true, nil)", ok, err)
	}
}
