package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ChainChat/internal/llm"
	"ChainChat/internal/storage/mysql"
)

// scriptedClient 按顺序返回预设回复，并记录收到的 prompt。
type scriptedClient struct {
	prompts []string
	replies []string
	errs    []error
	calls   int
}

func (c *scriptedClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.prompts = append(c.prompts, req.Prompt)
	idx := c.calls
	c.calls++
	if idx < len(c.errs) && c.errs[idx] != nil {
		return nil, c.errs[idx]
	}
	if idx >= len(c.replies) {
		return nil, errors.New("no scripted reply")
	}
	return &llm.Response{Text: c.replies[idx]}, nil
}

func TestNewLoopRequiresClient(t *testing.T) {
	if _, err := NewLoop(nil); err == nil {
		t.Fatalf("expected error when llm client is missing")
	}
}

func TestRunConversation(t *testing.T) {
	client := &scriptedClient{replies: []string{"hi", "2 ETH"}}
	in := strings.NewReader("hello\nhow much do I have?\nexit\n")
	var out bytes.Buffer

	loop, err := NewLoop(client, WithIO(in, &out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := loop.Transcript().Entries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 transcript entries, got %d", len(entries))
	}
	want := []struct {
		role Role
		text string
	}{
		{RoleUser, "hello"},
		{RoleAssistant, "hi"},
		{RoleUser, "how much do I have?"},
		{RoleAssistant, "2 ETH"},
	}
	for i, expect := range want {
		if entries[i].Role != expect.role || entries[i].Text != expect.text {
			t.Fatalf("entry %d mismatch: %+v", i, entries[i])
		}
	}

	if !strings.Contains(out.String(), "Agent> hi\n\n") {
		t.Fatalf("assistant reply missing from output: %q", out.String())
	}
	if !strings.Contains(out.String(), "You> ") {
		t.Fatalf("input label missing from output: %q", out.String())
	}
}

func TestRunExitCaseInsensitive(t *testing.T) {
	client := &scriptedClient{}
	in := strings.NewReader("EXIT\n")
	var out bytes.Buffer

	loop, err := NewLoop(client, WithIO(in, &out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("llm should not be called on exit, got %d calls", client.calls)
	}
	if loop.Transcript().Len() != 0 {
		t.Fatalf("exit sentinel must not be recorded")
	}
}

func TestRunEOFEndsCleanly(t *testing.T) {
	client := &scriptedClient{}
	loop, err := NewLoop(client, WithIO(strings.NewReader(""), &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("expected clean exit on EOF, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("llm should not be called, got %d calls", client.calls)
	}
}

func TestRunPromptCarriesHistory(t *testing.T) {
	client := &scriptedClient{replies: []string{"first reply", "second reply"}}
	in := strings.NewReader("first question\nsecond question\nexit\n")

	loop, err := NewLoop(client, WithIO(in, &bytes.Buffer{}), WithPersona("测试助手"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(client.prompts))
	}

	first := client.prompts[0]
	if !strings.HasPrefix(first, "测试助手\n\n") {
		t.Fatalf("persona prefix missing: %q", first)
	}
	if !strings.HasSuffix(first, "user: first question") {
		t.Fatalf("current input missing: %q", first)
	}
	if strings.Contains(first, "first reply") {
		t.Fatalf("first prompt must not contain future replies: %q", first)
	}

	second := client.prompts[1]
	for _, fragment := range []string{"user: first question\n", "assistant: first reply\n", "user: second question"} {
		if !strings.Contains(second, fragment) {
			t.Fatalf("second prompt missing %q: %q", fragment, second)
		}
	}
}

func TestRunRecoversFromGenerateFailure(t *testing.T) {
	client := &scriptedClient{
		errs:    []error{errors.New("模型超时"), nil},
		replies: []string{"", "recovered"},
	}
	in := strings.NewReader("broken turn\ngood turn\nexit\n")
	var out bytes.Buffer

	loop, err := NewLoop(client, WithIO(in, &out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out.String(), "error: ") {
		t.Fatalf("failure message missing from output: %q", out.String())
	}

	entries := loop.Transcript().Entries()
	// 失败的一轮只保留用户输入，不产生 assistant 记录。
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Role != RoleUser || entries[0].Text != "broken turn" {
		t.Fatalf("user input not recorded before failure: %+v", entries[0])
	}
	if entries[1].Role != RoleUser || entries[2].Text != "recovered" {
		t.Fatalf("loop did not continue after failure: %+v", entries)
	}
}

func TestRunArchivesEntries(t *testing.T) {
	dir := t.TempDir()
	repo, err := mysql.NewMemoryTranscriptRepository(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client := &scriptedClient{replies: []string{"archived reply"}}
	in := strings.NewReader("archive me\nexit\n")

	loop, err := NewLoop(client, WithIO(in, &bytes.Buffer{}), WithArchive(repo), WithID("session-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := repo.ListSession(context.Background(), "session-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 archived records, got %d", len(records))
	}
	if records[0].Role != "user" || records[0].Seq != 1 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Role != "assistant" || records[1].Text != "archived reply" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestRunHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{replies: []string{"never"}}
	loop, err := NewLoop(client, WithIO(strings.NewReader("hello\n"), &bytes.Buffer{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("expected clean exit on cancellation, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("llm should not be called after cancellation")
	}
}
