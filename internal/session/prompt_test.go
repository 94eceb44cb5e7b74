package session

import (
	"strings"
	"testing"
)

func TestComposePromptDefaultPersona(t *testing.T) {
	prompt := composePrompt("", nil, "hello")
	if !strings.HasPrefix(prompt, defaultPersona) {
		t.Fatalf("default persona missing: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "user: hello") {
		t.Fatalf("input missing: %q", prompt)
	}
}

func TestComposePromptRendersHistoryInOrder(t *testing.T) {
	history := []Entry{
		{Role: RoleUser, Text: "one"},
		{Role: RoleAssistant, Text: "two"},
		{Role: RoleUser, Text: "three"},
		{Role: RoleAssistant, Text: "four"},
	}
	prompt := composePrompt("persona", history, "five")

	want := "persona\n\nuser: one\nassistant: two\nuser: three\nassistant: four\nuser: five"
	if prompt != want {
		t.Fatalf("unexpected prompt:\n%q\nwant:\n%q", prompt, want)
	}
}

func TestFullHistoryKeepsEverything(t *testing.T) {
	entries := make([]Entry, 9)
	got := FullHistory{}.Window(entries)
	if len(got) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(got))
	}
}

func TestLastTurnsWindow(t *testing.T) {
	entries := []Entry{
		{Role: RoleUser, Text: "q1"},
		{Role: RoleAssistant, Text: "a1"},
		{Role: RoleUser, Text: "q2"},
		{Role: RoleAssistant, Text: "a2"},
		{Role: RoleUser, Text: "q3"},
		{Role: RoleAssistant, Text: "a3"},
	}

	got := LastTurns{Turns: 2}.Window(entries)
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	if got[0].Text != "q2" || got[3].Text != "a3" {
		t.Fatalf("window kept the wrong entries: %+v", got)
	}

	// 不足 N 轮时全量返回。
	short := LastTurns{Turns: 5}.Window(entries)
	if len(short) != len(entries) {
		t.Fatalf("expected all entries, got %d", len(short))
	}

	// Turns 为零表示不截断。
	all := LastTurns{}.Window(entries)
	if len(all) != len(entries) {
		t.Fatalf("expected all entries, got %d", len(all))
	}
}
