package session

import (
	"sync"
	"testing"
)

func TestTranscriptAppendPreservesOrder(t *testing.T) {
	tr := NewTranscript()
	tr.Append(RoleUser, "hello")
	tr.Append(RoleAssistant, "hi")

	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != RoleUser || entries[1].Role != RoleAssistant {
		t.Fatalf("entries out of order: %+v", entries)
	}

	// Entries 返回副本，修改副本不影响原记录。
	entries[0].Text = "mutated"
	if tr.Entries()[0].Text != "hello" {
		t.Fatalf("transcript must not be mutable through Entries")
	}
}

func TestTranscriptConcurrentAppend(t *testing.T) {
	tr := NewTranscript()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append(RoleUser, "x")
		}()
	}
	wg.Wait()
	if tr.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", tr.Len())
	}
}
