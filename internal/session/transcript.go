package session

import "sync"

// Role 标识一条会话记录的来源。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry 是会话记录中的一条，写入后不再变更。
type Entry struct {
	Role Role
	Text string
}

// Transcript 按提交顺序保存本次会话的全部往来记录，只追加、不修改、
// 不删除，进程退出即丢弃。
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewTranscript 创建空的会话记录。
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append 追加一条记录。
func (t *Transcript) Append(role Role, text string) {
	t.mu.Lock()
	t.entries = append(t.entries, Entry{Role: role, Text: text})
	t.mu.Unlock()
}

// Entries 返回全部记录的副本。
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := make([]Entry, len(t.entries))
	copy(entries, t.entries)
	return entries
}

// Len 返回记录条数。
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
