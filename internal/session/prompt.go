package session

import "strings"

// defaultPersona 是未配置人设时使用的提示词前缀。
const defaultPersona = "" +
	"You are an on-chain assistant managing the user's wallet. " +
	"You can transfer tokens, swap tokens, and look up prices with the tools provided. " +
	"Confirm amounts and addresses carefully before acting, and answer concisely."

// HistoryPolicy 决定组装 prompt 时回放多少历史记录。完整回放是观察到的
// 默认行为；prompt 长度会随会话无限增长，长会话应配置窗口策略。
type HistoryPolicy interface {
	Window(entries []Entry) []Entry
}

// FullHistory 回放全部历史。
type FullHistory struct{}

// Window 原样返回全部记录。
func (FullHistory) Window(entries []Entry) []Entry {
	return entries
}

// LastTurns 仅回放最近 N 轮（一轮为一对 user/assistant 记录）。
type LastTurns struct {
	Turns int
}

// Window 返回最近 N 轮的记录。
func (p LastTurns) Window(entries []Entry) []Entry {
	if p.Turns <= 0 {
		return entries
	}
	keep := p.Turns * 2
	if len(entries) <= keep {
		return entries
	}
	return entries[len(entries)-keep:]
}

// composePrompt 将人设前缀、窗口内的历史记录与当前输入拼成一个 prompt。
// 历史按插入顺序渲染，每条一行，带角色前缀。
func composePrompt(persona string, history []Entry, input string) string {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}

	var builder strings.Builder
	builder.WriteString(persona)
	builder.WriteString("\n\n")
	for _, entry := range history {
		builder.WriteString(string(entry.Role))
		builder.WriteString(": ")
		builder.WriteString(entry.Text)
		builder.WriteString("\n")
	}
	builder.WriteString(string(RoleUser))
	builder.WriteString(": ")
	builder.WriteString(input)
	return builder.String()
}
