package llm

import "context"

// Request 描述一次完整的生成请求。Prompt 由会话层组装，已经包含人设前缀
// 与历史对话的渲染结果。
type Request struct {
	Prompt string
}

// Response 是一次生成的最终结果。ToolRounds 记录本次生成期间实际发生的
// 工具调用轮数，便于日志与审计。
type Response struct {
	Text       string
	ToolRounds int
}

// Client 定义了调用大模型的统一接口。实现方负责在内部完成全部工具调用
// 往返：对调用方而言 Generate 是一次不可分割的操作。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
