package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ChainChat/internal/llm"
	"ChainChat/internal/tools"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
	defaultMaxRounds = 10
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxToolRounds int
}

// Client 通过 HTTP 调用 OpenAI 提供的大模型能力，并在内部完成模型发起的
// 工具调用往返。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxRounds  int
	httpClient *http.Client
	toolSet    *tools.Set
}

// NewClient 根据配置创建 OpenAI 客户端。toolSet 可以为 nil，表示本次会话
// 不向模型暴露任何工具。
func NewClient(cfg Config, toolSet *tools.Set) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		model:     model,
		maxRounds: maxRounds,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		toolSet: toolSet,
	}, nil
}

// message 对应 Chat Completions 的消息结构。
type message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolDefinition struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Generate 调用 OpenAI 生成最终回复。模型请求工具时在内部执行并把结果
// 回传，最多往返 maxRounds 轮；超过上限视为生成失败。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("生成请求的 prompt 为空")
	}

	messages := []message{{Role: "user", Content: req.Prompt}}
	definitions := c.toolDefinitions()

	for round := 0; round <= c.maxRounds; round++ {
		reply, err := c.complete(ctx, messages, definitions)
		if err != nil {
			return nil, err
		}

		if len(reply.ToolCalls) == 0 {
			text := strings.TrimSpace(reply.Content)
			if text == "" {
				return nil, errors.New("OpenAI 响应内容为空")
			}
			return &llm.Response{Text: text, ToolRounds: round}, nil
		}

		if round == c.maxRounds {
			break
		}

		messages = append(messages, *reply)
		for _, call := range reply.ToolCalls {
			output, err := c.toolSet.Dispatch(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			if err != nil {
				return nil, err
			}
			messages = append(messages, message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}

	return nil, fmt.Errorf("工具调用超过 %d 轮仍未得到最终回复", c.maxRounds)
}

// complete 发送一次补全请求并返回 assistant 消息。
func (c *Client) complete(ctx context.Context, messages []message, definitions []toolDefinition) (*message, error) {
	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0.2,
	}
	if len(definitions) > 0 {
		body["tools"] = definitions
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("OpenAI 响应中没有有效的 choices")
	}

	reply := decoded.Choices[0].Message
	reply.Role = "assistant"
	return &reply, nil
}

func (c *Client) toolDefinitions() []toolDefinition {
	if c.toolSet == nil || c.toolSet.Len() == 0 {
		return nil
	}
	list := c.toolSet.List()
	definitions := make([]toolDefinition, 0, len(list))
	for _, tool := range list {
		definitions = append(definitions, toolDefinition{
			Type: "function",
			Function: functionSpec{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Schema,
			},
		})
	}
	return definitions
}
