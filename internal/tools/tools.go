package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "ChainChat/internal/errors"
	"ChainChat/pkg/logger"
)

// InvokeFunc 执行一次工具调用，入参为模型给出的 JSON 参数。
type InvokeFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Tool 描述一个可被大模型调用的钱包能力。
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
	Invoke      InvokeFunc
}

// Recorder 在工具完成调用后收到一份调用记录，用于审计。
type Recorder interface {
	Record(ctx context.Context, inv Invocation)
}

// Invocation 是一次工具调用的审计快照。
type Invocation struct {
	Tool     string
	Args     json.RawMessage
	OK       bool
	Error    string
	Duration time.Duration
}

// Set 是按名称索引的工具表，构建完成后不再变更。
type Set struct {
	tools    map[string]Tool
	order    []string
	recorder Recorder
}

// Option 定义 Set 的可选配置。
type Option func(*Set)

// WithRecorder 在每次调用完成后向 recorder 投递调用记录。
func WithRecorder(rec Recorder) Option {
	return func(s *Set) {
		s.recorder = rec
	}
}

// NewSet 构建工具表，名称必须唯一且非空。
func NewSet(list []Tool, opts ...Option) (*Set, error) {
	set := &Set{tools: make(map[string]Tool, len(list))}
	for _, opt := range opts {
		if opt != nil {
			opt(set)
		}
	}
	for _, tool := range list {
		name := strings.TrimSpace(tool.Name)
		if name == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "工具名称不能为空")
		}
		if tool.Invoke == nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("工具 %s 缺少执行函数", name))
		}
		if _, exists := set.tools[name]; exists {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("工具 %s 重复注册", name))
		}
		set.tools[name] = tool
		set.order = append(set.order, name)
	}
	return set, nil
}

// Get 按名称查找工具。
func (s *Set) Get(name string) (Tool, bool) {
	if s == nil {
		return Tool{}, false
	}
	tool, ok := s.tools[name]
	return tool, ok
}

// Names 按注册顺序返回所有工具名称。
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// List 按注册顺序返回所有工具。
func (s *Set) List() []Tool {
	if s == nil {
		return nil
	}
	list := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		list = append(list, s.tools[name])
	}
	return list
}

// Len 返回工具数量。
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// envelope 是回传给大模型的统一工具输出结构。
type envelope struct {
	OK   bool   `json:"ok"`
	Tool string `json:"tool"`
	Data any    `json:"data,omitempty"`
	Err  string `json:"error,omitempty"`
}

// Dispatch 执行指定工具并把结果封装为 JSON 字符串。工具自身的失败不会
// 作为 error 返回，而是写入封装结构，交由模型继续推理。
func (s *Set) Dispatch(ctx context.Context, name string, args json.RawMessage) (string, error) {
	tool, ok := s.Get(name)
	if !ok {
		return marshalEnvelope(name, nil, fmt.Errorf("未知的工具: %s", name))
	}

	started := time.Now()
	data, err := tool.Invoke(ctx, args)
	elapsed := time.Since(started)

	if s.recorder != nil {
		inv := Invocation{Tool: name, Args: args, OK: err == nil, Duration: elapsed}
		if err != nil {
			inv.Error = err.Error()
		}
		s.recorder.Record(ctx, inv)
	}

	if err != nil {
		logger.Named("tools").Warn("工具调用失败",
			slog.String("tool", name),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
	} else {
		logger.Named("tools").Debug("工具调用完成",
			slog.String("tool", name),
			slog.Duration("elapsed", elapsed),
		)
	}
	return marshalEnvelope(name, data, err)
}

func marshalEnvelope(name string, data any, err error) (string, error) {
	env := envelope{OK: err == nil, Tool: name, Data: data}
	if err != nil {
		env.Err = err.Error()
	}
	encoded, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		return "", xerrors.Wrap(xerrors.CodeToolFailure, marshalErr, "序列化工具输出失败")
	}
	return string(encoded), nil
}
