package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "ChainChat/internal/errors"
	"ChainChat/internal/llm"
	"ChainChat/internal/storage/mysql"
	"ChainChat/pkg/logger"
)

const (
	// exitSentinel 结束会话，匹配时不区分大小写。
	exitSentinel = "exit"

	userLabel      = "You> "
	assistantLabel = "Agent> "
)

// Loop 实现会话主循环：读取一行输入、记录、组装 prompt、生成、展示，
// 周而复始，直到用户输入退出指令或输入流关闭。
type Loop struct {
	id         string
	llmClient  llm.Client
	transcript *Transcript
	policy     HistoryPolicy
	persona    string
	archive    mysql.TranscriptRepository
	in         io.Reader
	out        io.Writer
	seq        int
}

// Option 定义可选的 Loop 配置。
type Option func(*Loop)

// WithID 指定会话标识，未指定时随机生成。
func WithID(id string) Option {
	return func(l *Loop) {
		if strings.TrimSpace(id) != "" {
			l.id = id
		}
	}
}

// WithPersona 设置人设前缀。
func WithPersona(persona string) Option {
	return func(l *Loop) {
		l.persona = persona
	}
}

// WithHistoryPolicy 设置历史窗口策略。
func WithHistoryPolicy(policy HistoryPolicy) Option {
	return func(l *Loop) {
		if policy != nil {
			l.policy = policy
		}
	}
}

// WithArchive 启用会话归档，归档失败不会中断会话。
func WithArchive(repo mysql.TranscriptRepository) Option {
	return func(l *Loop) {
		l.archive = repo
	}
}

// WithIO 替换输入输出流，主要用于测试。
func WithIO(in io.Reader, out io.Writer) Option {
	return func(l *Loop) {
		l.in = in
		l.out = out
	}
}

// NewLoop 创建会话循环。
func NewLoop(client llm.Client, opts ...Option) (*Loop, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	loop := &Loop{
		id:         uuid.NewString(),
		llmClient:  client,
		transcript: NewTranscript(),
		policy:     FullHistory{},
		in:         os.Stdin,
		out:        os.Stdout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(loop)
		}
	}
	return loop, nil
}

// ID 返回本次会话的标识。
func (l *Loop) ID() string {
	return l.id
}

// Transcript 返回本次会话的记录。
func (l *Loop) Transcript() *Transcript {
	return l.transcript
}

// Run 运行会话循环直到退出。用户输入退出指令、输入流关闭或上下文取消
// 都会干净地结束会话；单轮生成失败只提示错误并继续下一轮。
func (l *Loop) Run(ctx context.Context) error {
	log := logger.Named("session")
	log.Info("会话开始", slog.String("session_id", l.id))

	scanner := bufio.NewScanner(l.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		select {
		case <-ctx.Done():
			log.Info("会话被取消", slog.String("session_id", l.id))
			return nil
		default:
		}

		fmt.Fprint(l.out, userLabel)
		if !scanner.Scan() {
			// 输入流关闭等同于退出指令。
			if err := scanner.Err(); err != nil {
				return xerrors.Wrap(xerrors.CodeUnknown, err, "读取输入失败")
			}
			log.Info("输入流关闭，会话结束", slog.String("session_id", l.id))
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, exitSentinel) {
			log.Info("会话结束", slog.String("session_id", l.id), slog.Int("entries", l.transcript.Len()))
			return nil
		}

		// 先落记录，生成阶段崩溃时用户输入仍可追溯。
		l.transcript.Append(RoleUser, input)
		l.archiveEntry(ctx, RoleUser, input)

		entries := l.transcript.Entries()
		history := l.policy.Window(entries[:len(entries)-1])
		prompt := composePrompt(l.persona, history, input)

		resp, err := l.llmClient.Generate(ctx, llm.Request{Prompt: prompt})
		if err != nil {
			log.Warn("生成失败",
				slog.String("session_id", l.id),
				slog.String("code", string(xerrors.CodeOf(err))),
				slog.Any("error", err),
			)
			fmt.Fprintf(l.out, "error: %v\n\n", err)
			continue
		}

		l.transcript.Append(RoleAssistant, resp.Text)
		l.archiveEntry(ctx, RoleAssistant, resp.Text)
		log.Debug("单轮完成",
			slog.String("session_id", l.id),
			slog.Int("tool_rounds", resp.ToolRounds),
		)

		fmt.Fprintf(l.out, "%s%s\n\n", assistantLabel, resp.Text)
	}
}

// archiveEntry 把一条记录写入归档。归档只用于诊断，失败时记日志后继续。
func (l *Loop) archiveEntry(ctx context.Context, role Role, text string) {
	if l.archive == nil {
		return
	}
	l.seq++
	record := mysql.TranscriptRecord{
		SessionID: l.id,
		Seq:       l.seq,
		Role:      string(role),
		Text:      text,
		CreatedAt: time.Now().Unix(),
	}
	if err := l.archive.Save(ctx, record); err != nil {
		logger.Named("session").Warn("归档会话记录失败",
			slog.String("session_id", l.id),
			slog.Any("error", err),
		)
	}
}
