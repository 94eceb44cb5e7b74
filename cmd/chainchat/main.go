package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"ChainChat/internal/audit"
	"ChainChat/internal/chain"
	"ChainChat/internal/config"
	"ChainChat/internal/llm"
	"ChainChat/internal/llm/openai"
	"ChainChat/internal/session"
	"ChainChat/internal/storage/mysql"
	"ChainChat/internal/tools"
	"ChainChat/internal/tools/price"
	"ChainChat/internal/tools/swap"
	"ChainChat/internal/tools/transfer"
	"ChainChat/internal/wallet"
	"ChainChat/pkg/logger"
)

// main 是 ChainChat 命令行对话入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("chainchat 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("CHAINCHAT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "chainchat.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.AuditFile.Enabled,
			Path:       cfg.Logging.AuditFile.Path,
			MaxSizeMB:  cfg.Logging.AuditFile.MaxSizeMB,
			MaxBackups: cfg.Logging.AuditFile.MaxBackups,
			MaxAgeDays: cfg.Logging.AuditFile.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	chainClient, err := chain.NewClient(ctx, chain.Config{
		RPCURL:  cfg.Chain.RPCURL,
		ChainID: cfg.Chain.ChainID,
	})
	if err != nil {
		return err
	}
	defer chainClient.Close()

	privateKey := cfg.Wallet.ResolvePrivateKey()
	if privateKey == "" {
		return errors.New("钱包需要配置 private_key 或 private_key_env")
	}
	w, err := wallet.New(privateKey, chainClient.ChainID())
	if err != nil {
		return err
	}

	registry, err := chain.LoadTokenRegistry(cfg.Chain.TokensFile)
	if err != nil {
		return err
	}

	toolList, err := buildToolList(cfg, w, chainClient, registry)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()

	var setOpts []tools.Option
	if cfg.Audit.Enabled {
		publisher, err := audit.NewPublisher(audit.Config{
			URL:     cfg.Audit.URL,
			Queue:   cfg.Audit.Queue,
			Durable: cfg.Audit.Durable,
		}, sessionID)
		if err != nil {
			return err
		}
		defer publisher.Close()
		setOpts = append(setOpts, tools.WithRecorder(publisher))
	}

	toolSet, err := tools.NewSet(toolList, setOpts...)
	if err != nil {
		return err
	}

	llmClient, err := createLLMClient(cfg, toolSet)
	if err != nil {
		return err
	}

	loopOpts := []session.Option{
		session.WithID(sessionID),
		session.WithPersona(cfg.Session.Persona),
	}
	if cfg.Session.HistoryWindow > 0 {
		loopOpts = append(loopOpts, session.WithHistoryPolicy(session.LastTurns{Turns: cfg.Session.HistoryWindow}))
	}

	archive, err := createArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		if closer, ok := archive.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		loopOpts = append(loopOpts, session.WithArchive(archive))
	}

	loop, err := session.NewLoop(llmClient, loopOpts...)
	if err != nil {
		return err
	}

	startupLog := logger.L().With(
		slog.String("session_id", sessionID),
		slog.String("wallet", w.Address().Hex()),
		slog.Int("tools", toolSet.Len()),
	)
	if snapshot, err := chainClient.FetchSnapshot(ctx); err == nil {
		startupLog = startupLog.With(
			slog.String("chain_id", snapshot.ChainID),
			slog.String("block", snapshot.BlockNumber),
		)
	}
	startupLog.Info("chainchat 启动")

	return loop.Run(ctx)
}

// buildToolList 汇总钱包工具。兑换工具依赖外部 API Key，未配置时跳过。
func buildToolList(cfg *config.Config, w *wallet.Wallet, client *chain.Client, registry *chain.TokenRegistry) ([]tools.Tool, error) {
	transferSvc, err := transfer.NewService(w, client, registry)
	if err != nil {
		return nil, err
	}
	list := transferSvc.Tools()

	if apiKey := cfg.Tools.Swap.ResolveAPIKey(); apiKey != "" {
		swapSvc, err := swap.NewService(swap.Config{
			APIKey:  apiKey,
			BaseURL: cfg.Tools.Swap.BaseURL,
		}, w, client)
		if err != nil {
			return nil, err
		}
		list = append(list, swapSvc.Tools()...)
	} else {
		logger.L().Warn("未配置兑换 API Key，跳过兑换工具")
	}

	priceSvc, err := price.NewService(price.Config{
		BaseURL:  cfg.Tools.Price.BaseURL,
		Currency: cfg.Tools.Price.Currency,
		CacheTTL: cfg.Tools.Price.CacheTTL(),
	}, price.RedisConfig{
		Address:  cfg.Tools.Price.Redis.Address,
		Password: cfg.Tools.Price.Redis.Password,
		DB:       cfg.Tools.Price.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	list = append(list, priceSvc.Tools()...)

	return list, nil
}

func createLLMClient(cfg *config.Config, toolSet *tools.Set) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := cfg.LLM.OpenAI.ResolveAPIKey()
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		return openai.NewClient(openai.Config{
			APIKey:        apiKey,
			BaseURL:       cfg.LLM.OpenAI.BaseURL,
			Model:         cfg.LLM.OpenAI.Model,
			Timeout:       cfg.LLM.OpenAI.Timeout(),
			MaxToolRounds: cfg.LLM.OpenAI.MaxToolRounds,
		}, toolSet)
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

// createArchive 按配置创建会话归档仓库，driver 为 none 时返回 nil。
func createArchive(ctx context.Context, cfg *config.Config) (mysql.TranscriptRepository, error) {
	switch cfg.Storage.Transcript.Driver {
	case "none":
		return nil, nil
	case "", "memory":
		if err := os.MkdirAll(cfg.Storage.Transcript.DataDir, 0o755); err != nil {
			return nil, err
		}
		return mysql.NewMemoryTranscriptRepository(cfg.Storage.Transcript.DataDir)
	case "mysql":
		return mysql.NewSQLTranscriptRepository(ctx, mysql.Config{
			DSN:             cfg.Storage.Transcript.DSN,
			MaxOpenConns:    cfg.Storage.Transcript.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Transcript.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Transcript.ConnMaxLifetime(),
		})
	default:
		return nil, mysql.ErrUnsupportedDriver
	}
}
