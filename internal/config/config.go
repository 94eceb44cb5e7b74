package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了 ChainChat 在启动阶段需要加载的核心配置。
type Config struct {
	LLM     LLMConfig     `json:"llm"`
	Wallet  WalletConfig  `json:"wallet"`
	Chain   ChainConfig   `json:"chain"`
	Tools   ToolsConfig   `json:"tools"`
	Session SessionConfig `json:"session"`
	Storage StorageConfig `json:"storage"`
	Audit   AuditConfig   `json:"audit"`
	Logging LoggingConfig `json:"logging"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口的连接参数。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxToolRounds  int    `json:"max_tool_rounds"`
}

// Timeout 返回调用大模型的超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 返回配置的 API Key，优先使用字面值，其次读取环境变量。
func (c OpenAIConfig) ResolveAPIKey() string {
	return resolveSecret(c.APIKey, c.APIKeyEnv)
}

// WalletConfig 描述本地钱包的密钥来源，私钥建议通过环境变量注入。
type WalletConfig struct {
	PrivateKey    string `json:"private_key"`
	PrivateKeyEnv string `json:"private_key_env"`
}

// ResolvePrivateKey 返回十六进制私钥，优先字面值，其次环境变量。
func (c WalletConfig) ResolvePrivateKey() string {
	return resolveSecret(c.PrivateKey, c.PrivateKeyEnv)
}

// ChainConfig 包含访问区块链节点所需的 RPC 地址与代币登记表。
type ChainConfig struct {
	RPCURL     string `json:"rpc_url"`
	ChainID    int64  `json:"chain_id"`
	TokensFile string `json:"tokens_file"`
}

// ToolsConfig 汇总内置钱包工具的外部依赖配置。
type ToolsConfig struct {
	Swap  SwapConfig  `json:"swap"`
	Price PriceConfig `json:"price"`
}

// SwapConfig 描述代币兑换所依赖的交易路由 API。
type SwapConfig struct {
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	BaseURL   string `json:"base_url"`
}

// ResolveAPIKey 返回兑换 API 的访问密钥。
func (c SwapConfig) ResolveAPIKey() string {
	return resolveSecret(c.APIKey, c.APIKeyEnv)
}

// PriceConfig 描述行情查询接口与可选的 Redis 缓存。
type PriceConfig struct {
	BaseURL         string      `json:"base_url"`
	Currency        string      `json:"currency"`
	CacheTTLSeconds int         `json:"cache_ttl_seconds"`
	Redis           RedisConfig `json:"redis"`
}

// CacheTTL 返回行情缓存的有效期。
func (c PriceConfig) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RedisConfig 描述 Redis 连接参数，Address 为空表示不启用缓存。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SessionConfig 控制会话循环的人设前缀与历史窗口策略。
type SessionConfig struct {
	Persona       string `json:"persona"`
	HistoryWindow int    `json:"history_window"`
}

// StorageConfig 统一描述会话归档后端的连接信息。
type StorageConfig struct {
	Transcript TranscriptStoreConfig `json:"transcript"`
}

// TranscriptStoreConfig 支持 none、memory（JSON 行文件）与 mysql 三种驱动。
type TranscriptStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	DataDir                string `json:"data_dir"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// ConnMaxLifetime 返回连接的最大存活时间。
func (c TranscriptStoreConfig) ConnMaxLifetime() time.Duration {
	if c.ConnMaxLifetimeSeconds <= 0 {
		return 0
	}
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// AuditConfig 描述链上操作审计事件的投递目标。
type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// LoggingConfig 控制运行日志与审计日志文件的输出行为。
type LoggingConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	AuditFile   AuditLogConfig `json:"audit_file"`
}

// AuditLogConfig 控制本地审计日志文件的滚动策略。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.MaxToolRounds <= 0 {
		c.LLM.OpenAI.MaxToolRounds = 10
	}

	if c.Chain.TokensFile != "" && !filepath.IsAbs(c.Chain.TokensFile) {
		c.Chain.TokensFile = filepath.Join(baseDir, c.Chain.TokensFile)
	}

	if c.Tools.Price.Currency == "" {
		c.Tools.Price.Currency = "usd"
	}
	if c.Tools.Price.CacheTTLSeconds <= 0 {
		c.Tools.Price.CacheTTLSeconds = 30
	}

	if c.Session.HistoryWindow < 0 {
		c.Session.HistoryWindow = 0
	}

	if c.Storage.Transcript.Driver == "" {
		c.Storage.Transcript.Driver = "memory"
	}
	if c.Storage.Transcript.DataDir == "" {
		c.Storage.Transcript.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Storage.Transcript.DataDir) {
		c.Storage.Transcript.DataDir = filepath.Join(baseDir, c.Storage.Transcript.DataDir)
	}
}

func resolveSecret(literal, envName string) string {
	if value := strings.TrimSpace(literal); value != "" {
		return value
	}
	if envName != "" {
		return strings.TrimSpace(os.Getenv(envName))
	}
	return ""
}
