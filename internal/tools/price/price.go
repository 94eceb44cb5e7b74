package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ChainChat/internal/tools"
)

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"
	defaultTimeout = 10 * time.Second
)

// symbolAliases 把常见代币符号映射为行情 API 的资产标识。
var symbolAliases = map[string]string{
	"eth":  "ethereum",
	"btc":  "bitcoin",
	"usdc": "usd-coin",
	"usdt": "tether",
	"dai":  "dai",
	"pepe": "pepe",
}

// Config 描述行情查询服务的参数。
type Config struct {
	BaseURL  string
	Currency string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// RedisConfig 描述可选的行情缓存连接，Address 为空表示不启用。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Service 查询代币现货价格，并可选地使用 Redis 做短期缓存。
type Service struct {
	baseURL    string
	currency   string
	cacheTTL   time.Duration
	httpClient *http.Client
	cache      *redis.Client
}

// NewService 创建行情服务。配置了 Redis 时会在启动阶段验证连通性。
func NewService(cfg Config, cacheCfg RedisConfig) (*Service, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	svc := &Service{
		baseURL:    baseURL,
		currency:   currency,
		cacheTTL:   cfg.CacheTTL,
		httpClient: &http.Client{Timeout: timeout},
	}

	if cacheCfg.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cacheCfg.Address,
			Password: cacheCfg.Password,
			DB:       cacheCfg.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("连接 Redis 失败: %w", err)
		}
		svc.cache = client
	}
	return svc, nil
}

// Close 释放缓存连接。
func (s *Service) Close() error {
	if s == nil || s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

type lookupParams struct {
	Coin string `json:"coin"`
}

type lookupResult struct {
	Coin     string `json:"coin"`
	Currency string `json:"currency"`
	Price    string `json:"price"`
	Cached   bool   `json:"cached"`
}

// Lookup 查询一个资产的现货价格，命中缓存时不会访问行情 API。
func (s *Service) Lookup(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lookupParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("解析行情参数失败: %w", err)
	}
	coin := normalizeCoin(params.Coin)
	if coin == "" {
		return nil, errors.New("行情查询需要提供资产标识")
	}

	cacheKey := fmt.Sprintf("chainchat:price:%s:%s", coin, s.currency)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			return lookupResult{Coin: coin, Currency: s.currency, Price: cached, Cached: true}, nil
		}
	}

	price, err := s.fetchPrice(ctx, coin)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		// 缓存写入失败只影响后续命中率，不影响本次结果。
		_ = s.cache.Set(ctx, cacheKey, price, s.cacheTTL).Err()
	}
	return lookupResult{Coin: coin, Currency: s.currency, Price: price}, nil
}

func (s *Service) fetchPrice(ctx context.Context, coin string) (string, error) {
	query := url.Values{}
	query.Set("ids", coin)
	query.Set("vs_currencies", s.currency)
	endpoint := s.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("构建行情请求失败: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求行情 API 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("行情 API 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析行情响应失败: %w", err)
	}
	quotes, ok := decoded[coin]
	if !ok {
		return "", fmt.Errorf("行情 API 未返回资产 %s 的报价", coin)
	}
	value, ok := quotes[s.currency]
	if !ok {
		return "", fmt.Errorf("行情 API 未返回 %s 计价的报价", s.currency)
	}
	return strconv.FormatFloat(value, 'f', -1, 64), nil
}

func normalizeCoin(coin string) string {
	coin = strings.ToLower(strings.TrimSpace(coin))
	if alias, ok := symbolAliases[coin]; ok {
		return alias
	}
	return coin
}

// Tools 返回行情查询工具。
func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "get_token_price",
			Description: "Look up the current spot price of a crypto asset. Accepts a market identifier like \"ethereum\" or a common symbol like \"ETH\".",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "coin": {"type": "string", "description": "Asset identifier or common symbol, e.g. \"ethereum\" or \"ETH\""}
  },
  "required": ["coin"]
}`),
			Invoke: s.Lookup,
		},
	}
}
