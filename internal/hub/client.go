package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"hub-router/internal/analytics"
	"hub-router/internal/config"
)

// Client 封装撮合服务的询价与成交两个端点。
type Client struct {
	cfg       config.HubConfig
	logger    *zap.Logger
	analytics *analytics.Recorder

	quoteHTTP *http.Client
	swapHTTP  *http.Client
}

// NewClient 使用给定配置创建撮合服务客户端。
func NewClient(cfg config.HubConfig, recorder *analytics.Recorder, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("hub: base_url 不能为空")
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("hub: chain_id 必须大于0")
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 10 * time.Second
	}
	if cfg.SwapTimeout <= 0 {
		cfg.SwapTimeout = 40 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg:       cfg,
		logger:    logger,
		analytics: recorder,
		quoteHTTP: &http.Client{Timeout: cfg.QuoteTimeout},
		swapHTTP:  &http.Client{Timeout: cfg.SwapTimeout},
	}, nil
}

// Quote 向撮合服务询价。失败即为本次尝试的终局，调用方不应重试。
func (c *Client) Quote(ctx context.Context, params QuoteParams) (Quote, error) {
	c.analytics.OnQuoteRequest(params.MinDestAmount)
	start := time.Now()

	body := quoteRequest{
		InToken:   params.SrcToken,
		OutToken:  params.DestToken,
		InAmount:  params.MaxSrcAmount,
		OutAmount: params.MinDestAmount,
		User:      params.Account,
	}

	var resp quoteResponse
	if err := c.post(ctx, c.quoteHTTP, "/quote", body, &resp); err != nil {
		c.analytics.OnQuoteFailed(err.Error())
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}

	if resp.OutAmount == "" || resp.SerializedOrder == "" {
		err := fmt.Errorf("%w: 响应缺少报价内容", ErrQuoteUnavailable)
		c.analytics.OnQuoteFailed(err.Error())
		return Quote{}, err
	}

	elapsed := time.Since(start)
	c.analytics.OnQuoteSuccess(resp.OutAmount, resp.SerializedOrder, resp.CallData, string(resp.PermitData), elapsed.Milliseconds())
	c.logger.Info("询价成功",
		zap.String("out_amount", resp.OutAmount),
		zap.Duration("elapsed", elapsed),
	)

	return Quote{
		OutAmount:       resp.OutAmount,
		SerializedOrder: resp.SerializedOrder,
		CallData:        resp.CallData,
		PermitData:      resp.PermitData,
	}, nil
}

// Submit 将签名后的订单提交给撮合服务，返回链上交易哈希。
func (c *Client) Submit(ctx context.Context, params SwapParams) (string, error) {
	c.analytics.OnSwapRequest()
	start := time.Now()

	body := swapRequest{
		InToken:         params.SrcToken,
		OutToken:        params.DestToken,
		InAmount:        params.MaxSrcAmount,
		OutAmount:       params.MinDestAmount,
		User:            params.Account,
		Signature:       params.Signature,
		SerializedOrder: params.SerializedOrder,
		FillerCallData:  params.CallData,
	}

	var resp swapResponse
	if err := c.post(ctx, c.swapHTTP, "/swapx", body, &resp); err != nil {
		c.analytics.OnSwapFailed(err.Error())
		return "", fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	}

	if resp.TxHash == "" {
		err := fmt.Errorf("%w: 响应缺少交易哈希", ErrSubmissionRejected)
		c.analytics.OnSwapFailed(err.Error())
		return "", err
	}

	elapsed := time.Since(start)
	c.analytics.OnSwapSuccess(resp.TxHash, elapsed.Milliseconds())
	c.logger.Info("成交提交成功",
		zap.String("tx_hash", resp.TxHash),
		zap.Duration("elapsed", elapsed),
	)

	return resp.TxHash, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	url := fmt.Sprintf("%s%s?chainId=%d", c.cfg.BaseURL, path, c.cfg.ChainID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("响应状态异常: %d", resp.StatusCode)
	}
	if len(raw) == 0 {
		return fmt.Errorf("响应为空")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}

	return nil
}
