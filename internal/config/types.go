package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

// 路由强制选项，对应 routing.force 配置值。
const (
	ForceNone     = ""
	ForceHub      = "hub"
	ForceFallback = "fallback"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Hub       HubConfig       `mapstructure:"hub"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Confirm   ConfirmConfig   `mapstructure:"confirm"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// HubConfig 描述链下做市服务的接入信息。
type HubConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ChainID      int64         `mapstructure:"chain_id"`
	QuoteTimeout time.Duration `mapstructure:"quote_timeout"`
	SwapTimeout  time.Duration `mapstructure:"swap_timeout"`
}

// ChainConfig 描述链上 RPC 接入信息。
type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

// WalletConfig 描述签名账户。
type WalletConfig struct {
	Address    string `mapstructure:"address"`
	PrivateKey string `mapstructure:"private_key"`
}

// RoutingConfig 控制路由行为。Force 取代了原先基于 URL 参数的开关，
// 取值为 "" / "hub" / "fallback"。
type RoutingConfig struct {
	Disabled bool   `mapstructure:"disabled"`
	Force    string `mapstructure:"force"`
}

// ApprovalConfig 描述授权涉及的合约地址。
type ApprovalConfig struct {
	PermitContract string `mapstructure:"permit_contract"`
	ProxyRouter    string `mapstructure:"proxy_router"`
	SwapRouter     string `mapstructure:"swap_router"`
}

// ConfirmConfig 控制链上确认轮询节奏。
type ConfirmConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// AnalyticsConfig 控制埋点上报。
type AnalyticsConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	QueueSize int           `mapstructure:"queue_size"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Hub.BaseURL == "" {
		err = multierr.Append(err, errors.New("hub.base_url 不能为空"))
	}
	if c.Hub.ChainID <= 0 {
		err = multierr.Append(err, errors.New("hub.chain_id 必须大于0"))
	}
	if c.Hub.QuoteTimeout <= 0 {
		err = multierr.Append(err, errors.New("hub.quote_timeout 必须大于0"))
	}
	if c.Hub.SwapTimeout <= 0 {
		err = multierr.Append(err, errors.New("hub.swap_timeout 必须大于0"))
	}
	if c.Chain.RPCURL == "" {
		err = multierr.Append(err, errors.New("chain.rpc_url 不能为空"))
	}
	if c.Wallet.Address != "" && !common.IsHexAddress(c.Wallet.Address) {
		err = multierr.Append(err, errors.New("wallet.address 不是合法的十六进制地址"))
	}
	switch strings.ToLower(c.Routing.Force) {
	case ForceNone, ForceHub, ForceFallback:
	default:
		err = multierr.Append(err, fmt.Errorf("routing.force 取值非法: %q", c.Routing.Force))
	}
	if !common.IsHexAddress(c.Approval.PermitContract) {
		err = multierr.Append(err, errors.New("approval.permit_contract 不是合法的十六进制地址"))
	}
	if c.Approval.ProxyRouter != "" && !common.IsHexAddress(c.Approval.ProxyRouter) {
		err = multierr.Append(err, errors.New("approval.proxy_router 不是合法的十六进制地址"))
	}
	if c.Approval.SwapRouter != "" && !common.IsHexAddress(c.Approval.SwapRouter) {
		err = multierr.Append(err, errors.New("approval.swap_router 不是合法的十六进制地址"))
	}
	if c.Confirm.Interval <= 0 {
		err = multierr.Append(err, errors.New("confirm.interval 必须大于0"))
	}
	if c.Confirm.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("confirm.max_attempts 必须大于0"))
	}
	if c.Analytics.Endpoint == "" {
		err = multierr.Append(err, errors.New("analytics.endpoint 不能为空"))
	}
	if c.Analytics.Timeout <= 0 {
		err = multierr.Append(err, errors.New("analytics.timeout 必须大于0"))
	}
	if c.Analytics.QueueSize <= 0 {
		err = multierr.Append(err, errors.New("analytics.queue_size 必须大于0"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
