package route

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hub-router/internal/analytics"
)

// Decision 表示对一笔报价的路由裁决。
type Decision int

const (
	// UseHub 表示接受撮合报价，走链下成交。
	UseHub Decision = iota
	// UseFallback 表示报价不划算，改走链上聚合器。
	UseFallback
)

func (d Decision) String() string {
	switch d {
	case UseHub:
		return "hub"
	case UseFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Engine 对报价做经济性裁决。
type Engine struct {
	logger    *zap.Logger
	analytics *analytics.Recorder
}

// NewEngine 创建裁决引擎。
func NewEngine(recorder *analytics.Recorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:    logger,
		analytics: recorder,
	}
}

// Decide 比较报价输出与可接受下限。forceHub 为真时跳过比较直接接受，
// 供受控测试与演示使用。金额为十进制整数字符串，比较使用任意精度算术。
func (e *Engine) Decide(outAmount, minDestAmount string, forceHub bool) (Decision, error) {
	if forceHub {
		e.logger.Debug("路由被强制走撮合服务，跳过经济性校验")
		return UseHub, nil
	}

	out, err := decimal.NewFromString(outAmount)
	if err != nil {
		return UseFallback, fmt.Errorf("route: 报价输出量非法 %q: %w", outAmount, err)
	}
	min, err := decimal.NewFromString(minDestAmount)
	if err != nil {
		return UseFallback, fmt.Errorf("route: 可接受下限非法 %q: %w", minDestAmount, err)
	}

	if out.LessThan(min) {
		e.analytics.OnLowAmountOut()
		e.logger.Info("撮合报价低于可接受下限",
			zap.String("out_amount", outAmount),
			zap.String("min_dest_amount", minDestAmount),
		)
		return UseFallback, nil
	}

	return UseHub, nil
}
