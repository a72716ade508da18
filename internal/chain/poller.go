package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"hub-router/internal/config"
)

// TransactionReader 是确认轮询所需的链上读取能力，*ethclient.Client
// 原生满足该接口。
type TransactionReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Outcome 为一次确认等待的结果。超时不是错误：TimedOut=true 且 err 为
// nil，表示窗口内未观察到交易，交由调用方决定如何处置，避免与"从未提交"
// 混为一谈。
type Outcome struct {
	Tx       *types.Transaction
	Pending  bool
	Found    bool
	TimedOut bool
	Attempts int
}

// Poller 以固定间隔轮询交易是否出现在链上，不做退避。
type Poller struct {
	reader      TransactionReader
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// NewPoller 创建确认轮询器。
func NewPoller(reader TransactionReader, cfg config.ConfirmConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 1500 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		reader:      reader,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
	}
}

// Wait 等待交易被链上观察到。每个挂起点都响应 ctx 取消。
func (p *Poller) Wait(ctx context.Context, hash common.Hash) (Outcome, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{Attempts: attempt - 1}, ctx.Err()
		case <-time.After(p.interval):
		}

		tx, pending, err := p.reader.TransactionByHash(ctx, hash)
		if err == nil {
			p.logger.Info("交易已被观察到",
				zap.String("tx_hash", hash.Hex()),
				zap.Int("attempt", attempt),
				zap.Bool("pending", pending),
			)
			return Outcome{Tx: tx, Pending: pending, Found: true, Attempts: attempt}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return Outcome{Attempts: attempt}, fmt.Errorf("chain: 查询交易失败: %w", err)
		}

		p.logger.Debug("交易尚未出现",
			zap.String("tx_hash", hash.Hex()),
			zap.Int("attempt", attempt),
		)
	}

	p.logger.Warn("确认窗口内未观察到交易",
		zap.String("tx_hash", hash.Hex()),
		zap.Int("attempts", p.maxAttempts),
	)
	return Outcome{TimedOut: true, Attempts: p.maxAttempts}, nil
}
