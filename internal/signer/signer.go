package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"hub-router/internal/analytics"
)

var (
	// ErrSignatureRejected 表示签名方（通常是用户）明确拒绝了签名。
	ErrSignatureRejected = errors.New("signer: 签名被拒绝")

	// ErrSignatureError 表示签名过程出错。
	ErrSignatureError = errors.New("signer: 签名失败")
)

// TypedDataSigner 是签名能力的边界。实现方可能是本地私钥，也可能是
// 需要用户交互确认的外部钱包，后者的延迟没有上界，调用方不得对
// SignTypedData 施加短超时。
type TypedDataSigner interface {
	SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) (string, error)
}

// Coordinator 负责把报价附带的 permit 数据交给签名方，并记录埋点。
type Coordinator struct {
	signer    TypedDataSigner
	logger    *zap.Logger
	analytics *analytics.Recorder
}

// NewCoordinator 创建签名协调器。
func NewCoordinator(s TypedDataSigner, recorder *analytics.Recorder, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		signer:    s,
		logger:    logger,
		analytics: recorder,
	}
}

// Sign 解析 permit 数据并请求签名，返回十六进制签名串。
func (c *Coordinator) Sign(ctx context.Context, account common.Address, permitData json.RawMessage) (string, error) {
	c.analytics.OnSignatureRequest()

	var typedData apitypes.TypedData
	if err := json.Unmarshal(permitData, &typedData); err != nil {
		wrapped := fmt.Errorf("%w: 解析 permit 数据失败: %v", ErrSignatureError, err)
		c.analytics.OnSignatureFailed(wrapped.Error())
		return "", wrapped
	}

	signature, err := c.signer.SignTypedData(ctx, account, typedData)
	if err != nil {
		if !errors.Is(err, ErrSignatureRejected) {
			err = fmt.Errorf("%w: %v", ErrSignatureError, err)
		}
		c.analytics.OnSignatureFailed(err.Error())
		return "", err
	}

	c.analytics.OnSignatureSuccess(signature)
	c.logger.Info("签名成功", zap.String("account", account.Hex()))

	return signature, nil
}
