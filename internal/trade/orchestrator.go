package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"hub-router/internal/analytics"
	"hub-router/internal/chain"
	"hub-router/internal/config"
	"hub-router/internal/hub"
	"hub-router/internal/route"
)

// TradeIntent 描述调用方的一次交易意图，单次尝试内不可变。
type TradeIntent struct {
	SrcToken      common.Address
	DestToken     common.Address
	MaxSrcAmount  string
	MinDestAmount string
	Account       common.Address
}

// Validate 校验交易意图。
func (i TradeIntent) Validate() error {
	if i.MaxSrcAmount == "" {
		return errors.New("trade: max_src_amount 不能为空")
	}
	if i.MinDestAmount == "" {
		return errors.New("trade: min_dest_amount 不能为空")
	}
	if i.Account == (common.Address{}) {
		return errors.New("trade: account 不能为空")
	}
	return nil
}

// ConfirmedTrade 为一次成功走完全流程的撮合交易。
type ConfirmedTrade struct {
	TxHash    common.Hash
	Tx        *types.Transaction
	OutAmount string
	Attempts  int
}

// 编排器对各阶段的依赖，按消费方需要收窄成小接口，便于替换与测试。
type (
	quoteClient interface {
		Quote(ctx context.Context, params hub.QuoteParams) (hub.Quote, error)
	}
	submitClient interface {
		Submit(ctx context.Context, params hub.SwapParams) (string, error)
	}
	decisionEngine interface {
		Decide(outAmount, minDestAmount string, forceHub bool) (route.Decision, error)
	}
	signCoordinator interface {
		Sign(ctx context.Context, account common.Address, permitData json.RawMessage) (string, error)
	}
	confirmWaiter interface {
		Wait(ctx context.Context, hash common.Hash) (chain.Outcome, error)
	}
)

// Deps 聚合编排器的阶段实现。
type Deps struct {
	Quotes    quoteClient
	Engine    decisionEngine
	Signer    signCoordinator
	Submitter submitClient
	Poller    confirmWaiter
}

// Orchestrator 按 询价→裁决→签名→提交→确认 的顺序驱动一次撮合交易，
// 每个编排器实例即一个会话：熔断器随实例创建而复位。
type Orchestrator struct {
	deps      Deps
	routing   config.RoutingConfig
	analytics *analytics.Recorder
	logger    *zap.Logger

	state *SessionState
	slot  *semaphore.Weighted
}

// NewOrchestrator 创建编排器。
func NewOrchestrator(deps Deps, routing config.RoutingConfig, recorder *analytics.Recorder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:      deps,
		routing:   routing,
		analytics: recorder,
		logger:    logger,
		state:     NewSessionState(),
		slot:      semaphore.NewWeighted(1),
	}
}

// State 返回会话共享状态，供授权层与上层只读访问。
func (o *Orchestrator) State() *SessionState {
	return o.state
}

// PermitEligible 判断 permit 授权通道在当前会话是否可用：
// 未被禁用、未被强制回退且熔断器未触发。
func (o *Orchestrator) PermitEligible() bool {
	if o.routing.Disabled || o.forceFallback() {
		return false
	}
	return !o.state.Failed()
}

// Execute 执行一次撮合交易尝试。返回 ErrNotAttempted 时调用方应改走
// 链上聚合器；同一实例同一时刻至多一次尝试在进行。
func (o *Orchestrator) Execute(ctx context.Context, intent TradeIntent) (*ConfirmedTrade, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	if !o.slot.TryAcquire(1) {
		return nil, ErrAttemptInFlight
	}
	defer o.slot.Release(1)

	// 熔断判断要在状态翻转之前完成，短路返回不得清掉粘性失败标记。
	tripped := o.state.Failed()

	o.state.setLoading(true)
	defer o.state.setLoading(false)

	if o.routing.Disabled {
		o.analytics.OnDisabled()
	}
	if o.routing.Disabled || o.forceFallback() || (tripped && !o.forceHub()) {
		o.logger.Info("本次不尝试撮合交易",
			zap.Bool("disabled", o.routing.Disabled),
			zap.Bool("force_fallback", o.forceFallback()),
			zap.Bool("breaker_tripped", tripped),
		)
		return nil, ErrNotAttempted
	}

	o.state.beginAttempt()

	quote, err := o.deps.Quotes.Quote(ctx, hub.QuoteParams{
		SrcToken:      strings.ToLower(intent.SrcToken.Hex()),
		DestToken:     strings.ToLower(intent.DestToken.Hex()),
		MaxSrcAmount:  intent.MaxSrcAmount,
		MinDestAmount: intent.MinDestAmount,
		Account:       intent.Account.Hex(),
	})
	if err != nil {
		return nil, o.fail("询价失败", err)
	}

	decision, err := o.deps.Engine.Decide(quote.OutAmount, intent.MinDestAmount, o.forceHub())
	if err != nil {
		return nil, o.fail("路由裁决失败", err)
	}
	if decision == route.UseFallback {
		o.state.markFailed()
		o.logger.Info("报价被拒绝，本次改走链上聚合器",
			zap.String("out_amount", quote.OutAmount),
			zap.String("min_dest_amount", intent.MinDestAmount),
		)
		return nil, fmt.Errorf("%w: 报价 %s 低于下限 %s", ErrQuoteBelowMinimum, quote.OutAmount, intent.MinDestAmount)
	}

	// 报价通过裁决即视为选中撮合通道，上层允许在确认前提前展示。
	o.state.markAccepted(quote.OutAmount)

	signature, err := o.deps.Signer.Sign(ctx, intent.Account, quote.PermitData)
	if err != nil {
		return nil, o.fail("签名失败", err)
	}

	txHashHex, err := o.deps.Submitter.Submit(ctx, hub.SwapParams{
		Account:         intent.Account.Hex(),
		SrcToken:        strings.ToLower(intent.SrcToken.Hex()),
		DestToken:       strings.ToLower(intent.DestToken.Hex()),
		MaxSrcAmount:    intent.MaxSrcAmount,
		MinDestAmount:   intent.MinDestAmount,
		Signature:       signature,
		SerializedOrder: quote.SerializedOrder,
		CallData:        quote.CallData,
	})
	if err != nil {
		return nil, o.fail("成交提交失败", err)
	}
	txHash := common.HexToHash(txHashHex)

	outcome, err := o.deps.Poller.Wait(ctx, txHash)
	if err != nil {
		return nil, o.fail("确认轮询失败", err)
	}
	if outcome.TimedOut {
		o.state.markFailed()
		o.logger.Warn("确认窗口内未观察到交易",
			zap.String("tx_hash", txHash.Hex()),
			zap.Int("attempts", outcome.Attempts),
		)
		return nil, fmt.Errorf("%w: %s", ErrConfirmationTimedOut, txHash.Hex())
	}

	o.logger.Info("撮合交易完成",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("out_amount", quote.OutAmount),
		zap.Int("confirm_attempts", outcome.Attempts),
	)

	return &ConfirmedTrade{
		TxHash:    txHash,
		Tx:        outcome.Tx,
		OutAmount: quote.OutAmount,
		Attempts:  outcome.Attempts,
	}, nil
}

// fail 统一处理阶段失败：触发熔断并收敛为面向用户的统一错误，
// 具体原因已由各阶段写入埋点。
func (o *Orchestrator) fail(stage string, cause error) error {
	o.state.markFailed()
	o.logger.Error("撮合交易失败",
		zap.String("stage", stage),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %s: %v", ErrHubTradeFailed, stage, cause)
}

func (o *Orchestrator) forceHub() bool {
	return strings.EqualFold(o.routing.Force, config.ForceHub)
}

func (o *Orchestrator) forceFallback() bool {
	return strings.EqualFold(o.routing.Force, config.ForceFallback)
}
