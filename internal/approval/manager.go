package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"hub-router/internal/analytics"
)

// State 表示某 token 对某 spender 的授权状态，每次观察重新推导，
// 不做跨次缓存。
type State int

const (
	StateUnknown State = iota
	StateNotApproved
	StatePending
	StateApproved
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateNotApproved:
		return "not_approved"
	case StatePending:
		return "pending"
	case StateApproved:
		return "approved"
	default:
		return "invalid"
	}
}

// ErrEstimationFailed 表示无限额授权的 gas 估算被拒绝，已退回精确数额。
var ErrEstimationFailed = errors.New("approval: 无限额授权估算失败")

// maxApproval 为无限额授权的哨兵值 2^256-1。部分 token 会拒绝该数额，
// 此时估算与执行都退回精确数额。
var maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// tokenBackend 是授权所需的链上能力，由 chain.ERC20Backend 提供。
type tokenBackend interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	EstimateApprove(ctx context.Context, token, spender common.Address, amount *big.Int) (uint64, error)
	SubmitApprove(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (common.Hash, error)
}

// SessionInfo 提供会话视角的路由信息，决定 permit 合约是否可用。
type SessionInfo interface {
	PermitEligible() bool
}

// Addresses 列出授权可能指向的合约。
type Addresses struct {
	PermitContract common.Address
	ProxyRouter    common.Address
	SwapRouter     common.Address
}

// Status 表示一次 Approve 调用的结局。
type Status int

const (
	// StatusSkipped 表示当前状态无需授权，未发生任何网络动作。
	StatusSkipped Status = iota
	// StatusSubmitted 表示授权交易已发送。
	StatusSubmitted
	// StatusFailed 表示授权失败，失败原因在 Err 中。
	StatusFailed
)

// Result 为 Approve 的返回值。授权失败不中断上层流程，因此以结果值
// 而非 error 返回。
type Result struct {
	Status     Status
	State      State
	Spender    common.Address
	TxHash     common.Hash
	UsedExact  bool
	Diagnostic string
	Err        error
}

// Request 描述一次授权需求。Token 为零地址表示链原生资产。
type Request struct {
	Token      common.Address
	Amount     *big.Int
	BonusRoute bool
}

// Manager 推导授权状态并执行授权交易。
type Manager struct {
	backend   tokenBackend
	session   SessionInfo
	addrs     Addresses
	owner     common.Address
	analytics *analytics.Recorder
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[pendingKey]common.Hash
}

type pendingKey struct {
	token   common.Address
	spender common.Address
}

// NewManager 创建授权管理器。
func NewManager(backend tokenBackend, session SessionInfo, addrs Addresses, owner common.Address, recorder *analytics.Recorder, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backend:   backend,
		session:   session,
		addrs:     addrs,
		owner:     owner,
		analytics: recorder,
		logger:    logger,
		pending:   make(map[pendingKey]common.Hash),
	}
}

// Spender 返回本次会话应当授权的合约地址：permit 可用时授权 permit
// 合约；否则按是否找到优化路由在聚合器的两个入口之间选择。
func (m *Manager) Spender(bonusRoute bool) common.Address {
	if m.session.PermitEligible() {
		return m.addrs.PermitContract
	}
	if bonusRoute {
		return m.addrs.SwapRouter
	}
	return m.addrs.ProxyRouter
}

// StateFor 推导当前授权状态。额度数据不可得时返回 Unknown。
func (m *Manager) StateFor(ctx context.Context, token, spender common.Address, amount *big.Int) (State, error) {
	if amount == nil || spender == (common.Address{}) {
		return StateUnknown, nil
	}
	if token == (common.Address{}) {
		return StateApproved, nil
	}

	allowance, err := m.backend.Allowance(ctx, token, m.owner, spender)
	if err != nil {
		return StateUnknown, err
	}

	if allowance.Cmp(amount) >= 0 {
		return StateApproved, nil
	}
	if m.isPending(token, spender) {
		return StatePending, nil
	}
	return StateNotApproved, nil
}

// Approve 在状态为 NotApproved 时发送授权交易。其余状态只记录本地诊断，
// 不做任何网络动作，也绝不返回 error 之外的失败路径——所有失败都收敛
// 在 Result 里。
func (m *Manager) Approve(ctx context.Context, req Request) Result {
	spender := m.Spender(req.BonusRoute)

	state, err := m.StateFor(ctx, req.Token, spender, req.Amount)
	if err != nil {
		m.logger.Warn("推导授权状态失败", zap.Error(err))
		return Result{Status: StatusFailed, State: StateUnknown, Spender: spender, Err: err}
	}
	if state != StateNotApproved {
		diag := fmt.Sprintf("授权在状态 %s 下无需执行", state)
		m.logger.Warn("跳过授权", zap.String("state", state.String()))
		return Result{Status: StatusSkipped, State: state, Spender: spender, Diagnostic: diag}
	}

	m.analytics.OnApproveRequest(spender.Hex(), req.Amount.String())

	amount := maxApproval
	usedExact := false

	gas, err := m.backend.EstimateApprove(ctx, req.Token, spender, maxApproval)
	if err != nil {
		// 部分 token 拒绝无限额授权，退回精确数额重试。
		usedExact = true
		amount = req.Amount
		gas, err = m.backend.EstimateApprove(ctx, req.Token, spender, req.Amount)
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", ErrEstimationFailed, err)
			m.analytics.OnApproveFailed(wrapped.Error())
			return Result{Status: StatusFailed, State: state, Spender: spender, UsedExact: true, Err: wrapped}
		}
	}

	gasLimit := gasMargin(gas, req.BonusRoute)
	txHash, err := m.backend.SubmitApprove(ctx, req.Token, spender, amount, gasLimit)
	if err != nil {
		m.analytics.OnApproveFailed(err.Error())
		return Result{Status: StatusFailed, State: state, Spender: spender, UsedExact: usedExact, Err: err}
	}

	m.markPending(req.Token, spender, txHash)
	m.analytics.OnTokenApproved()
	m.logger.Info("授权交易已提交",
		zap.String("spender", spender.Hex()),
		zap.String("tx_hash", txHash.Hex()),
		zap.Bool("exact_amount", usedExact),
	)

	return Result{Status: StatusSubmitted, State: StatePending, Spender: spender, TxHash: txHash, UsedExact: usedExact}
}

// ConfirmPending 在授权交易上链后清除挂起标记。
func (m *Manager) ConfirmPending(token, spender common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, pendingKey{token: token, spender: spender})
}

func (m *Manager) isPending(token, spender common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[pendingKey{token: token, spender: spender}]
	return ok
}

func (m *Manager) markPending(token, spender common.Address, hash common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[pendingKey{token: token, spender: spender}] = hash
}

// gasMargin 在估算值上加安全冗余：常规路由 +20%，优化路由 +50%。
func gasMargin(gas uint64, bonusRoute bool) uint64 {
	if bonusRoute {
		return gas * 150 / 100
	}
	return gas * 120 / 100
}
