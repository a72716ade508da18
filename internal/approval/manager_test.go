package approval

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"hub-router/internal/analytics"
	"hub-router/internal/config"
)

var (
	testToken   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testOwner   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testPermit  = common.HexToAddress("0x000000000022d473030f116ddee9f6b43ac78ba3")
	testProxy   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testRouter  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testAddrSet = Addresses{PermitContract: testPermit, ProxyRouter: testProxy, SwapRouter: testRouter}
)

type mockBackend struct {
	allowance     *big.Int
	allowanceErr  error
	estimateCalls []*big.Int
	estimateErrOn func(amount *big.Int) error
	submitAmounts []*big.Int
	submitErr     error
	submitHash    common.Hash
	gasLimits     []uint64
}

func (m *mockBackend) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if m.allowanceErr != nil {
		return nil, m.allowanceErr
	}
	return m.allowance, nil
}

func (m *mockBackend) EstimateApprove(ctx context.Context, token, spender common.Address, amount *big.Int) (uint64, error) {
	m.estimateCalls = append(m.estimateCalls, new(big.Int).Set(amount))
	if m.estimateErrOn != nil {
		if err := m.estimateErrOn(amount); err != nil {
			return 0, err
		}
	}
	return 50000, nil
}

func (m *mockBackend) SubmitApprove(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (common.Hash, error) {
	m.submitAmounts = append(m.submitAmounts, new(big.Int).Set(amount))
	m.gasLimits = append(m.gasLimits, gasLimit)
	if m.submitErr != nil {
		return common.Hash{}, m.submitErr
	}
	return m.submitHash, nil
}

type stubSession struct {
	permit bool
}

func (s stubSession) PermitEligible() bool { return s.permit }

func newTestRecorder() *analytics.Recorder {
	return analytics.NewRecorder(config.AnalyticsConfig{
		Endpoint:  "http://127.0.0.1:1",
		Timeout:   time.Second,
		QueueSize: 16,
	}, nil)
}

func newTestManager(backend *mockBackend, session SessionInfo) (*Manager, *analytics.Recorder) {
	recorder := newTestRecorder()
	return NewManager(backend, session, testAddrSet, testOwner, recorder, nil), recorder
}

func TestStateFor_Derivation(t *testing.T) {
	ctx := context.Background()
	amount := big.NewInt(100)

	cases := []struct {
		name    string
		backend *mockBackend
		token   common.Address
		pending bool
		want    State
	}{
		{"额度为零", &mockBackend{allowance: big.NewInt(0)}, testToken, false, StateNotApproved},
		{"额度充足", &mockBackend{allowance: big.NewInt(150)}, testToken, false, StateApproved},
		{"额度恰好", &mockBackend{allowance: big.NewInt(100)}, testToken, false, StateApproved},
		{"授权挂起", &mockBackend{allowance: big.NewInt(0)}, testToken, true, StatePending},
		{"原生资产", &mockBackend{}, common.Address{}, false, StateApproved},
		{"额度不可得", &mockBackend{allowanceErr: errors.New("rpc down")}, testToken, false, StateUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager, recorder := newTestManager(tc.backend, stubSession{permit: true})
			defer recorder.Close()
			if tc.pending {
				manager.markPending(tc.token, testPermit, common.HexToHash("0x1"))
			}

			state, _ := manager.StateFor(ctx, tc.token, testPermit, amount)
			if state != tc.want {
				t.Errorf("expected %s, got %s", tc.want, state)
			}
		})
	}
}

func TestStateFor_UnknownWithoutAmountOrSpender(t *testing.T) {
	manager, recorder := newTestManager(&mockBackend{allowance: big.NewInt(0)}, stubSession{})
	defer recorder.Close()

	if state, _ := manager.StateFor(context.Background(), testToken, testPermit, nil); state != StateUnknown {
		t.Errorf("nil amount: expected Unknown, got %s", state)
	}
	if state, _ := manager.StateFor(context.Background(), testToken, common.Address{}, big.NewInt(1)); state != StateUnknown {
		t.Errorf("zero spender: expected Unknown, got %s", state)
	}
}

func TestSpender_Selection(t *testing.T) {
	backend := &mockBackend{allowance: big.NewInt(0)}

	manager, recorder := newTestManager(backend, stubSession{permit: true})
	defer recorder.Close()
	if got := manager.Spender(true); got != testPermit {
		t.Errorf("permit eligible: expected permit contract, got %s", got.Hex())
	}

	manager2, recorder2 := newTestManager(backend, stubSession{permit: false})
	defer recorder2.Close()
	if got := manager2.Spender(false); got != testProxy {
		t.Errorf("no bonus route: expected proxy router, got %s", got.Hex())
	}
	if got := manager2.Spender(true); got != testRouter {
		t.Errorf("bonus route: expected swap router, got %s", got.Hex())
	}
}

func TestApprove_UnlimitedThenSubmit(t *testing.T) {
	backend := &mockBackend{allowance: big.NewInt(0), submitHash: common.HexToHash("0xabc")}
	manager, recorder := newTestManager(backend, stubSession{permit: true})
	defer recorder.Close()

	result := manager.Approve(context.Background(), Request{Token: testToken, Amount: big.NewInt(100)})
	if result.Status != StatusSubmitted {
		t.Fatalf("expected StatusSubmitted, got %v (err=%v)", result.Status, result.Err)
	}
	if result.UsedExact {
		t.Errorf("expected unlimited approval")
	}
	if len(backend.submitAmounts) != 1 || backend.submitAmounts[0].Cmp(maxApproval) != 0 {
		t.Errorf("expected submit with unlimited sentinel, got %v", backend.submitAmounts)
	}
	if backend.gasLimits[0] != 60000 {
		t.Errorf("expected +20%% gas margin 60000, got %d", backend.gasLimits[0])
	}
	if state, _ := manager.StateFor(context.Background(), testToken, testPermit, big.NewInt(100)); state != StatePending {
		t.Errorf("expected Pending after submit, got %s", state)
	}
}

func TestApprove_EstimationFallbackUsesExactAmount(t *testing.T) {
	backend := &mockBackend{
		allowance:  big.NewInt(0),
		submitHash: common.HexToHash("0xabc"),
		estimateErrOn: func(amount *big.Int) error {
			if amount.Cmp(maxApproval) == 0 {
				return errors.New("unlimited approvals rejected")
			}
			return nil
		},
	}
	manager, recorder := newTestManager(backend, stubSession{permit: true})
	defer recorder.Close()

	required := big.NewInt(100)
	result := manager.Approve(context.Background(), Request{Token: testToken, Amount: required})
	if result.Status != StatusSubmitted {
		t.Fatalf("expected StatusSubmitted, got %v (err=%v)", result.Status, result.Err)
	}
	if !result.UsedExact {
		t.Errorf("expected exact-amount fallback")
	}
	if len(backend.estimateCalls) != 2 {
		t.Fatalf("expected 2 estimation calls, got %d", len(backend.estimateCalls))
	}
	if len(backend.submitAmounts) != 1 || backend.submitAmounts[0].Cmp(required) != 0 {
		t.Errorf("submitted amount must be the exact requirement, got %v", backend.submitAmounts)
	}
}

func TestApprove_BothEstimationsFail(t *testing.T) {
	backend := &mockBackend{
		allowance:     bigZero(),
		estimateErrOn: func(*big.Int) error { return errors.New("always fails") },
	}
	manager, recorder := newTestManager(backend, stubSession{permit: true})
	defer recorder.Close()

	result := manager.Approve(context.Background(), Request{Token: testToken, Amount: big.NewInt(100)})
	if result.Status != StatusFailed {
		t.Fatalf("expected StatusFailed, got %v", result.Status)
	}
	if !errors.Is(result.Err, ErrEstimationFailed) {
		t.Errorf("expected ErrEstimationFailed, got %v", result.Err)
	}
	if len(backend.submitAmounts) != 0 {
		t.Errorf("no transaction may be submitted after failed estimation")
	}
}

func TestApprove_NoopOutsideNotApproved(t *testing.T) {
	backend := &mockBackend{allowance: big.NewInt(1000)}
	manager, recorder := newTestManager(backend, stubSession{permit: true})
	defer recorder.Close()

	result := manager.Approve(context.Background(), Request{Token: testToken, Amount: big.NewInt(100)})
	if result.Status != StatusSkipped {
		t.Fatalf("expected StatusSkipped, got %v", result.Status)
	}
	if result.State != StateApproved {
		t.Errorf("expected Approved state in result, got %s", result.State)
	}
	if result.Diagnostic == "" {
		t.Errorf("skip must carry a diagnostic")
	}
	if len(backend.estimateCalls) != 0 || len(backend.submitAmounts) != 0 {
		t.Errorf("no network action may happen on skip")
	}
}

func TestConfirmPending_ClearsState(t *testing.T) {
	backend := &mockBackend{allowance: big.NewInt(0), submitHash: common.HexToHash("0xabc")}
	manager, recorder := newTestManager(backend, stubSession{permit: true})
	defer recorder.Close()

	result := manager.Approve(context.Background(), Request{Token: testToken, Amount: big.NewInt(100)})
	if result.Status != StatusSubmitted {
		t.Fatalf("expected StatusSubmitted, got %v", result.Status)
	}

	manager.ConfirmPending(testToken, result.Spender)
	if state, _ := manager.StateFor(context.Background(), testToken, result.Spender, big.NewInt(100)); state != StateNotApproved {
		t.Errorf("expected NotApproved after pending cleared (allowance still 0), got %s", state)
	}
}

func TestGasMargin(t *testing.T) {
	if got := gasMargin(100, false); got != 120 {
		t.Errorf("standard margin: expected 120, got %d", got)
	}
	if got := gasMargin(100, true); got != 150 {
		t.Errorf("bonus margin: expected 150, got %d", got)
	}
}

func bigZero() *big.Int { return big.NewInt(0) }
