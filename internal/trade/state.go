package trade

import "sync"

// SessionState 是会话共享的交易状态。唯一写者是编排器，其余组件
// （授权层、上层界面）通过 Snapshot 只读访问。isFailed 即会话熔断器：
// 一旦置位便保持粘性，直到新会话或强制路由覆盖。
type SessionState struct {
	mu          sync.RWMutex
	isLoading   bool
	hubSelected bool
	isFailed    bool
	amountOut   string
}

// StateSnapshot 为只读状态副本。
type StateSnapshot struct {
	IsLoading   bool
	HubSelected bool
	IsFailed    bool
	AmountOut   string
}

// NewSessionState 创建全新会话状态，熔断器随之复位。
func NewSessionState() *SessionState {
	return &SessionState{}
}

// Snapshot 返回当前状态副本。
func (s *SessionState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		IsLoading:   s.isLoading,
		HubSelected: s.hubSelected,
		IsFailed:    s.isFailed,
		AmountOut:   s.amountOut,
	}
}

// Failed 返回熔断器是否已触发。
func (s *SessionState) Failed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isFailed
}

func (s *SessionState) setLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = v
}

// beginAttempt 进入一次新的交易尝试：清空上次的选择与失败标记。
// isLoading 由调用方单独控制，短路返回时也要完成一次翻转。
func (s *SessionState) beginAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hubSelected = false
	s.isFailed = false
	s.amountOut = ""
}

// markAccepted 在报价通过裁决后、签名开始前记录选中的输出量，
// 允许上层提前展示所选通道。
func (s *SessionState) markAccepted(amountOut string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hubSelected = true
	s.amountOut = amountOut
}

// markFailed 触发熔断器并清除本次选择。
func (s *SessionState) markFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isFailed = true
	s.hubSelected = false
	s.amountOut = ""
}
