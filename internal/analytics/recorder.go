package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hub-router/internal/config"
)

// State 表示会话在某一时刻所处的状态。
type State struct {
	State string `json:"state"`
	Time  int64  `json:"time"`
}

// Recorder 维护单个会话的埋点记录：一份可合并的会话快照加一条只追加的
// 状态历史。每次 Record 都会把完整快照异步上报到遥测端点，上报失败只记
// 日志，绝不影响交易主流程。
type Recorder struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
	started  time.Time

	mu      sync.Mutex
	record  map[string]interface{}
	current *State
	history []State

	queue     chan []byte
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRecorder 创建会话级埋点记录器并启动上报协程。
func NewRecorder(cfg config.AnalyticsConfig, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	r := &Recorder{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		started:  time.Now(),
		record:   map[string]interface{}{"_id": uuid.NewString()},
		queue:    make(chan []byte, cfg.QueueSize),
	}

	r.wg.Add(1)
	go r.dispatch()

	return r
}

// SessionID 返回本会话的标识。
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, _ := r.record["_id"].(string)
	return id
}

// Record 追加一次状态转移并合并附加字段，随后异步上报完整快照。
// 历史只追加、不修改，写入由互斥锁串行化。
func (r *Recorder) Record(state string, values map[string]interface{}) {
	r.mu.Lock()
	if r.current != nil {
		r.history = append(r.history, *r.current)
	}
	r.current = &State{
		State: state,
		Time:  time.Since(r.started).Milliseconds(),
	}
	for k, v := range values {
		r.record[k] = v
	}

	snapshot := make(map[string]interface{}, len(r.record)+2)
	for k, v := range r.record {
		snapshot[k] = v
	}
	snapshot["state"] = *r.current
	history := make([]State, len(r.history))
	copy(history, r.history)
	snapshot["history"] = history
	r.mu.Unlock()

	body, err := json.Marshal(snapshot)
	if err != nil {
		r.logger.Warn("序列化埋点快照失败", zap.Error(err))
		return
	}

	select {
	case r.queue <- body:
	default:
		r.logger.Warn("埋点队列已满，丢弃本次上报", zap.String("state", state))
	}
}

// Set 合并附加字段并异步上报快照，但不产生状态转移，供交易意图等
// 环境信息使用。
func (r *Recorder) Set(values map[string]interface{}) {
	r.mu.Lock()
	for k, v := range values {
		r.record[k] = v
	}

	snapshot := make(map[string]interface{}, len(r.record)+2)
	for k, v := range r.record {
		snapshot[k] = v
	}
	if r.current != nil {
		snapshot["state"] = *r.current
	}
	history := make([]State, len(r.history))
	copy(history, r.history)
	snapshot["history"] = history
	r.mu.Unlock()

	body, err := json.Marshal(snapshot)
	if err != nil {
		r.logger.Warn("序列化埋点快照失败", zap.Error(err))
		return
	}

	select {
	case r.queue <- body:
	default:
		r.logger.Warn("埋点队列已满，丢弃本次上报")
	}
}

// History 返回状态历史的副本，供测试与诊断使用。
func (r *Recorder) History() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.history))
	copy(out, r.history)
	return out
}

// Current 返回当前状态名，尚未记录任何状态时返回空串。
func (r *Recorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.State
}

// Close 关闭上报队列并等待剩余快照发送完毕。
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}

func (r *Recorder) dispatch() {
	defer r.wg.Done()

	for body := range r.queue {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, r.endpoint, bytes.NewReader(body))
		if err != nil {
			r.logger.Warn("构造埋点请求失败", zap.Error(err))
			continue
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			r.logger.Warn("埋点上报失败", zap.Error(err))
			continue
		}
		_ = resp.Body.Close()
	}
}
