package analytics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hub-router/internal/config"
)

func testConfig(endpoint string) config.AnalyticsConfig {
	return config.AnalyticsConfig{
		Endpoint:  endpoint,
		Timeout:   time.Second,
		QueueSize: 16,
	}
}

func TestRecorder_HistoryIsAppendOnlyAndOrdered(t *testing.T) {
	r := NewRecorder(testConfig("http://127.0.0.1:1"), nil)
	defer r.Close()

	r.Record("first", nil)
	r.Record("second", map[string]interface{}{"k": "v"})
	r.Record("third", nil)

	history := r.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 archived states, got %d", len(history))
	}
	if history[0].State != "first" || history[1].State != "second" {
		t.Errorf("unexpected history order: %+v", history)
	}
	if r.Current() != "third" {
		t.Errorf("expected current state third, got %s", r.Current())
	}
	if history[0].Time > history[1].Time {
		t.Errorf("history timestamps must be monotonic: %+v", history)
	}
}

func TestRecorder_PostsFullSnapshot(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		raw, _ := io.ReadAll(req.Body)
		mu.Lock()
		bodies = append(bodies, raw)
		mu.Unlock()
	}))
	defer srv.Close()

	r := NewRecorder(testConfig(srv.URL), nil)
	r.Record("quoteRequest", map[string]interface{}{"dexAmountOut": "950"})
	r.Record("quoteSuccess", map[string]interface{}{"clobAmountOut": "960"})
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(bodies))
	}

	var snapshot map[string]interface{}
	if err := json.Unmarshal(bodies[1], &snapshot); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snapshot["_id"] == "" || snapshot["_id"] == nil {
		t.Errorf("snapshot missing session id")
	}
	if snapshot["dexAmountOut"] != "950" {
		t.Errorf("merged field lost: %v", snapshot["dexAmountOut"])
	}
	if snapshot["clobAmountOut"] != "960" {
		t.Errorf("expected merged clobAmountOut, got %v", snapshot["clobAmountOut"])
	}
	history, ok := snapshot["history"].([]interface{})
	if !ok || len(history) != 1 {
		t.Fatalf("expected history with 1 entry, got %v", snapshot["history"])
	}
}

func TestRecorder_UnreachableEndpointNeverBlocks(t *testing.T) {
	r := NewRecorder(config.AnalyticsConfig{
		Endpoint:  "http://127.0.0.1:1",
		Timeout:   100 * time.Millisecond,
		QueueSize: 1,
	}, nil)
	defer r.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			r.Record("spam", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
}

func TestRecorder_IsClobTradeComparison(t *testing.T) {
	r := NewRecorder(testConfig("http://127.0.0.1:1"), nil)
	defer r.Close()

	r.OnQuoteRequest("950")
	if !r.isClobTrade("960") {
		t.Errorf("960 > 950 should count as clob trade")
	}
	if r.isClobTrade("900") {
		t.Errorf("900 < 950 should not count as clob trade")
	}
	if r.isClobTrade("not-a-number") {
		t.Errorf("malformed amount must not count as clob trade")
	}
}

func TestRecorder_SetMergesWithoutStateTransition(t *testing.T) {
	r := NewRecorder(testConfig("http://127.0.0.1:1"), nil)
	defer r.Close()

	r.Record("walletConnected", nil)
	r.OnSrcToken("0xaaa")
	r.OnDstToken("0xbbb")
	r.OnSrcAmount("1000")

	if len(r.History()) != 0 {
		t.Errorf("Set must not archive state transitions, got %v", r.History())
	}
	if r.Current() != "walletConnected" {
		t.Errorf("Set must not change the current state, got %q", r.Current())
	}
}

func TestRecorder_SessionIDStable(t *testing.T) {
	r := NewRecorder(testConfig("http://127.0.0.1:1"), nil)
	defer r.Close()

	id := r.SessionID()
	if id == "" {
		t.Fatal("session id must not be empty")
	}
	r.Record("anything", nil)
	if r.SessionID() != id {
		t.Errorf("session id changed within one session")
	}
}
