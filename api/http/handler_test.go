package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forever-free1/kvs/metrics"
	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/storage/bitcask"
	"github.com/forever-free1/kvs/watch"
)

func newTestServer(t *testing.T) (*Server, *watch.Hub) {
	t.Helper()

	collector := metrics.New()
	db, err := bitcask.Open(t.TempDir(), bitcask.WithObserver(collector))
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	engine := storage.NewLockedEngine(collector.Instrument(db))
	hub := watch.NewHub()
	t.Cleanup(func() {
		hub.Close()
		engine.Close()
	})

	return NewServer("127.0.0.1:0", engine, hub, WithMetrics(collector.Handler())), hub
}

func do(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_SetGetRemove(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := do(t, s, http.MethodPut, "/v1/kv/name", `{"value":"tide"}`); rec.Code != http.StatusOK {
		t.Fatalf("set: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec := do(t, s, http.MethodGet, "/v1/kv/name", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var got ValueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if got.Key != "name" || got.Value != "tide" {
		t.Errorf("unexpected response: %+v", got)
	}

	if rec := do(t, s, http.MethodDelete, "/v1/kv/name", ""); rec.Code != http.StatusOK {
		t.Fatalf("remove: expected 200, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/v1/kv/name", ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after remove: expected 404, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/v1/kv/name", ""); rec.Code != http.StatusNotFound {
		t.Errorf("remove missing: expected 404, got %d", rec.Code)
	}
}

func TestServer_EmptyValueAndEscapedKey(t *testing.T) {
	s, _ := newTestServer(t)

	if rec := do(t, s, http.MethodPut, "/v1/kv/a%2Fb", `{"value":""}`); rec.Code != http.StatusOK {
		t.Fatalf("set: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	rec := do(t, s, http.MethodGet, "/v1/kv/a%2Fb", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var got ValueResponse
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Key != "a/b" || got.Value != "" {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestServer_BadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing value", `{}`},
		{"malformed", `{"value":`},
		{"wrong type", `{"value":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodPut, "/v1/kv/k", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPut, "/v1/kv/k", `{"value":"v"}`)

	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	var health map[string]any
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health["status"] != "ok" || health["keys"] != float64(1) {
		t.Errorf("unexpected health response: %v", health)
	}

	rec = do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `kvs_operations_total{op="set",result="ok"} 1`) {
		t.Errorf("metrics output missing set counter:\n%s", rec.Body)
	}
}

func TestServer_ClosedEngine(t *testing.T) {
	db, err := bitcask.Open(t.TempDir())
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	engine := storage.NewLockedEngine(db)
	engine.Close()
	s := NewServer("127.0.0.1:0", engine, nil)

	if rec := do(t, s, http.MethodGet, "/v1/kv/k", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/v1/watch", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("watch without hub: expected 503, got %d", rec.Code)
	}
}

func TestServer_Watch(t *testing.T) {
	s, hub := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/watch?prefix=user:", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("watch 请求失败: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || line != ": connected\n" {
		t.Fatalf("expected connected comment, got %q (%v)", line, err)
	}
	if hub.Count() != 1 {
		t.Fatalf("expected 1 watcher, got %d", hub.Count())
	}

	do(t, s, http.MethodPut, "/v1/kv/other", `{"value":"x"}`)
	do(t, s, http.MethodPut, "/v1/kv/user:1", `{"value":"alice"}`)

	var event *watch.Event
	for event == nil {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("读取事件失败: %v", err)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			event, err = watch.ParseEvent(strings.TrimSpace(data))
			if err != nil {
				t.Fatalf("解析事件失败: %v", err)
			}
		}
	}
	if event.Type != watch.EventSet || event.Key != "user:1" || event.Value != "alice" {
		t.Errorf("unexpected event: %+v", event)
	}
}
