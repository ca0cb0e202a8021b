package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"evacroute/internal/model"
	"evacroute/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
	Next          *time.Time
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError, Next: nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 3)
	w.HTTP = srv.Client()
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "paris", "", model.EventRoutesComputed, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce()

	if gotType != model.EventRoutesComputed || !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("bad signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
	if due, _ := rs.FetchDueWebhookDeliveries(context.Background(), 10); len(due) != 0 {
		t.Fatalf("delivered item still due: %+v", due)
	}
}

func TestWorkerProcessOnce_RetryThenDeadLetter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 2)
	w.HTTP = srv.Client()
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "paris", "", model.EventGraphUpdated, srv.URL, "", []byte(`{}`))

	before := time.Now()
	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 || rs.marks[0].Next == nil {
		t.Fatalf("expected retry mark, got: %+v", rs.marks)
	}
	if !rs.marks[0].Next.After(before) {
		t.Fatalf("retry should be scheduled in the future")
	}
	if len(rs.fails) != 0 {
		t.Fatalf("dead-lettered too early")
	}

	// second attempt reaches MaxAttempts
	w.deliver(context.Background(), store.WebhookDelivery{ID: id, City: "paris", EventType: model.EventGraphUpdated, URL: srv.URL, Payload: []byte(`{}`), Attempts: 1})
	if len(rs.fails) != 1 || rs.fails[0].ID != id {
		t.Fatalf("expected fail recorded, got %+v", rs.fails)
	}
	dlq, _, _ := rs.ListWebhookDLQ(context.Background(), "paris", "", 10)
	if len(dlq) != 1 {
		t.Fatalf("expected one DLQ entry, got %d", len(dlq))
	}
}

func TestWorkerUnreachableEndpoint(t *testing.T) {
	rs := &recordStore{Memory: store.NewMemory()}
	w := NewWorker(rs, 1)
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "paris", "", model.EventGraphUpdated, "http://127.0.0.1:1/hook", "", []byte(`{}`))
	w.processOnce()
	if len(rs.fails) != 1 || rs.fails[0].LastErr == "" {
		t.Fatalf("expected transport error to be recorded: %+v", rs.fails)
	}
}

func TestNextBackoff(t *testing.T) {
	cases := map[int]time.Duration{-1: time.Second, 0: time.Second, 3: 8 * time.Second, 10: 1024 * time.Second, 40: 1024 * time.Second}
	for attempts, want := range cases {
		if got := nextBackoff(attempts); got != want {
			t.Errorf("nextBackoff(%d)=%v want %v", attempts, got, want)
		}
	}
}

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{City: "paris", URL: "https://example.invalid/a", Events: []string{model.EventEvacuationPlanned}})
	_, _ = m.CreateSubscription(ctx, model.SubscriptionRequest{City: "paris", URL: "https://example.invalid/b", Events: []string{model.EventGraphUpdated}})
	p := NewPublisher(m)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if n := p.Emit(ctx, "paris", model.EventEvacuationPlanned, map[string]string{"planId": "p1"}); n != 1 {
		t.Fatalf("queued %d deliveries, want 1", n)
	}
	if n := p.Emit(ctx, "lyon", model.EventEvacuationPlanned, nil); n != 0 {
		t.Fatalf("no subscribers in lyon, queued %d", n)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].URL != "https://example.invalid/a" {
		t.Fatalf("unexpected deliveries: %+v", due)
	}
	var ev Event
	if err := json.Unmarshal(due[0].Payload, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.City != "paris" || ev.Type != model.EventEvacuationPlanned || ev.TS != "2026-01-02T03:04:05Z" || ev.ID == "" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignHMAC("k", body)
	if !VerifyHMAC("k", body, sig) {
		t.Fatal("signature did not verify")
	}
	if VerifyHMAC("other", body, sig) || VerifyHMAC("k", body, "zz") {
		t.Fatal("bad signature accepted")
	}
}
