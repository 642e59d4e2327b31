package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// MockStreamWriter records XAdd calls
type MockStreamWriter struct {
	XAddFunc func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	calls    []*redis.XAddArgs
}

func (m *MockStreamWriter) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	m.calls = append(m.calls, a)
	if m.XAddFunc != nil {
		return m.XAddFunc(ctx, a)
	}
	return redis.NewStringResult("1-0", nil)
}

func TestPublisher_Publish(t *testing.T) {
	writer := &MockStreamWriter{}
	p := NewPublisher(writer, "", 0)
	p.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

	err := p.Publish(context.Background(), "transaction.created", map[string]string{"id": "tx-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(writer.calls) != 1 {
		t.Fatalf("expected 1 XAdd call, got %d", len(writer.calls))
	}
	args := writer.calls[0]
	if args.Stream != DefaultStream {
		t.Errorf("expected stream %s, got %s", DefaultStream, args.Stream)
	}
	if args.MaxLen != 0 {
		t.Errorf("expected uncapped stream, got MaxLen %d", args.MaxLen)
	}

	values, ok := args.Values.(map[string]any)
	if !ok {
		t.Fatalf("expected map values, got %T", args.Values)
	}
	raw, ok := values["event"].([]byte)
	if !ok {
		t.Fatalf("expected event bytes, got %T", values["event"])
	}

	var event struct {
		Type      string            `json:"type"`
		Timestamp time.Time         `json:"timestamp"`
		Data      map[string]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Type != "transaction.created" {
		t.Errorf("expected type transaction.created, got %s", event.Type)
	}
	if event.Data["id"] != "tx-1" {
		t.Errorf("expected data id tx-1, got %v", event.Data)
	}
	if !event.Timestamp.Equal(p.now()) {
		t.Errorf("expected timestamp %v, got %v", p.now(), event.Timestamp)
	}
}

func TestPublisher_CapsStream(t *testing.T) {
	writer := &MockStreamWriter{}
	p := NewPublisher(writer, "custom", 1000)

	if err := p.Publish(context.Background(), "product.blocked", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	args := writer.calls[0]
	if args.Stream != "custom" || args.MaxLen != 1000 || !args.Approx {
		t.Errorf("expected capped custom stream, got %+v", args)
	}
}

func TestPublisher_WriteFailure(t *testing.T) {
	writer := &MockStreamWriter{
		XAddFunc: func(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
			return redis.NewStringResult("", errors.New("connection refused"))
		},
	}
	p := NewPublisher(writer, "", 0)

	if err := p.Publish(context.Background(), "transaction.created", nil); err == nil {
		t.Error("expected error when XAdd fails")
	}
}

func TestPublisher_UnmarshalableData(t *testing.T) {
	writer := &MockStreamWriter{}
	p := NewPublisher(writer, "", 0)

	if err := p.Publish(context.Background(), "transaction.created", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
	if len(writer.calls) != 0 {
		t.Error("expected no write for unmarshalable data")
	}
}
