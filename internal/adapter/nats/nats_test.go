package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/AgentForge/internal/logger"
	"github.com/Strob0t/AgentForge/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject returns an outbound per-task subject, which the stream
// captures and the validator accepts as any valid JSON.
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return messagequeue.TaskSubject(messagequeue.SubjectTaskEvents, "test-"+t.Name())
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	type payload struct {
		Msg string `json:"msg"`
	}
	want := payload{Msg: "hello-nats"}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu       sync.Mutex
		received *payload
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		var got payload
		if err := json.Unmarshal(d, &got); err != nil {
			return err
		}
		mu.Lock()
		received = &got
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.Msg != want.Msg {
		t.Errorf("received = %+v, want %+v", received, want)
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	const wantReqID = "req-abc-123"

	var (
		mu       sync.Mutex
		gotReqID string
		done     = make(chan struct{})
		once     sync.Once
	)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		mu.Lock()
		gotReqID = logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotReqID != wantReqID {
		t.Errorf("request ID = %q, want %q", gotReqID, wantReqID)
	}
}

func TestQueue_InvalidControlMessageGoesToDLQ(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()
	subject := messagequeue.SubjectTaskInterrupt

	called := make(chan struct{}, 1)
	stop, err := q.Subscribe(ctx, subject, func(context.Context, string, []byte) error {
		called <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	dlq, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject + dlqSuffix,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create DLQ consumer: %v", err)
	}
	got := make(chan []byte, 1)
	sub, err := dlq.Consume(func(msg jetstream.Msg) {
		select {
		case got <- msg.Data():
		default:
		}
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume DLQ: %v", err)
	}
	defer sub.Stop()

	bad := []byte(`{"task_id":"t1"}`) // message missing
	if err := q.Publish(ctx, subject, bad); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-got:
		if string(data) != string(bad) {
			t.Errorf("dlq data = %s, want %s", data, bad)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for DLQ message")
	}
	select {
	case <-called:
		t.Error("handler must not see invalid messages")
	default:
	}
}

func TestQueue_KeyValueCreatesBucket(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "AGENTFORGE_TEST_KV", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	if _, err := kv.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	again, err := q.KeyValue(ctx, "AGENTFORGE_TEST_KV", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue reopen: %v", err)
	}
	entry, err := again.Get(ctx, "k")
	if err != nil || string(entry.Value()) != "v" {
		t.Fatalf("Get = %v, %v", entry, err)
	}
}
