package redisqueue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
)

func TestQueue_Key(t *testing.T) {
	q := New(nil)
	if got := q.Key(domain.PriorityHigh); got != "inboxhooks:dispatch:high" {
		t.Errorf("Key(high) = %q", got)
	}

	q = New(nil, WithKeyPrefix("test"))
	if got := q.Key(domain.PriorityLow); got != "test:low" {
		t.Errorf("Key(low) = %q", got)
	}
}

func TestQueue_KeysOrderedByUrgency(t *testing.T) {
	q := New(nil)
	keys := q.keys()
	want := []string{"inboxhooks:dispatch:high", "inboxhooks:dispatch:medium", "inboxhooks:dispatch:low"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestDecode_PreservesPayloadNumbers(t *testing.T) {
	item := domain.NewQueuedCommand(domain.DispatchCommand{
		Target:  "https://api.citadel.ai/webhook",
		Payload: map[string]any{"event": "message_created", "id": int64(9007199254740993)},
		Kind:    domain.KindAPIInboxWebhook,
	}, domain.PriorityHigh, time.Now())

	body, err := encode(item)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.ID != item.ID || got.Priority != domain.PriorityHigh || got.Command.Kind != domain.KindAPIInboxWebhook {
		t.Errorf("decoded = %+v", got)
	}
	n, ok := got.Command.Payload["id"].(json.Number)
	if !ok {
		t.Fatalf("id type = %T, want json.Number", got.Command.Payload["id"])
	}
	if n.String() != "9007199254740993" {
		t.Errorf("id = %s", n)
	}
}

func TestDecode_InvalidPriorityDefaultsToMedium(t *testing.T) {
	got, err := decode(`{"id":"6f1c1f2e-7d0a-4a53-9d0b-6e2f0d9d1a11","priority":"urgent","command":{"target":"x","kind":"assistant_webhook"}}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Priority != domain.PriorityMedium {
		t.Errorf("Priority = %q, want medium", got.Priority)
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := decode("not json"); err == nil {
		t.Error("expected error")
	}
}

// TestQueue_Redis runs against a live server when REDIS_TEST_ADDR is set.
func TestQueue_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prefix := "inboxhooks-test:" + time.Now().Format("150405.000000")
	q := New(client, WithKeyPrefix(prefix), WithPollTimeout(100*time.Millisecond))
	defer client.Del(context.Background(), q.keys()...)

	cmd := func(event string) domain.DispatchCommand {
		return domain.DispatchCommand{Target: "http://localhost", Payload: map[string]any{"event": event}, Kind: domain.KindAssistantWebhook}
	}
	if err := q.Enqueue(ctx, cmd("low"), domain.PriorityLow); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, cmd("high"), domain.PriorityHigh); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	n, err := q.Len(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Len = %d, %v", n, err)
	}

	out := make(chan domain.QueuedCommand)
	runCtx, stop := context.WithCancel(ctx)
	go q.Run(runCtx, out)

	first := <-out
	second := <-out
	stop()

	if first.Command.Event() != "high" || second.Command.Event() != "low" {
		t.Errorf("order = %s, %s; want high, low", first.Command.Event(), second.Command.Event())
	}
}
