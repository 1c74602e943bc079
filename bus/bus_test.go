package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/lixenwraith/tasrun/queue"
	"github.com/lixenwraith/tasrun/serialize"
)

func alwaysAlive() bool { return true }

func TestDeliverToTargetedHandler(t *testing.T) {
	b := New(3, 0)
	var got Message
	var wg sync.WaitGroup
	wg.Add(1)
	b.Subscribe("ctxB", "ping", alwaysAlive, func(msg Message) {
		got = msg
		wg.Done()
	})

	if err := b.Enqueue("ctxA", "ctxB", "ping", serialize.Str("hi"), 1, queue.DropNewest); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b.Drain()
	wg.Wait()

	if got.Sender != "ctxA" || got.Type != "ping" {
		t.Fatalf("unexpected delivered message: %+v", got)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	b := New(3, 0)
	var delivered []string
	b.Subscribe("ctxA", "evt", alwaysAlive, func(msg Message) { delivered = append(delivered, "ctxA") })
	b.Subscribe("ctxB", "evt", alwaysAlive, func(msg Message) { delivered = append(delivered, "ctxB") })

	_ = b.Enqueue("ctxA", "*", "evt", serialize.Nil(), 0, queue.DropNewest)
	b.Drain()

	if len(delivered) != 1 || delivered[0] != "ctxB" {
		t.Fatalf("expected only ctxB to receive the broadcast, got %v", delivered)
	}
}

func TestDeadContextSkipped(t *testing.T) {
	b := New(3, 0)
	called := false
	b.Subscribe("ctxB", "ping", func() bool { return false }, func(msg Message) { called = true })
	_ = b.Enqueue("ctxA", "ctxB", "ping", serialize.Nil(), 0, queue.DropNewest)
	b.Drain()
	if called {
		t.Fatalf("handler for a dead context must not be invoked")
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	b := New(3, 0)
	b.Subscribe("server", "echo", alwaysAlive, func(msg Message) {
		_ = b.SendResponse("server", msg.Sender, msg.CorrelationID, msg.Payload)
	})

	done := make(chan serialize.Value, 1)
	go func() {
		v, err := b.SendRequest("client", "server", "echo", serialize.Str("hello"), time.Second)
		if err != nil {
			t.Errorf("SendRequest: %v", err)
		}
		done <- v
	}()

	// Drive delivery until the response shows up (simulating the context
	// manager's per-tick drain).
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.Drain()
		select {
		case v := <-done:
			if v.Str != "hello" {
				t.Fatalf("expected echoed payload, got %+v", v)
			}
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
	t.Fatalf("request/response did not complete before the test deadline")
}

func TestRequestTimesOutWithNil(t *testing.T) {
	b := New(3, 0)
	v, err := b.SendRequest("client", "nobody", "ping", serialize.Nil(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("expected timeout to return nil without error, got %v", err)
	}
	if !v.IsNil() {
		t.Fatalf("expected Nil value on timeout, got %+v", v)
	}
}
