package shareddata

import (
	"testing"

	"github.com/lixenwraith/tasrun/serialize"
)

func TestSetAlwaysNotifiesEvenWithIdenticalValue(t *testing.T) {
	s := New()
	var notifications int
	s.Watch("ctx", "k", func() bool { return true }, func(key string, old, nw serialize.Value) {
		notifications++
	})
	s.Set("k", serialize.Num(1), 0)
	s.Set("k", serialize.Num(1), 0)
	s.Tick(0)
	if notifications != 2 {
		t.Fatalf("expected 2 notifications for 2 sets of identical value, got %d", notifications)
	}
}

func TestExpiryQueuesNilNotification(t *testing.T) {
	s := New()
	lastNew := serialize.Str("unset")
	s.Watch("ctx", "k", func() bool { return true }, func(key string, old, nw serialize.Value) {
		lastNew = nw
	})
	s.Set("k", serialize.Num(42), 100)
	s.Tick(50)
	if !s.Has("k", 50) {
		t.Fatalf("expected key to still be live before expiry")
	}
	s.Tick(150)
	if !lastNew.IsNil() {
		t.Fatalf("expected nil-change notification after expiry, got %+v", lastNew)
	}
	if s.Has("k", 150) {
		t.Fatalf("expected key to be expired")
	}
}

func TestWatchSkipsDeadContext(t *testing.T) {
	s := New()
	called := false
	s.Watch("ctx", "k", func() bool { return false }, func(key string, old, nw serialize.Value) {
		called = true
	})
	s.Set("k", serialize.Num(1), 0)
	s.Tick(0)
	if called {
		t.Fatalf("watch callback for dead context must not fire")
	}
}

func TestUnwatchRemovesOnlyThatRegistration(t *testing.T) {
	s := New()
	count1, count2 := 0, 0
	g1 := s.Watch("ctx1", "k", func() bool { return true }, func(string, serialize.Value, serialize.Value) { count1++ })
	s.Watch("ctx2", "k", func() bool { return true }, func(string, serialize.Value, serialize.Value) { count2++ })

	s.Unwatch("k", g1)
	s.Set("k", serialize.Num(1), 0)
	s.Tick(0)

	if count1 != 0 {
		t.Fatalf("unwatched registration should not fire, got count1=%d", count1)
	}
	if count2 != 1 {
		t.Fatalf("remaining registration should fire once, got count2=%d", count2)
	}
}

func TestGetKeysAndSizeSkipExpired(t *testing.T) {
	s := New()
	s.Set("a", serialize.Num(1), 0)
	s.Set("b", serialize.Num(2), 10)
	if s.GetSize(0) != 2 {
		t.Fatalf("expected 2 live keys, got %d", s.GetSize(0))
	}
	keys := s.GetKeys(20)
	if len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("expected only 'a' to remain live, got %v", keys)
	}
}
