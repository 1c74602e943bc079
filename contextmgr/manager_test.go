package contextmgr

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/tasrun/script"
)

func TestGetOrCreateGlobalIsSingleton(t *testing.T) {
	m, err := New(1<<20, func() uint64 { return 0 }, func() float32 { return 0 })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, err := m.GetOrCreateGlobal()
	if err != nil {
		t.Fatalf("GetOrCreateGlobal: %v", err)
	}
	b, err := m.GetOrCreateGlobal()
	if err != nil {
		t.Fatalf("GetOrCreateGlobal: %v", err)
	}
	if a != b {
		t.Fatalf("expected the same Global context on repeated calls")
	}
	if a.Priority != 0 {
		t.Fatalf("expected Global context priority 0, got %d", a.Priority)
	}
}

func TestGetOrCreateLevelNamingAndPriority(t *testing.T) {
	m, err := New(1<<20, func() uint64 { return 0 }, func() float32 { return 0 })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, err := m.GetOrCreateLevel("forest")
	if err != nil {
		t.Fatalf("GetOrCreateLevel: %v", err)
	}
	if ctx.Name != "level_forest" {
		t.Fatalf("expected name 'level_forest', got %q", ctx.Name)
	}
	if ctx.Priority != levelContextPriority {
		t.Fatalf("expected priority %d, got %d", levelContextPriority, ctx.Priority)
	}
}

func TestCreateCustomContextEnforcesPerLevelLimit(t *testing.T) {
	m, err := New(1<<20, func() uint64 { return 0 }, func() float32 { return 0 })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.SetLimits(100, 1)
	if _, err := m.CreateCustomContext("c1", 50, "forest", Limits{}); err != nil {
		t.Fatalf("CreateCustomContext c1: %v", err)
	}
	if _, err := m.CreateCustomContext("c2", 50, "forest", Limits{}); err == nil {
		t.Fatalf("expected max_custom_contexts_per_level to reject a second context in the same level")
	}
}

func TestDestroyContextRemovesItAndUnsubscribes(t *testing.T) {
	m, err := New(1<<20, func() uint64 { return 0 }, func() float32 { return 0 })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, err := m.CreateContext("custom1", script.Custom, 50)
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	m.DestroyContext(ctx.Name)
	if _, ok := m.contexts[ctx.Name]; ok {
		t.Fatalf("expected context to be removed after DestroyContext")
	}
}

func TestTickAllOrdersByPriorityDescending(t *testing.T) {
	m, err := New(1<<20, func() uint64 { return 0 }, func() float32 { return 0 })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	low, err := m.CreateContext("low", script.Custom, 10)
	if err != nil {
		t.Fatalf("CreateContext low: %v", err)
	}
	high, err := m.CreateContext("high", script.Custom, 90)
	if err != nil {
		t.Fatalf("CreateContext high: %v", err)
	}
	ordered := m.contextsByPriorityDesc()
	if len(ordered) != 2 || ordered[0].Name != high.Name || ordered[1].Name != low.Name {
		t.Fatalf("expected [high, low] order, got %v", namesOf(ordered))
	}
	// exercise a tick pass with nothing executing: must not panic.
	m.TickAll(0)
}

func TestFireGameEventToAllForwardsArgs(t *testing.T) {
	m, err := New(1<<20, func() uint64 { return 0 }, func() float32 { return 0 })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, err := m.CreateContext("listener", script.Custom, 50)
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if err := ctx.VM.DoString(`
		captured = nil
		tas.on_event("hit", function(dmg) captured = dmg end)
	`); err != nil {
		t.Fatalf("DoString: %v", err)
	}

	m.FireGameEventToAll(0, "hit", int32(7))
	ctx.Tick(0)

	got := ctx.VM.GetGlobal("captured")
	if lua.LVAsNumber(got) != 7 {
		t.Fatalf("expected captured=7, got %v", got)
	}
}

func TestFireGameEventToContextForwardsArgs(t *testing.T) {
	m, err := New(1<<20, func() uint64 { return 0 }, func() float32 { return 0 })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, err := m.CreateContext("listener", script.Custom, 50)
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if err := ctx.VM.DoString(`
		captured = nil
		tas.on_event("ping", function(msg) captured = msg end)
	`); err != nil {
		t.Fatalf("DoString: %v", err)
	}

	m.FireGameEventToContext(0, ctx.Name, "ping", "hello")
	ctx.Tick(0)

	got := ctx.VM.GetGlobal("captured")
	if lua.LVAsString(got) != "hello" {
		t.Fatalf("expected captured=\"hello\", got %v", got)
	}
}

func namesOf(ctxs []*script.ScriptContext) []string {
	out := make([]string, len(ctxs))
	for i, c := range ctxs {
		out[i] = c.Name
	}
	return out
}
