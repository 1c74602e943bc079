package script

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/tasrun/keystate"
	"github.com/lixenwraith/tasrun/shareddata"
)

func TestTasTableExposesCoreFunctions(t *testing.T) {
	c := New("test", Global, 0)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.VM.Close()

	tick := uint64(0)
	c.AttachServices(nil, shareddata.New(), nil, func() uint64 { return tick }, func() float32 { return 16.5 })

	tbl, ok := c.VM.GetGlobal("tas").(*lua.LTable)
	if !ok {
		t.Fatalf("expected global 'tas' to be a table")
	}
	for _, name := range []string{
		"wait", "wait_until", "wait_for", "press", "press_for", "hold",
		"release", "release_all", "current_tick", "delta_time",
		"send_message", "broadcast", "request", "respond", "on_event",
	} {
		if _, ok := tbl.RawGetString(name).(*lua.LFunction); !ok {
			t.Fatalf("expected tas.%s to be a function", name)
		}
	}
	if _, ok := tbl.RawGetString("shared").(*lua.LTable); !ok {
		t.Fatalf("expected tas.shared to be a table")
	}
	if _, ok := tbl.RawGetString("shared_buffer").(*lua.LTable); !ok {
		t.Fatalf("expected tas.shared_buffer to be a table")
	}
}

func TestTasPressHoldDelegateToInputSystem(t *testing.T) {
	c := New("test", Global, 0)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.VM.Close()
	c.AttachServices(nil, shareddata.New(), nil, func() uint64 { return 0 }, func() float32 { return 0 })

	up := keystate.ParseKeySpec("up")[0]
	down := keystate.ParseKeySpec("down")[0]

	if err := c.VM.DoString(`tas.press("down")`); err != nil {
		t.Fatalf("tas.press: %v", err)
	}
	if got := c.Input.Snapshot(down).CurrentState; got != keystate.Pressed {
		t.Fatalf("after tas.press: down state = %d, want Pressed", got)
	}
	if err := c.VM.DoString(`tas.hold("up")`); err != nil {
		t.Fatalf("tas.hold: %v", err)
	}
	if got := c.Input.Snapshot(up).CurrentState; got != keystate.Pressed {
		t.Fatalf("after tas.hold: up state = %d, want Pressed", got)
	}
	if err := c.VM.DoString(`tas.release("up")`); err != nil {
		t.Fatalf("tas.release: %v", err)
	}
	if got := c.Input.Snapshot(up).CurrentState; got != keystate.Pressed|keystate.Released {
		t.Fatalf("after tas.release: up state = %d, want Pressed|Released", got)
	}
}

func TestTasSharedSetGet(t *testing.T) {
	c := New("test", Global, 0)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer c.VM.Close()
	c.AttachServices(nil, shareddata.New(), nil, func() uint64 { return 0 }, func() float32 { return 0 })

	if err := c.VM.DoString(`
		tas.shared.set("score", 42)
		result = tas.shared.get("score")
	`); err != nil {
		t.Fatalf("shared set/get: %v", err)
	}
	got := c.VM.GetGlobal("result")
	if lua.LVAsNumber(got) != 42 {
		t.Fatalf("expected result=42, got %v", got)
	}
}
