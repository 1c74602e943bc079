package script

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/tasrun/buffer"
	"github.com/lixenwraith/tasrun/queue"
	"github.com/lixenwraith/tasrun/serialize"
)

// installRuntimeAPI installs the tas table a script interacts with: input
// commands, scheduler waits, messaging, shared-data access, and shared
// buffers (spec.md §6 "Script-facing APIs").
func installRuntimeAPI(c *ScriptContext) {
	L := c.VM
	tas := L.NewTable()

	fn := func(name string, f lua.LGFunction) {
		tas.RawSetString(name, L.NewFunction(f))
	}

	fn("wait", func(L *lua.LState) int {
		return L.Yield(lua.LNumber(L.CheckInt(1)))
	})
	fn("wait_until", func(L *lua.LState) int {
		return L.Yield(L.CheckFunction(1))
	})
	fn("wait_for", func(L *lua.LState) int {
		n := L.GetTop()
		t := L.NewTable()
		for i := 1; i <= n; i++ {
			t.RawSetInt(i, L.CheckNumber(i))
		}
		return L.Yield(t)
	})

	// press taps a key down for one tick; press_for holds it for an
	// explicit tick count; hold keeps it down until release is called.
	fn("press", func(L *lua.LState) int {
		c.Input.PressKeysOneFrame(L.CheckString(1), c.tick())
		return 0
	})
	fn("press_for", func(L *lua.LState) int {
		c.Input.HoldKeys(L.CheckString(1), L.CheckInt(2), c.tick())
		return 0
	})
	fn("hold", func(L *lua.LState) int {
		c.Input.PressKeys(L.CheckString(1), c.tick())
		return 0
	})
	fn("release", func(L *lua.LState) int {
		c.Input.ReleaseKeys(L.CheckString(1), c.tick())
		return 0
	})
	fn("release_all", func(L *lua.LState) int {
		c.Input.ReleaseAllKeys(c.tick())
		return 0
	})

	fn("current_tick", func(L *lua.LState) int {
		L.Push(lua.LNumber(c.tick()))
		return 1
	})
	fn("delta_time", func(L *lua.LState) int {
		L.Push(lua.LNumber(c.deltaTimeMs()))
		return 1
	})

	fn("send_message", func(L *lua.LState) int {
		target := L.CheckString(1)
		msgType := L.CheckString(2)
		payload, err := serialize.FromLua(L.CheckAny(3))
		if err != nil {
			L.Push(lua.LFalse)
			return 1
		}
		priority := L.OptInt(4, 0)
		ok := true
		if c.Bus != nil {
			ok = c.Bus.Enqueue(c.Name, target, msgType, payload, priority, queue.DropNewest) == nil
		}
		L.Push(lua.LBool(ok))
		return 1
	})
	fn("broadcast", func(L *lua.LState) int {
		msgType := L.CheckString(1)
		payload, err := serialize.FromLua(L.CheckAny(2))
		if err != nil {
			L.Push(lua.LFalse)
			return 1
		}
		priority := L.OptInt(3, 0)
		ok := true
		if c.Bus != nil {
			ok = c.Bus.Enqueue(c.Name, "*", msgType, payload, priority, queue.DropNewest) == nil
		}
		L.Push(lua.LBool(ok))
		return 1
	})
	fn("request", func(L *lua.LState) int {
		target := L.CheckString(1)
		msgType := L.CheckString(2)
		payload, err := serialize.FromLua(L.CheckAny(3))
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		timeoutMs := L.OptInt(4, 1000)
		if c.Bus == nil {
			L.Push(lua.LNil)
			return 1
		}
		resp, err := c.Bus.SendRequest(c.Name, target, msgType, payload, time.Duration(timeoutMs)*time.Millisecond)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(serialize.ToLua(L, resp))
		return 1
	})
	fn("respond", func(L *lua.LState) int {
		correlationID := L.CheckString(1)
		payload, err := serialize.FromLua(L.CheckAny(2))
		if err != nil {
			L.Push(lua.LFalse)
			return 1
		}
		ok := true
		if c.Bus != nil {
			ok = c.Bus.SendResponse(c.Name, "", correlationID, payload) == nil
		}
		L.Push(lua.LBool(ok))
		return 1
	})

	fn("on_event", func(L *lua.LState) int {
		c.Dispatcher.On(L.CheckString(1), L.CheckFunction(2))
		return 0
	})

	shared := L.NewTable()
	sfn := func(name string, f lua.LGFunction) {
		shared.RawSetString(name, L.NewFunction(f))
	}
	sfn("set", func(L *lua.LState) int {
		key := L.CheckString(1)
		v, err := serialize.FromLua(L.CheckAny(2))
		if err != nil {
			L.Push(lua.LFalse)
			return 1
		}
		expiry := uint64(L.OptInt(3, 0))
		if c.Shared != nil {
			c.Shared.Set(key, v, expiry)
		}
		L.Push(lua.LTrue)
		return 1
	})
	sfn("get", func(L *lua.LState) int {
		key := L.CheckString(1)
		def := lua.LNil
		if L.GetTop() >= 2 {
			def = L.Get(2)
		}
		if c.Shared == nil {
			L.Push(def)
			return 1
		}
		defVal, _ := serialize.FromLua(def)
		L.Push(serialize.ToLua(L, c.Shared.Get(key, c.tick(), defVal)))
		return 1
	})
	sfn("has", func(L *lua.LState) int {
		key := L.CheckString(1)
		ok := c.Shared != nil && c.Shared.Has(key, c.tick())
		L.Push(lua.LBool(ok))
		return 1
	})
	sfn("remove", func(L *lua.LState) int {
		if c.Shared != nil {
			c.Shared.Remove(L.CheckString(1))
		}
		return 0
	})
	sfn("clear", func(L *lua.LState) int {
		if c.Shared != nil {
			c.Shared.Clear()
		}
		return 0
	})
	sfn("keys", func(L *lua.LState) int {
		t := L.NewTable()
		if c.Shared != nil {
			for i, k := range c.Shared.GetKeys(c.tick()) {
				t.RawSetInt(i+1, lua.LString(k))
			}
		}
		L.Push(t)
		return 1
	})
	sfn("watch", func(L *lua.LState) int {
		key := L.CheckString(1)
		cb := L.CheckFunction(2)
		if c.Shared == nil {
			L.Push(lua.LNumber(0))
			return 1
		}
		gen := c.Shared.Watch(c.Name, key, c.Executing, func(k string, oldV, newV serialize.Value) {
			c.VM.CallByParam(lua.P{Fn: cb, NRet: 0, Protect: true},
				lua.LString(k), serialize.ToLua(c.VM, oldV), serialize.ToLua(c.VM, newV))
		})
		L.Push(lua.LNumber(gen))
		return 1
	})
	sfn("unwatch", func(L *lua.LState) int {
		key := L.CheckString(1)
		gen := uint64(L.CheckInt(2))
		if c.Shared != nil {
			c.Shared.Unwatch(key, gen)
		}
		return 0
	})
	tas.RawSetString("shared", shared)

	sharedBuffer := L.NewTable()
	bfn := func(name string, f lua.LGFunction) {
		sharedBuffer.RawSetString(name, L.NewFunction(f))
	}
	bfn("create", func(L *lua.LState) int {
		if c.Buffers == nil {
			L.Push(lua.LNil)
			return 1
		}
		h, err := c.Buffers.Create(L.CheckInt(1))
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(h))
		return 1
	})
	bfn("from_table", func(L *lua.LState) int {
		if c.Buffers == nil {
			L.Push(lua.LNil)
			return 1
		}
		h, err := c.Buffers.FromTable(L.CheckTable(1))
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(h))
		return 1
	})
	bfn("to_table", func(L *lua.LState) int {
		if c.Buffers == nil {
			L.Push(lua.LNil)
			return 1
		}
		v, err := c.Buffers.ToTable(L, buffer.Handle(L.CheckInt(1)))
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(v)
		return 1
	})
	tas.RawSetString("shared_buffer", sharedBuffer)

	tas.RawSetString("context_name", lua.LString(c.Name))
	L.SetGlobal("tas", tas)
}

func (c *ScriptContext) tick() uint64 {
	if c.CurrentTick == nil {
		return 0
	}
	return c.CurrentTick()
}

func (c *ScriptContext) deltaTimeMs() float64 {
	if c.DeltaTime == nil {
		return 0
	}
	return float64(c.DeltaTime())
}
