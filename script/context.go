package script

import (
	"bytes"
	"log"
	"os"
	"runtime"

	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/tasrun/buffer"
	"github.com/lixenwraith/tasrun/bus"
	"github.com/lixenwraith/tasrun/errs"
	"github.com/lixenwraith/tasrun/keystate"
	"github.com/lixenwraith/tasrun/project"
	"github.com/lixenwraith/tasrun/shareddata"
)

// ContextType is one of the three kinds a ScriptContext may be
// (spec.md §3 ScriptContext).
type ContextType int

const (
	Global ContextType = iota
	Level
	Custom
)

const defaultSleepInterval = 30

// ScriptContext isolates one script's VM, scheduler, input system, and
// event subscriptions (spec.md §4.7).
type ScriptContext struct {
	Name     string
	Type     ContextType
	Priority int32

	VM         *lua.LState
	Scheduler  *Scheduler
	Input      *keystate.System
	Dispatcher *EventDispatcher

	pendingEvents    []pendingGameEvent
	sleeping         bool
	ticksSinceActive uint64
	sleepInterval    uint64
	memoryLimitBytes uint64 // 0 = unset

	resolvedProject *project.Resolved
	executing       bool

	ownerGoroutine string // debug-build thread/goroutine pin, empty until initialized

	// Cross-context services wired in by the context manager at
	// creation time (spec.md §4.8); nil until AttachServices is called.
	Bus         *bus.Bus
	Shared      *shareddata.Store
	Buffers     *buffer.Manager
	CurrentTick func() uint64
	DeltaTime   func() float32
}

// AttachServices wires the cross-context collaborators the runtime API
// surface needs: the message bus, shared-data store, shared-buffer
// manager, and tick/delta accessors. Called once by the context manager
// before Initialize.
func (c *ScriptContext) AttachServices(b *bus.Bus, sd *shareddata.Store, bufs *buffer.Manager, tickFn func() uint64, deltaFn func() float32) {
	c.Bus = b
	c.Shared = sd
	c.Buffers = bufs
	c.CurrentTick = tickFn
	c.DeltaTime = deltaFn
}

type pendingGameEvent struct {
	Tick uint64
	Name string
	Args []lua.LValue
}

// New creates an uninitialized ScriptContext. Initialize must be called
// on the owner goroutine before use.
func New(name string, typ ContextType, priority int32) *ScriptContext {
	return &ScriptContext{Name: name, Type: typ, Priority: priority, sleepInterval: defaultSleepInterval}
}

func currentGoroutineID() string {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return ""
	}
	return string(fields[1])
}

// assertOwnerThread panics in debug builds if called from a goroutine
// other than the one that initialized this context (spec.md §4.7, §5:
// "Each ScriptContext is pinned to the thread that initialized it
// (asserted in debug builds)").
func (c *ScriptContext) assertOwnerThread() {
	if !debugAssertions {
		return
	}
	id := currentGoroutineID()
	if c.ownerGoroutine == "" {
		c.ownerGoroutine = id
		return
	}
	if c.ownerGoroutine != id {
		panic("script: ScriptContext " + c.Name + " accessed from a non-owner goroutine")
	}
}

// debugAssertions gates the owner-thread check; set to true in debug
// builds (spec.md §4.7, §5). Disabled by default to avoid the
// runtime.Stack cost on every call in production.
var debugAssertions = false

// Initialize creates the VM, opens the curated standard library set,
// installs runtime APIs, and creates the scheduler/dispatcher/input-system
// trio. It sets no garbage-collector mode; the VM runs with gopher-lua's
// defaults. Must run on the owner thread (spec.md §4.7).
func (c *ScriptContext) Initialize() error {
	c.assertOwnerThread()

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	// Curated stdlib set per spec.md §4.7: base, string, math, table,
	// coroutine, debug, package, os, io. Security restrictions on os/io
	// are explicitly deferred by the spec.
	for _, pair := range []struct {
		n string
		f lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.CoroutineLibName, lua.OpenCoroutine},
		{lua.DebugLibName, lua.OpenDebug},
		{lua.OsLibName, lua.OpenOs},
		{lua.IoLibName, lua.OpenIo},
	} {
		L.Push(L.NewFunction(pair.f))
		L.Push(lua.LString(pair.n))
		if err := L.PCall(1, 0, nil); err != nil {
			L.Close()
			return errs.Wrap(errs.ScriptLoadFailure, "Initialize", err)
		}
	}
	c.VM = L
	c.Scheduler = NewScheduler(L)
	c.Dispatcher = NewEventDispatcher(L)
	c.Input = keystate.NewSystem()
	c.Input.SetEnabled(true)

	installRuntimeAPI(c)
	return nil
}

// LoadAndExecute resolves the entry-script path (extracting archived
// projects on demand), runs the script once, looks up the global symbol
// main, requires it to be callable, and enqueues it as the first
// coroutine task (spec.md §4.7).
func (c *ScriptContext) LoadAndExecute(projectPath string) error {
	c.assertOwnerThread()

	resolved, err := project.Resolve(projectPath)
	if err != nil {
		return err
	}
	c.resolvedProject = resolved

	data, err := os.ReadFile(resolved.EntryPath)
	if err != nil {
		return errs.Wrap(errs.ScriptLoadFailure, "LoadAndExecute", err)
	}
	if err := c.VM.DoString(string(data)); err != nil {
		return errs.Wrap(errs.ScriptRuntime, "LoadAndExecute", err)
	}

	mainFn, ok := c.VM.GetGlobal("main").(*lua.LFunction)
	if !ok {
		return errs.New(errs.ScriptLoadFailure, "LoadAndExecute", "entry script must define a callable global 'main'")
	}
	c.Scheduler.Spawn(mainFn)
	c.executing = true
	return nil
}

// UpdateRateHz returns the loaded project's configured update_rate, or 0
// if no project has been loaded yet (LoadAndExecute not called or failed
// before resolving the manifest).
func (c *ScriptContext) UpdateRateHz() int {
	if c.resolvedProject == nil {
		return 0
	}
	return c.resolvedProject.Manifest.UpdateRate
}

// Stop clears scheduler tasks, clears event listeners, cleans up the
// project's temporary directory, and marks the context not-executing.
func (c *ScriptContext) Stop() {
	c.assertOwnerThread()
	c.Scheduler = NewScheduler(c.VM)
	c.Dispatcher.Clear()
	if c.resolvedProject != nil {
		if err := c.resolvedProject.Cleanup(); err != nil {
			log.Printf("script: cleanup of project temp dir for %q: %v", c.Name, err)
		}
		c.resolvedProject = nil
	}
	c.executing = false
	c.pendingEvents = nil
	c.sleeping = false
}

// Reinitialize resets all runtime state (scheduler, events, input,
// sleeping) and forces a full GC cycle, but preserves the VM and
// registered APIs, for reuse from the context manager's VM pool
// (spec.md §4.7).
func (c *ScriptContext) Reinitialize(newName string, newPriority int32) {
	c.assertOwnerThread()
	c.Stop()
	c.VM.SetGlobal("__context_name", lua.LString(newName))
	c.Name = newName
	c.Priority = newPriority
	c.Input = keystate.NewSystem()
	c.Input.SetEnabled(true)
	c.ticksSinceActive = 0
	c.VM.GC()
}

// Shutdown unregisters from the message bus and shared-data store
// (performed by the caller, which holds those references), stops the
// context, and destroys the VM. Must run on the owner thread.
func (c *ScriptContext) Shutdown() {
	c.assertOwnerThread()
	c.Stop()
	c.VM.Close()
}

// Executing reports whether LoadAndExecute has run and Stop has not.
func (c *ScriptContext) Executing() bool {
	return c.executing
}

// QueueGameEvent appends a pending game event for the next Tick.
func (c *ScriptContext) QueueGameEvent(currentTick uint64, name string, args ...lua.LValue) {
	c.pendingEvents = append(c.pendingEvents, pendingGameEvent{Tick: currentTick, Name: name, Args: args})
}

// Sleeping reports whether the context may skip most ticks.
func (c *ScriptContext) Sleeping() bool {
	return c.sleeping
}

// ShouldTickThisFrame applies the sleep_interval throttle: a sleeping
// context is ticked every sleep_interval frames instead of every frame,
// and at once when a game event is pending (spec.md §4.7).
func (c *ScriptContext) ShouldTickThisFrame() bool {
	if !c.sleeping || len(c.pendingEvents) > 0 {
		return true
	}
	if c.ticksSinceActive%c.sleepInterval == 0 {
		return true
	}
	c.ticksSinceActive++
	return false
}

// Tick drains pending events into the dispatcher, ticks the scheduler,
// and re-evaluates whether this context may sleep.
func (c *ScriptContext) Tick(currentTick uint64) {
	c.assertOwnerThread()

	woke := len(c.pendingEvents) > 0
	for _, ev := range c.pendingEvents {
		c.Dispatcher.Fire(ev.Name, ev.Args...)
	}
	c.pendingEvents = nil

	c.Scheduler.Tick(currentTick)

	if woke {
		c.sleeping = false
		c.ticksSinceActive = 0
	} else {
		c.ticksSinceActive++
	}

	c.sleeping = !c.Scheduler.IsRunning() && len(c.pendingEvents) == 0
}

// MemoryBytes reports the VM's currently reported memory usage via Lua's
// own collectgarbage("count") (kilobytes of live Lua memory), used by
// the context manager's per-tick over-limit check (spec.md §4.8).
func (c *ScriptContext) MemoryBytes() uint64 {
	gc, ok := c.VM.GetGlobal("collectgarbage").(*lua.LFunction)
	if !ok {
		return 0
	}
	if err := c.VM.CallByParam(lua.P{Fn: gc, NRet: 1, Protect: true}, lua.LString("count")); err != nil {
		return 0
	}
	ret := c.VM.Get(-1)
	c.VM.Pop(1)
	kb, ok := ret.(lua.LNumber)
	if !ok {
		return 0
	}
	return uint64(float64(kb) * 1024)
}

// SetMemoryLimit sets the optional per-context memory limit in bytes.
func (c *ScriptContext) SetMemoryLimit(limit uint64) {
	c.memoryLimitBytes = limit
}

// MemoryLimitBytes returns the configured memory limit, or 0 if unset.
func (c *ScriptContext) MemoryLimitBytes() uint64 {
	return c.memoryLimitBytes
}
