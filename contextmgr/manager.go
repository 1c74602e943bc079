// Package contextmgr implements the context manager (spec.md §4.8): it
// owns every ScriptContext, the shared-data store, and the message bus,
// routes game events by subscription, ticks contexts in priority order,
// and pools VMs for reuse the way a connection pool reuses expensive
// handles.
package contextmgr

import (
	"log"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/tasrun/buffer"
	"github.com/lixenwraith/tasrun/bus"
	"github.com/lixenwraith/tasrun/errs"
	"github.com/lixenwraith/tasrun/script"
	"github.com/lixenwraith/tasrun/serialize"
	"github.com/lixenwraith/tasrun/shareddata"
)

const (
	globalContextName        = "global"
	levelContextPriority      = 100
	defaultMaxCustomTotal     = 64
	defaultMaxCustomPerLevel  = 16
	defaultPoolSize           = 8
)

// Limits bounds custom-context creation (spec.md §4.8).
type Limits struct {
	MaxTotalCustomContexts    int
	MaxCustomContextsPerLevel int
	MemoryLimitBytes          uint64
}

// Manager owns every ScriptContext plus the shared-data store and
// message bus collaborators every context is wired to.
type Manager struct {
	mu       sync.Mutex
	contexts map[string]*script.ScriptContext
	byLevel  map[string]int // level name -> custom-context count

	Bus     *bus.Bus
	Shared  *shareddata.Store
	Buffers *buffer.Manager

	pool        *lru.Cache[string, *script.ScriptContext]
	maxPoolSize int

	maxTotalCustom    int
	maxCustomPerLevel int

	tickFn  func() uint64
	deltaFn func() float32
}

// New creates a Manager with its own Bus/Store/Buffer collaborators.
// deltaFn reports the delta time (ms) the orchestrator most recently
// substituted, wired into every context's tas.delta_time().
func New(maxBufferSize int, tickFn func() uint64, deltaFn func() float32) (*Manager, error) {
	pool, err := lru.New[string, *script.ScriptContext](defaultPoolSize)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "New", err)
	}
	return &Manager{
		contexts:          make(map[string]*script.ScriptContext),
		byLevel:           make(map[string]int),
		Bus:               bus.New(9, 0),
		Shared:            shareddata.New(),
		Buffers:           buffer.NewManager(maxBufferSize),
		pool:              pool,
		maxPoolSize:       defaultPoolSize,
		maxTotalCustom:    defaultMaxCustomTotal,
		maxCustomPerLevel: defaultMaxCustomPerLevel,
		tickFn:            tickFn,
		deltaFn:           deltaFn,
	}, nil
}

// SetLimits overrides the default custom-context caps.
func (m *Manager) SetLimits(maxTotal, maxPerLevel int) {
	m.maxTotalCustom = maxTotal
	m.maxCustomPerLevel = maxPerLevel
}

func (m *Manager) newContext(name string, typ script.ContextType, priority int32) (*script.ScriptContext, error) {
	ctx := script.New(name, typ, priority)
	ctx.AttachServices(m.Bus, m.Shared, m.Buffers, m.tickFn, m.deltaFn)
	if err := ctx.Initialize(); err != nil {
		return nil, err
	}
	return ctx, nil
}

// CreateContext returns the existing context if name clashes; otherwise
// creates, initializes, and registers a new one (spec.md §4.8).
func (m *Manager) CreateContext(name string, typ script.ContextType, priority int32) (*script.ScriptContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.contexts[name]; ok {
		return existing, nil
	}
	ctx, err := m.newContext(name, typ, priority)
	if err != nil {
		return nil, err
	}
	m.contexts[name] = ctx
	return ctx, nil
}

// GetOrCreateGlobal returns the single Global context at priority 0.
func (m *Manager) GetOrCreateGlobal() (*script.ScriptContext, error) {
	return m.CreateContext(globalContextName, script.Global, 0)
}

// GetOrCreateLevel returns the Level context for levelName, named
// "level_<levelName>" at priority 100.
func (m *Manager) GetOrCreateLevel(levelName string) (*script.ScriptContext, error) {
	return m.CreateContext("level_"+levelName, script.Level, levelContextPriority)
}

// CreateCustomContext enforces max_total_custom_contexts and
// max_custom_contexts_per_level, and records a per-context memory limit.
func (m *Manager) CreateCustomContext(name string, priority int32, levelName string, limits Limits) (*script.ScriptContext, error) {
	m.mu.Lock()
	if existing, ok := m.contexts[name]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	totalCustom := 0
	for n := range m.byLevel {
		totalCustom += m.byLevel[n]
	}
	if totalCustom >= m.maxTotalCustom {
		m.mu.Unlock()
		return nil, errs.New(errs.InvalidArgument, "CreateCustomContext", "max_total_custom_contexts exceeded")
	}
	if m.byLevel[levelName] >= m.maxCustomPerLevel {
		m.mu.Unlock()
		return nil, errs.New(errs.InvalidArgument, "CreateCustomContext", "max_custom_contexts_per_level exceeded")
	}
	m.mu.Unlock()

	ctx, err := m.newContext(name, script.Custom, priority)
	if err != nil {
		return nil, err
	}
	if limits.MemoryLimitBytes > 0 {
		ctx.SetMemoryLimit(limits.MemoryLimitBytes)
	}

	m.mu.Lock()
	m.contexts[name] = ctx
	m.byLevel[levelName]++
	m.mu.Unlock()
	return ctx, nil
}

// DestroyContext unsubscribes from all events, removes message and
// watch handlers, shuts down the context, and erases it.
func (m *Manager) DestroyContext(name string) {
	m.mu.Lock()
	ctx, ok := m.contexts[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.contexts, name)
	m.mu.Unlock()

	m.Bus.Unsubscribe(name)
	m.Shared.UnwatchAll(name)
	ctx.Shutdown()
}

// contextsByPriorityDesc returns every context sorted by priority
// descending, for the tick pass.
func (m *Manager) contextsByPriorityDesc() []*script.ScriptContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*script.ScriptContext, 0, len(m.contexts))
	for _, c := range m.contexts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// TickAll runs one full tick pass per spec.md §4.8/§5's ordering
// contract: shared-data TTL + watches, message delivery, then contexts
// in descending priority, destroying any that exceed their memory limit.
func (m *Manager) TickAll(currentTick uint64) {
	m.Shared.Tick(currentTick)
	m.Bus.Drain()

	contexts := m.contextsByPriorityDesc()
	var overLimit []string
	for _, ctx := range contexts {
		if !ctx.Executing() {
			continue
		}
		if limit := ctx.MemoryLimitBytes(); limit > 0 && ctx.MemoryBytes() > limit {
			log.Printf("contextmgr: context %q exceeded its memory limit, destroying", ctx.Name)
			overLimit = append(overLimit, ctx.Name)
			continue
		}
		if !ctx.ShouldTickThisFrame() {
			continue
		}
		ctx.Tick(currentTick)
	}

	for _, name := range overLimit {
		m.DestroyContext(name)
	}
}

// FireGameEventToAll delivers event, with args converted into each target
// context's own VM, to every context whose dispatcher has a listener
// registered for it (spec.md §4.8 subscription-based routing,
// "FireGameEventToAll(event, args…)").
func (m *Manager) FireGameEventToAll(currentTick uint64, event string, args ...any) {
	values, err := gameEventArgs(event, args)
	if err != nil {
		return
	}
	m.mu.Lock()
	targets := make([]*script.ScriptContext, 0, len(m.contexts))
	for _, c := range m.contexts {
		if c.Dispatcher.HasListeners(event) {
			targets = append(targets, c)
		}
	}
	m.mu.Unlock()
	for _, c := range targets {
		c.QueueGameEvent(currentTick, event, luaArgsFor(c, values)...)
	}
}

// FireGameEventToContext delivers event, with args converted into the
// target context's own VM, to a single named context.
func (m *Manager) FireGameEventToContext(currentTick uint64, name, event string, args ...any) {
	values, err := gameEventArgs(event, args)
	if err != nil {
		return
	}
	m.mu.Lock()
	ctx, ok := m.contexts[name]
	m.mu.Unlock()
	if ok {
		ctx.QueueGameEvent(currentTick, event, luaArgsFor(ctx, values)...)
	}
}

// gameEventArgs converts host-supplied Go values into the restricted
// SerializedValue algebra once per call, so each target context below
// only has to materialize them into its own *lua.LState.
func gameEventArgs(event string, args []any) ([]serialize.Value, error) {
	values := make([]serialize.Value, len(args))
	for i, a := range args {
		v, err := serialize.FromAny(a)
		if err != nil {
			log.Printf("contextmgr: dropping unrepresentable arg %d for game event %q: %v", i, event, err)
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// luaArgsFor materializes already-converted values into ctx's own VM, the
// same way a message payload is rehydrated per receiving context.
func luaArgsFor(ctx *script.ScriptContext, values []serialize.Value) []lua.LValue {
	out := make([]lua.LValue, len(values))
	for i, v := range values {
		out[i] = serialize.ToLua(ctx.VM, v)
	}
	return out
}

// ReleaseOrPoolContext parks a non-pinned-type context (not Global) into
// the LRU pool up to max_pool_size, instead of destroying it outright.
func (m *Manager) ReleaseOrPoolContext(name string) {
	m.mu.Lock()
	ctx, ok := m.contexts[name]
	if !ok || ctx.Type == script.Global {
		m.mu.Unlock()
		return
	}
	delete(m.contexts, name)
	m.mu.Unlock()

	m.Bus.Unsubscribe(name)
	m.Shared.UnwatchAll(name)
	ctx.Stop()
	m.pool.Add(name, ctx)
}

// AcquirePooledContext reinitializes a pooled VM instead of creating a
// new one, if one of the matching type is available; otherwise it falls
// through to CreateContext.
func (m *Manager) AcquirePooledContext(typ script.ContextType, name string, priority int32) (*script.ScriptContext, error) {
	keys := m.pool.Keys()
	for _, k := range keys {
		ctx, ok := m.pool.Get(k)
		if !ok || ctx.Type != typ {
			continue
		}
		m.pool.Remove(k)
		ctx.Reinitialize(name, priority)
		m.mu.Lock()
		m.contexts[name] = ctx
		m.mu.Unlock()
		return ctx, nil
	}
	return m.CreateContext(name, typ, priority)
}
