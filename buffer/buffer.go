// Package buffer implements reference-counted shared byte buffers for
// zero-copy payloads across script contexts (spec.md §4.2).
package buffer

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/tasrun/errs"
	"github.com/lixenwraith/tasrun/serialize"
)

// Handle identifies a shared buffer. It is the same representation as
// serialize.BufferHandle so SerializedValue.BufferRef values round-trip
// through a Manager without conversion.
type Handle = serialize.BufferHandle

type sharedBuffer struct {
	mu       sync.RWMutex
	data     []byte
	refcount atomic.Int64
}

// Manager owns every shared buffer created for a runtime instance and
// enforces the global max_size bound from spec.md §4.2.
type Manager struct {
	mu      sync.Mutex
	buffers map[Handle]*sharedBuffer
	nextID  atomic.Uint64
	maxSize int
}

// NewManager creates a Manager whose individual buffers may not exceed
// maxSize bytes.
func NewManager(maxSize int) *Manager {
	return &Manager{
		buffers: make(map[Handle]*sharedBuffer),
		maxSize: maxSize,
	}
}

func (m *Manager) alloc(data []byte) Handle {
	h := Handle(m.nextID.Add(1))
	sb := &sharedBuffer{data: data}
	sb.refcount.Store(1)
	m.mu.Lock()
	m.buffers[h] = sb
	m.mu.Unlock()
	return h
}

func (m *Manager) lookup(h Handle) (*sharedBuffer, bool) {
	m.mu.Lock()
	sb, ok := m.buffers[h]
	m.mu.Unlock()
	return sb, ok
}

// Create allocates a zero-initialized buffer of the given size.
func (m *Manager) Create(size int) (Handle, error) {
	if size <= 0 || size > m.maxSize {
		return 0, errs.New(errs.InvalidArgument, "Create", "size out of (0, max_size] range")
	}
	return m.alloc(make([]byte, size)), nil
}

// CreateFrom copies bytes into a new buffer.
func (m *Manager) CreateFrom(src []byte) (Handle, error) {
	if len(src) == 0 || len(src) > m.maxSize {
		return 0, errs.New(errs.InvalidArgument, "CreateFrom", "size out of (0, max_size] range")
	}
	data := make([]byte, len(src))
	copy(data, src)
	return m.alloc(data), nil
}

// CreateTyped encodes a trivially-copyable value with a fixed binary
// layout (little-endian, matching the record codec's convention) and
// stores it as a buffer.
func CreateTyped[T any](m *Manager, value T) (Handle, error) {
	var buf []byte
	w := &byteWriter{}
	if err := binary.Write(w, binary.LittleEndian, value); err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, "CreateTyped", err)
	}
	buf = w.b
	return m.CreateFrom(buf)
}

type byteWriter struct{ b []byte }

func (w *byteWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// Data returns a read-only snapshot of the buffer's bytes.
func (m *Manager) Data(h Handle) ([]byte, bool) {
	sb, ok := m.lookup(h)
	if !ok {
		return nil, false
	}
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	out := make([]byte, len(sb.data))
	copy(out, sb.data)
	return out, true
}

// Size returns the buffer's length.
func (m *Manager) Size(h Handle) (int, bool) {
	sb, ok := m.lookup(h)
	if !ok {
		return 0, false
	}
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return len(sb.data), true
}

// Read copies size bytes starting at offset into dst, bounds-checked.
func (m *Manager) Read(h Handle, dst []byte, size, offset int) (int, error) {
	sb, ok := m.lookup(h)
	if !ok {
		return 0, errs.New(errs.InvalidArgument, "Read", "unknown buffer handle")
	}
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	if offset < 0 || size < 0 || offset+size > len(sb.data) {
		return 0, errs.New(errs.InvalidArgument, "Read", "read out of bounds")
	}
	n := copy(dst, sb.data[offset:offset+size])
	return n, nil
}

// Write copies size bytes from src into the buffer starting at offset,
// bounds-checked. Concurrent writers racing on the same buffer after it
// has already been handed to a message are a documented usage constraint
// (spec.md §4.2), not something this method synchronizes against beyond
// the buffer's own mutex.
func (m *Manager) Write(h Handle, src []byte, size, offset int) (int, error) {
	sb, ok := m.lookup(h)
	if !ok {
		return 0, errs.New(errs.InvalidArgument, "Write", "unknown buffer handle")
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if offset < 0 || size < 0 || offset+size > len(sb.data) {
		return 0, errs.New(errs.InvalidArgument, "Write", "write out of bounds")
	}
	n := copy(sb.data[offset:offset+size], src[:size])
	return n, nil
}

// Clone creates an independent copy of the buffer's current contents.
func (m *Manager) Clone(h Handle) (Handle, error) {
	data, ok := m.Data(h)
	if !ok {
		return 0, errs.New(errs.InvalidArgument, "Clone", "unknown buffer handle")
	}
	return m.alloc(data), nil
}

// Retain increments the refcount; paired with Release.
func (m *Manager) Retain(h Handle) {
	if sb, ok := m.lookup(h); ok {
		sb.refcount.Add(1)
	}
}

// Release decrements the refcount; the last drop frees the buffer.
func (m *Manager) Release(h Handle) {
	sb, ok := m.lookup(h)
	if !ok {
		return
	}
	if sb.refcount.Add(-1) <= 0 {
		m.mu.Lock()
		delete(m.buffers, h)
		m.mu.Unlock()
	}
}

// FromTable serializes a Lua table to JSON and stores it as a buffer
// (spec.md §4.2 from_table).
func (m *Manager) FromTable(t *lua.LTable) (Handle, error) {
	v, err := serialize.FromLua(t)
	if err != nil {
		return 0, err
	}
	data, err := serialize.ToJSON(v)
	if err != nil {
		return 0, err
	}
	return m.CreateFrom(data)
}

// ToTable parses a JSON buffer into a Lua table (spec.md §4.2 to_table).
// Arrays are detected as tables with sequential integer keys starting at
// 1, matching the JSON array/object distinction directly.
func (m *Manager) ToTable(L *lua.LState, h Handle) (lua.LValue, error) {
	data, ok := m.Data(h)
	if !ok {
		return lua.LNil, errs.New(errs.InvalidArgument, "ToTable", "unknown buffer handle")
	}
	v, err := serialize.FromJSON(data)
	if err != nil {
		return lua.LNil, err
	}
	return serialize.ToLua(L, v), nil
}
