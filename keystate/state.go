// Package keystate implements the preemptive key-state replicator
// (spec.md §4.3): it produces the exact host key_state[key_code] bytes
// for the current tick from script-issued press/release/hold calls,
// mirroring the host's two-phase pre-tick-accumulation /
// post-tick-cleanup lifecycle the same way the teacher's input.Machine
// mirrors the terminal driver's raw key events into InputState.
package keystate

const (
	// Pressed is bit 0: the key is down this tick (spec.md §3).
	Pressed byte = 1 << 0
	// Released is bit 1: the key was released this tick (spec.md §3).
	Released byte = 1 << 1
)

// KeyState is the per-key accumulator described in spec.md §3.
type KeyState struct {
	CurrentState  byte
	HadPressEvent bool
	HadRelease    bool
	Timestamp     uint64

	holdRemaining int // ticks left before an auto-scheduled release; 0 = none pending
}

// System is the preemptive key-state replicator for one input source
// (a script context's key commands). It is not safe for concurrent use;
// the scheduler serializes access the same way the teacher serializes
// input.Machine ticks onto the game thread.
type System struct {
	enabled bool
	keys    map[KeyCode]*KeyState
}

// NewSystem creates a disabled-by-default input system.
func NewSystem() *System {
	return &System{keys: make(map[KeyCode]*KeyState)}
}

// SetEnabled toggles the system. A disabled system is a no-op and must
// never touch the host buffer (spec.md §4.3).
func (s *System) SetEnabled(enabled bool) {
	s.enabled = enabled
}

func (s *System) state(code KeyCode) *KeyState {
	ks, ok := s.keys[code]
	if !ok {
		ks = &KeyState{}
		s.keys[code] = ks
	}
	return ks
}

// PressKeys immediately transitions each named key to PRESSED this tick.
func (s *System) PressKeys(spec string, currentTick uint64) {
	if !s.enabled {
		return
	}
	for _, code := range ParseKeySpec(spec) {
		s.press(code, currentTick)
	}
}

func (s *System) press(code KeyCode, currentTick uint64) {
	ks := s.state(code)
	ks.CurrentState = Pressed
	ks.HadPressEvent = true
	ks.HadRelease = false
	ks.Timestamp = currentTick
	ks.holdRemaining = 0
}

// PressKeysOneFrame presses now and schedules a release on the very next
// tick's prepare_next_frame.
func (s *System) PressKeysOneFrame(spec string, currentTick uint64) {
	if !s.enabled {
		return
	}
	for _, code := range ParseKeySpec(spec) {
		s.press(code, currentTick)
		s.state(code).holdRemaining = 1
	}
}

// HoldKeys presses now and schedules release after exactly ticks ticks.
func (s *System) HoldKeys(spec string, ticks int, currentTick uint64) {
	if !s.enabled {
		return
	}
	for _, code := range ParseKeySpec(spec) {
		s.press(code, currentTick)
		s.state(code).holdRemaining = ticks
	}
}

// ReleaseKeys sets RELEASED this tick (chord-release, tick-visible) and
// cancels any pending timed release.
func (s *System) ReleaseKeys(spec string, currentTick uint64) {
	if !s.enabled {
		return
	}
	for _, code := range ParseKeySpec(spec) {
		s.release(code, currentTick)
	}
}

func (s *System) release(code KeyCode, currentTick uint64) {
	ks := s.state(code)
	if ks.CurrentState&Pressed == 0 {
		return
	}
	ks.CurrentState |= Released
	ks.HadRelease = true
	ks.Timestamp = currentTick
	ks.holdRemaining = 0
}

// ReleaseAllKeys releases every currently-pressed key.
func (s *System) ReleaseAllKeys(currentTick uint64) {
	if !s.enabled {
		return
	}
	for code, ks := range s.keys {
		if ks.CurrentState&Pressed != 0 && ks.CurrentState&Released == 0 {
			s.release(code, currentTick)
		}
	}
}

// Apply overwrites buf[code] for every tracked key according to its
// KeyState. A disabled system leaves buf untouched entirely.
func (s *System) Apply(currentTick uint64, buf []byte) {
	if !s.enabled {
		return
	}
	for code, ks := range s.keys {
		if int(code) >= len(buf) {
			continue
		}
		buf[code] = ks.CurrentState
	}
}

// PrepareNextFrame performs post-phase cleanup per the §3 KeyState
// invariant: any key whose current_state has RELEASED set transitions to
// idle and both event flags reset; timed holds are decremented and
// auto-released when their timer reaches zero.
func (s *System) PrepareNextFrame(currentTick uint64) {
	for code, ks := range s.keys {
		if ks.CurrentState&Released != 0 {
			ks.CurrentState = 0
			ks.HadPressEvent = false
			ks.HadRelease = false
			continue
		}
		if ks.holdRemaining > 0 {
			ks.holdRemaining--
			if ks.holdRemaining == 0 {
				s.release(code, currentTick)
			}
		}
	}
}

// Snapshot returns a copy of the tracked KeyState for code, for tests and
// for the recorder's frame sampling.
func (s *System) Snapshot(code KeyCode) KeyState {
	ks, ok := s.keys[code]
	if !ok {
		return KeyState{}
	}
	return *ks
}
