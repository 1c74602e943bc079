package hooks

// Mode selects which delta-time source Clock.DeltaTimeMs reports, matching
// the priority order in spec.md §4.12. It is kept independent of the
// orchestrator's own state machine (see the tasfsm package) so this
// package has no dependency on it; the orchestrator simply calls SetMode
// whenever its own state changes.
type Mode int

const (
	// ModeIdle reports ok=false: the runtime does not override the
	// host's own delta time.
	ModeIdle Mode = iota
	// ModeRecording: the recorder's configured delta is authoritative.
	ModeRecording
	// ModePlayingRecord: the current frame's delta is authoritative.
	ModePlayingRecord
	// ModePlayingScript: the project's configured delta is authoritative.
	ModePlayingScript
)

// Clock implements TimeHook, generalizing the teacher's PausableClock
// idea (a single authoritative time source substituted for wall-clock
// reads) from wall-clock pausing to tick-indexed delta substitution.
type Clock struct {
	mode Mode

	recordingDeltaMs float32
	scriptDeltaMs     float32
	frameDeltaFn      func(tick uint64) float32
}

// NewClock creates a Clock in ModeIdle.
func NewClock() *Clock {
	return &Clock{}
}

// SetMode switches which source DeltaTimeMs consults.
func (c *Clock) SetMode(m Mode) {
	c.mode = m
}

// Mode returns the active mode.
func (c *Clock) Mode() Mode {
	return c.mode
}

// SetRecordingDelta configures the authoritative delta used while
// recording (spec.md §4.5 recorder configuration).
func (c *Clock) SetRecordingDelta(deltaMs float32) {
	c.recordingDeltaMs = deltaMs
}

// SetScriptDelta configures the authoritative delta used while playing a
// script, taken from the project's configured update_rate.
func (c *Clock) SetScriptDelta(deltaMs float32) {
	c.scriptDeltaMs = deltaMs
}

// SetFrameDeltaSource wires the record player's per-frame delta lookup,
// consulted while in ModePlayingRecord.
func (c *Clock) SetFrameDeltaSource(fn func(tick uint64) float32) {
	c.frameDeltaFn = fn
}

// DeltaTimeMs implements TimeHook per spec.md §4.12's priority order.
func (c *Clock) DeltaTimeMs(tick uint64) (float32, bool) {
	switch c.mode {
	case ModeRecording:
		return c.recordingDeltaMs, true
	case ModePlayingRecord:
		if c.frameDeltaFn == nil {
			return 0, false
		}
		return c.frameDeltaFn(tick), true
	case ModePlayingScript:
		return c.scriptDeltaMs, true
	default:
		return 0, false
	}
}
