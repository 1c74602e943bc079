package record

import "github.com/lixenwraith/tasrun/keystate"

// Player replays a decoded frame vector frame-accurately, edge-detecting
// each named key from one bit per tick the same way the teacher's
// input.Machine edge-detects raw terminal key events into press/release
// pairs (spec.md §4.4).
type Player struct {
	frames  []Frame // includes one trailing sentinel frame
	codes   [numNamedBits]keystate.KeyCode
	stopped bool
}

// NewPlayer wraps a decoded frame vector (as produced by Decode, which
// already appends the sentinel frame) for playback.
func NewPlayer(frames []Frame) *Player {
	return &Player{frames: frames, codes: ParseNamedKeyCodes()}
}

// TotalFrames is the playable frame count, excluding the sentinel.
func (p *Player) TotalFrames() int {
	if len(p.frames) == 0 {
		return 0
	}
	return len(p.frames) - 1
}

// Stopped reports whether playback has completed.
func (p *Player) Stopped() bool {
	return p.stopped
}

// Tick writes the remapped keys for currentTick into buf using
// convert(current_bit, next_bit) per spec.md §4.4, and reports whether
// playback just completed naturally (current_tick >= total_frames).
func (p *Player) Tick(currentTick uint64, buf []byte) (done bool) {
	total := p.TotalFrames()
	if int(currentTick) >= total {
		p.stopped = true
		return true
	}
	cur := p.frames[currentTick]
	next := p.frames[currentTick+1]
	for b := NamedBit(0); b < numNamedBits; b++ {
		code := p.codes[b]
		if int(code) >= len(buf) {
			continue
		}
		buf[code] = convert(cur.Bit(b), next.Bit(b))
	}
	return false
}

// DeltaTimeMs returns the frame delta the orchestrator forwards to the
// host's time hook for the given tick.
func (p *Player) DeltaTimeMs(currentTick uint64) float32 {
	if int(currentTick) >= p.TotalFrames() {
		return 0
	}
	return p.frames[currentTick].DeltaTimeMs
}

// convert implements spec.md §4.4's current/next bit table: idle when
// not currently held, PRESSED when still held next tick, PRESSED|RELEASED
// when this is the tick the key lifts.
func convert(current, next bool) byte {
	if !current {
		return 0
	}
	if next {
		return keystate.Pressed
	}
	return keystate.Pressed | keystate.Released
}
