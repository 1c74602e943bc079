// Package record implements the binary record codec and frame-accurate
// player (spec.md §4.4): a little-endian, zstd-compressed trace of
// per-tick key bits and delta times, replayed bit-for-bit through the
// same key-state convention the preemptive input system produces.
package record

import "github.com/lixenwraith/tasrun/keystate"

// NamedBit indexes one of the nine reserved key-mask fields every
// RecordFrame must carry (spec.md §3 RecordFrame).
type NamedBit int

const (
	BitUp NamedBit = iota
	BitDown
	BitLeft
	BitRight
	BitShift
	BitSpace
	BitQ
	BitEsc
	BitEnter
	numNamedBits
)

// FrameSize is sizeof(RecordFrame) on the wire: 4 bytes delta_time_ms
// (f32) + 4 bytes key mask (u32, holding at least numNamedBits fields).
const FrameSize = 8

// Frame is one decoded RecordFrame: delta_time_ms plus a bit-packed key
// mask covering at least the nine named fields.
type Frame struct {
	DeltaTimeMs float32
	KeyMask     uint32
}

// Bit reports whether bit b is set in the frame's key mask.
func (f Frame) Bit(b NamedBit) bool {
	return f.KeyMask&(1<<uint(b)) != 0
}

// SetBit sets or clears bit b in the frame's key mask.
func (f *Frame) SetBit(b NamedBit, v bool) {
	if v {
		f.KeyMask |= 1 << uint(b)
	} else {
		f.KeyMask &^= 1 << uint(b)
	}
}

// ReleasedBit reports whether named bit b carried keystate.Released on
// this tick, i.e. the live buffer read 0x03 (spec.md §3's same-tick
// press-then-release convention). It is stored in the same key mask,
// offset past the nine Pressed bits, so FrameSize is unchanged.
func (f Frame) ReleasedBit(b NamedBit) bool {
	return f.KeyMask&(1<<uint(numNamedBits+b)) != 0
}

// SetReleasedBit sets or clears the Released-edge bit for b.
func (f *Frame) SetReleasedBit(b NamedBit, v bool) {
	if v {
		f.KeyMask |= 1 << uint(numNamedBits+b)
	} else {
		f.KeyMask &^= 1 << uint(numNamedBits+b)
	}
}

// namedBitKey maps a NamedBit to the keystate key name it drives.
var namedBitKey = [numNamedBits]string{
	BitUp: "up", BitDown: "down", BitLeft: "left", BitRight: "right",
	BitShift: "shift", BitSpace: "space", BitQ: "q", BitEsc: "escape",
	BitEnter: "enter",
}

// KeyCodeFor resolves the key_state buffer slot a named bit is remapped
// to, per spec.md §3's reserved logical-key remapping.
func KeyCodeFor(b NamedBit) keystate.KeyCode {
	codes := ParseNamedKeyCodes()
	return codes[b]
}

// ParseNamedKeyCodes resolves every reserved logical key to its KeyCode.
func ParseNamedKeyCodes() [numNamedBits]keystate.KeyCode {
	var out [numNamedBits]keystate.KeyCode
	for b, name := range namedBitKey {
		codes := keystate.ParseKeySpec(name)
		if len(codes) == 1 {
			out[b] = codes[0]
		}
	}
	return out
}

// SampleFrame reads the nine named key slots out of a live key_state
// buffer into a Frame, the recorder's sampling half of spec.md §4.5
// ("the recorder samples live key bits into a frame vector"). Both the
// Pressed and Released bits are captured, so a same-tick tap (buffer
// byte 0x03) survives the round trip instead of collapsing into a
// plain press.
func SampleFrame(buf []byte, deltaTimeMs float32) Frame {
	var f Frame
	codes := ParseNamedKeyCodes()
	for b := NamedBit(0); b < numNamedBits; b++ {
		code := codes[b]
		if int(code) >= len(buf) {
			continue
		}
		state := buf[code]
		if state&keystate.Pressed != 0 {
			f.SetBit(b, true)
		}
		if state&keystate.Released != 0 {
			f.SetReleasedBit(b, true)
		}
	}
	f.DeltaTimeMs = deltaTimeMs
	return f
}
