package recorder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lixenwraith/tasrun/record"
)

// GenerationOptions configures the textual script a Generator produces
// (spec.md §4.5).
type GenerationOptions struct {
	ProjectName string
	Author      string
	TargetLevel string
	Description string
	UpdateRate  int
	Flags       map[string]bool
}

// Generator turns a recorded frame vector into a Lua script expressing
// press/release calls at exact ticks plus wait calls to align to the
// next event, in the teacher's terse generated-code style: one blank line
// after the header, and a "-- event" comment line only for recorded game
// events.
type Generator struct {
	Options GenerationOptions
}

// NewGenerator builds a Generator from the given options.
func NewGenerator(opts GenerationOptions) *Generator {
	return &Generator{Options: opts}
}

// transition classifies what happened to a named key between the
// previous emitted state and the current frame.
type transition int

const (
	// transPressed: the key went down and is still down at the end of
	// this frame; emitted as tas.hold.
	transPressed transition = iota
	// transReleased: a previously held key went up this frame; emitted
	// as tas.release.
	transReleased
	// transPressedAndReleased: the key went down and back up within the
	// same tick (a same-tick tap, live buffer byte 0x03) with no prior
	// hold in effect; emitted as a single tas.press atomic.
	transPressedAndReleased
)

// Generate emits a complete Lua script reproducing the given frame
// vector's input trace. Transitions are detected against a running
// held-state per key, not the raw previous frame, so a same-tick tap
// (Pressed and Released both set) never bleeds into the following
// frame as a spurious release (spec.md §4.5).
func (g *Generator) Generate(frames []RawFrameData) string {
	var b strings.Builder
	g.writeHeader(&b)

	held := make(map[record.NamedBit]bool)
	lastTick := uint32(0)
	for i, rf := range frames {
		transitions := detectTransitions(held, rf.Frame)
		if len(transitions) > 0 {
			if rf.TickIndex > lastTick && i > 0 {
				fmt.Fprintf(&b, "tas.wait(%d)\n", rf.TickIndex-lastTick)
			}
			emitTransitions(&b, transitions)
			lastTick = rf.TickIndex
		}
		for bit, tr := range transitions {
			switch tr {
			case transPressed:
				held[bit] = true
			case transReleased, transPressedAndReleased:
				held[bit] = false
			}
		}
		for _, ev := range rf.Events {
			fmt.Fprintf(&b, "-- event: %s(%d)\n", ev.Name, ev.Data)
		}
	}
	return b.String()
}

func (g *Generator) writeHeader(b *strings.Builder) {
	o := g.Options
	fmt.Fprintf(b, "-- generated script\n")
	fmt.Fprintf(b, "-- project: %s\n", o.ProjectName)
	if o.Author != "" {
		fmt.Fprintf(b, "-- author: %s\n", o.Author)
	}
	if o.Description != "" {
		fmt.Fprintf(b, "-- %s\n", o.Description)
	}
	fmt.Fprintf(b, "manifest = {\n")
	fmt.Fprintf(b, "  name = %q,\n", o.ProjectName)
	fmt.Fprintf(b, "  author = %q,\n", o.Author)
	fmt.Fprintf(b, "  target_level = %q,\n", o.TargetLevel)
	fmt.Fprintf(b, "  update_rate = %d,\n", o.UpdateRate)
	fmt.Fprintf(b, "}\n\n")
}

// detectTransitions diffs cur against the running held-state map. A key
// that appears down for the first time with its Released bit already
// set (the recorded 0x03 byte) is a same-tick tap, not a plain press.
func detectTransitions(held map[record.NamedBit]bool, cur record.Frame) map[record.NamedBit]transition {
	out := make(map[record.NamedBit]transition)
	for bit := record.NamedBit(0); bit < 9; bit++ {
		was := held[bit]
		is := cur.Bit(bit)
		switch {
		case !was && is && cur.ReleasedBit(bit):
			out[bit] = transPressedAndReleased
		case !was && is:
			out[bit] = transPressed
		case was && !is:
			out[bit] = transReleased
		}
	}
	return out
}

var namedBitToken = map[record.NamedBit]string{
	record.BitUp: "up", record.BitDown: "down", record.BitLeft: "left",
	record.BitRight: "right", record.BitShift: "shift", record.BitSpace: "space",
	record.BitQ: "q", record.BitEsc: "escape", record.BitEnter: "enter",
}

// emitTransitions writes one line per non-empty bucket, with key names
// sorted by NamedBit order before joining so the generated script text
// is deterministic regardless of map iteration order.
func emitTransitions(b *strings.Builder, transitions map[record.NamedBit]transition) {
	var pressed, released, tapped []record.NamedBit
	for bit, tr := range transitions {
		switch tr {
		case transPressed:
			pressed = append(pressed, bit)
		case transReleased:
			released = append(released, bit)
		case transPressedAndReleased:
			tapped = append(tapped, bit)
		}
	}
	sort.Slice(pressed, func(i, j int) bool { return pressed[i] < pressed[j] })
	sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
	sort.Slice(tapped, func(i, j int) bool { return tapped[i] < tapped[j] })

	if len(pressed) > 0 {
		fmt.Fprintf(b, "tas.hold(%q)\n", strings.Join(tokenNames(pressed), " "))
	}
	if len(tapped) > 0 {
		fmt.Fprintf(b, "tas.press(%q)\n", strings.Join(tokenNames(tapped), " "))
	}
	if len(released) > 0 {
		fmt.Fprintf(b, "tas.release(%q)\n", strings.Join(tokenNames(released), " "))
	}
}

func tokenNames(bits []record.NamedBit) []string {
	out := make([]string, len(bits))
	for i, bit := range bits {
		out[i] = namedBitToken[bit]
	}
	return out
}
