// Package recorder implements the recorder and script generator
// (spec.md §4.5): it samples live key bits into a frame vector and can
// emit an equivalent Lua script expressing the same input trace as
// press/release/wait calls.
package recorder

import (
	"log"

	"github.com/lixenwraith/tasrun/record"
)

// GameEvent is queued by OnGameEvent and attaches to the next frame
// recorded (spec.md §4.5).
type GameEvent struct {
	Tick uint64
	Name string
	Data int32
}

// RawFrameData is one sampled tick (spec.md §3 RawFrameData).
type RawFrameData struct {
	TickIndex uint32
	Frame     record.Frame
	Events    []GameEvent
}

const defaultMaxFrames = 1 << 20

// Recorder samples per-tick key bits into RawFrameData entries.
type Recorder struct {
	active       bool
	maxFrames    int
	maxWarned    bool
	frames       []RawFrameData
	pendingEvent []GameEvent
	startTick    uint64
}

// New creates a Recorder with the default max-frames ceiling.
func New() *Recorder {
	return &Recorder{maxFrames: defaultMaxFrames}
}

// WithMaxFrames overrides the auto-stop ceiling.
func (r *Recorder) WithMaxFrames(n int) *Recorder {
	r.maxFrames = n
	return r
}

// Start clears buffers, marks recording active, resets the max-frames
// warning latch. Restarting an already-active recorder warns and
// restarts rather than erroring (spec.md §4.5).
func (r *Recorder) Start(currentTick uint64) {
	if r.active {
		log.Printf("recorder: Start called while already recording; restarting")
	}
	r.frames = nil
	r.pendingEvent = nil
	r.maxWarned = false
	r.active = true
	r.startTick = currentTick
}

// Active reports whether the recorder is currently recording.
func (r *Recorder) Active() bool {
	return r.active
}

// OnGameEvent queues a GameEvent to attach to the next frame recorded.
func (r *Recorder) OnGameEvent(tick uint64, name string, data int32) {
	if !r.active {
		return
	}
	r.pendingEvent = append(r.pendingEvent, GameEvent{Tick: tick, Name: name, Data: data})
}

// Tick appends one RawFrameData sampling the given frame bits and
// consuming the pending event queue. Auto-stops with a one-shot warning
// once max_frames is reached.
func (r *Recorder) Tick(currentTick uint64, f record.Frame) {
	if !r.active {
		return
	}
	entry := RawFrameData{
		TickIndex: uint32(currentTick),
		Frame:     f,
		Events:    r.pendingEvent,
	}
	r.pendingEvent = nil
	r.frames = append(r.frames, entry)

	if len(r.frames) >= r.maxFrames {
		if !r.maxWarned {
			log.Printf("recorder: reached max_frames=%d, auto-stopping", r.maxFrames)
			r.maxWarned = true
		}
		r.Stop(nil)
	}
}

// Stop flushes any trailing pending events onto the last frame and, if a
// generator is supplied, runs script generation with it.
func (r *Recorder) Stop(gen *Generator) (script string, ok bool) {
	if !r.active {
		return "", false
	}
	r.active = false
	if len(r.pendingEvent) > 0 && len(r.frames) > 0 {
		last := &r.frames[len(r.frames)-1]
		last.Events = append(last.Events, r.pendingEvent...)
		r.pendingEvent = nil
	}
	if gen == nil {
		return "", false
	}
	return gen.Generate(r.frames), true
}

// Frames returns the recorded frame vector.
func (r *Recorder) Frames() []RawFrameData {
	return r.frames
}
