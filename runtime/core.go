package runtime

import (
	"log"

	"github.com/lixenwraith/tasrun/contextmgr"
	"github.com/lixenwraith/tasrun/errs"
	"github.com/lixenwraith/tasrun/hooks"
	"github.com/lixenwraith/tasrun/record"
	"github.com/lixenwraith/tasrun/recorder"
	"github.com/lixenwraith/tasrun/status"
	"github.com/lixenwraith/tasrun/tasfsm"
)

// Core is the single object a host embeds. It owns the state machine, the
// determinism hooks, the context manager, and the recorder/player pair,
// and exposes exactly the two entry points spec.md §2's data flow names:
// PreTick and PreInput.
type Core struct {
	cfg Config

	Clock    *hooks.Clock
	FSM      *tasfsm.Machine
	Contexts *contextmgr.Manager
	RNG      hooks.RNG
	Metrics  *status.Registry

	recorder *recorder.Recorder
	player   *record.Player

	tick        uint64
	lastDeltaMs float32

	pendingScriptPath string
	pendingLevelName  string
}

// NewCore wires every collaborator together per SPEC_FULL.md's component
// list, using cfg for the caps a host may tune.
func NewCore(cfg Config) (*Core, error) {
	c := &Core{
		cfg:     cfg,
		Clock:   hooks.NewClock(),
		RNG:     hooks.TickRNG{},
		Metrics: status.NewRegistry(),
		recorder: recorder.New().WithMaxFrames(cfg.MaxRecordFrames),
	}

	contexts, err := contextmgr.New(cfg.MaxBufferBytes, c.CurrentTick, c.lastDelta)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "NewCore", err)
	}
	contexts.SetLimits(cfg.MaxCustomContexts, cfg.MaxCustomContextsPerLevel)
	c.Contexts = contexts

	c.FSM = tasfsm.New(map[tasfsm.State]tasfsm.Handler{
		tasfsm.Recording:     {OnEnter: c.enterRecording, OnExit: c.exitRecording},
		tasfsm.PlayingScript: {OnEnter: c.enterPlayingScript},
		tasfsm.PlayingRecord: {OnEnter: c.enterPlayingRecord},
	})

	if _, err := c.Contexts.GetOrCreateGlobal(); err != nil {
		return nil, err
	}

	return c, nil
}

// CurrentTick is the tick accessor every ScriptContext's runtime API is
// wired to (spec.md §4.3's current_tick(), §4.9's message timestamps).
func (c *Core) CurrentTick() uint64 {
	return c.tick
}

// lastDelta is the delta-time accessor every ScriptContext's tas.delta_time()
// is wired to: the value PreTick most recently substituted or passed
// through.
func (c *Core) lastDelta() float32 {
	return c.lastDeltaMs
}

// PreTick implements the host entry point spec.md §2 names first: the
// runtime substitutes a deterministic delta whenever a higher-priority
// source (recording clock, record frame, script rate) is active, and
// otherwise passes the host's own delta through unmodified.
func (c *Core) PreTick(hostDeltaMs float32) float32 {
	if d, ok := c.Clock.DeltaTimeMs(c.tick); ok {
		c.lastDeltaMs = d
		return d
	}
	c.lastDeltaMs = hostDeltaMs
	return hostDeltaMs
}

// PreInput implements the host's second entry point: drain the message
// bus and shared-data watches, tick every context in descending priority,
// then overwrite buf (during playback) or sample it (during recording),
// per spec.md §2's data-flow description and §5's ordering contract.
func (c *Core) PreInput(buf []byte) {
	c.Contexts.TickAll(c.tick)

	switch c.FSM.State() {
	case tasfsm.Recording:
		f := record.SampleFrame(buf, c.lastDeltaMs)
		c.recorder.Tick(c.tick, f)
	case tasfsm.PlayingScript:
		if ctx, err := c.Contexts.GetOrCreateLevel(c.pendingLevelName); err == nil {
			ctx.Input.Apply(c.tick, buf)
			ctx.Input.PrepareNextFrame(c.tick)
		}
	case tasfsm.PlayingRecord:
		if c.player != nil {
			if done := c.player.Tick(c.tick, buf); done {
				if err := c.FSM.Fire(c.tick, tasfsm.Stop); err != nil {
					log.Printf("runtime: auto-stop after playback completion failed: %v", err)
				}
			}
		}
	}

	c.FSM.Tick(c.tick)
	c.Metrics.Ints.Get("tasrun.tick").Store(int64(c.tick))
	c.tick++
}

func (c *Core) enterRecording() error {
	c.Clock.SetRecordingDelta(c.cfg.RecordingDeltaMs)
	c.Clock.SetMode(hooks.ModeRecording)
	c.recorder.Start(c.tick)
	return nil
}

func (c *Core) exitRecording() {
	c.Clock.SetMode(hooks.ModeIdle)
}

func (c *Core) enterPlayingScript() error {
	ctx, err := c.Contexts.GetOrCreateLevel(c.pendingLevelName)
	if err != nil {
		return err
	}
	if err := ctx.LoadAndExecute(c.pendingScriptPath); err != nil {
		return err
	}
	hz := ctx.UpdateRateHz()
	if hz <= 0 {
		hz = 60
	}
	c.Clock.SetScriptDelta(1000.0 / float32(hz))
	c.Clock.SetMode(hooks.ModePlayingScript)
	return nil
}

func (c *Core) enterPlayingRecord() error {
	if c.player == nil {
		return errs.New(errs.InvalidArgument, "enterPlayingRecord", "no record loaded; call LoadRecord before StartRecordPlayback")
	}
	c.Clock.SetMode(hooks.ModePlayingRecord)
	c.Clock.SetFrameDeltaSource(c.player.DeltaTimeMs)
	return nil
}

// LoadRecord decodes a .tas file's bytes and stages it for playback; call
// before firing StartRecordPlayback.
func (c *Core) LoadRecord(data []byte) error {
	frames, err := record.Decode(data)
	if err != nil {
		return err
	}
	c.player = record.NewPlayer(frames)
	return nil
}

// PlayScript stages an entry-script path and level name for the next
// StartScriptPlayback transition.
func (c *Core) PlayScript(path, levelName string) {
	c.pendingScriptPath = path
	c.pendingLevelName = levelName
}

// StopRecordingAndEncode stops the active recorder, optionally running a
// script generator, and encodes the captured frames into the on-disk
// record format (spec.md §4.4/§4.5).
func (c *Core) StopRecordingAndEncode(gen *recorder.Generator) (recordBytes []byte, script string, genOK bool, err error) {
	script, genOK = c.recorder.Stop(gen)
	frames := make([]record.Frame, len(c.recorder.Frames()))
	for i, rf := range c.recorder.Frames() {
		frames[i] = rf.Frame
	}
	recordBytes, err = record.Encode(frames)
	return recordBytes, script, genOK, err
}
