// Package tasfsm implements the TAS engine's state machine (spec.md
// §4.11): a flat, fixed-transition-table FSM over
// {Idle, Recording, PlayingScript, PlayingRecord, Translating, Paused},
// generalized from the teacher's engine/fsm.Machine — which supports
// hierarchical parallel regions — down to the single flat region and
// fixed table this contract actually needs, keeping its on_enter/
// on_exit/bounded-transition-log shape.
package tasfsm

import (
	"fmt"
	"log"

	"github.com/lixenwraith/tasrun/errs"
)

// State is one of the six TAS engine states.
type State int

const (
	Idle State = iota
	Recording
	PlayingScript
	PlayingRecord
	Translating
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Recording:
		return "Recording"
	case PlayingScript:
		return "PlayingScript"
	case PlayingRecord:
		return "PlayingRecord"
	case Translating:
		return "Translating"
	case Paused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Event drives transitions per the fixed table in spec.md §4.11.
type Event int

const (
	StartRecording Event = iota
	StartScriptPlayback
	StartRecordPlayback
	StartTranslation
	Stop
	Pause
	Resume
	LevelChange
	Error
)

// Handler encapsulates per-state tick behavior and lifecycle hooks.
// OnEnter/OnExit/OnTick may be nil.
type Handler struct {
	OnEnter func() error
	OnExit  func()
	OnTick  func(currentTick uint64)
}

// TransitionLogEntry records one transition attempt, successful or not.
type TransitionLogEntry struct {
	Tick   uint64
	From   State
	Event  Event
	To     State
	Failed bool
	Err    error
}

const defaultLogCapacity = 256

// Machine is the TAS engine's fixed-table state machine.
type Machine struct {
	state       State
	prePause    State // state recorded when entering Paused, restored on Resume
	handlers    map[State]Handler
	log         []TransitionLogEntry
	logCapacity int
}

// New creates a Machine starting in Idle with the given per-state
// handlers (a zero-value Handler is used for any state left unspecified).
func New(handlers map[State]Handler) *Machine {
	return &Machine{
		state:       Idle,
		handlers:    handlers,
		logCapacity: defaultLogCapacity,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// startTarget maps a Start* event to the state it activates.
func startTarget(ev Event) (State, bool) {
	switch ev {
	case StartRecording:
		return Recording, true
	case StartScriptPlayback:
		return PlayingScript, true
	case StartRecordPlayback:
		return PlayingRecord, true
	case StartTranslation:
		return Translating, true
	default:
		return Idle, false
	}
}

func isActive(s State) bool {
	return s != Idle
}

// Fire applies an event to the fixed transition table from spec.md §4.11:
//   - Idle accepts every Start*.
//   - Any active state accepts Stop -> Idle and Error -> Idle.
//   - Any active state accepts LevelChange -> Idle.
//   - PlayingScript/PlayingRecord accept Pause -> Paused (remembering the
//     prior state) and Paused accepts Resume -> the remembered state.
//
// Transitions run on_exit of the outgoing state then on_enter of the
// incoming state; a failing on_enter forces Idle. Every attempt is
// appended to the bounded transition log.
func (m *Machine) Fire(currentTick uint64, ev Event) error {
	from := m.state
	to, transitionErr := m.resolve(from, ev)
	if transitionErr != nil {
		m.appendLog(currentTick, from, ev, from, true, transitionErr)
		return transitionErr
	}

	if to == from {
		m.appendLog(currentTick, from, ev, to, false, nil)
		return nil
	}

	if h, ok := m.handlers[from]; ok && h.OnExit != nil {
		h.OnExit()
	}

	m.state = to
	if h, ok := m.handlers[to]; ok && h.OnEnter != nil {
		if err := h.OnEnter(); err != nil {
			log.Printf("tasfsm: on_enter(%s) failed, forcing Idle: %v", to, err)
			m.appendLog(currentTick, from, ev, to, true, err)
			m.forceIdle(currentTick)
			return err
		}
	}

	m.appendLog(currentTick, from, ev, to, false, nil)
	return nil
}

func (m *Machine) forceIdle(currentTick uint64) {
	if h, ok := m.handlers[m.state]; ok && h.OnExit != nil {
		h.OnExit()
	}
	m.state = Idle
	if h, ok := m.handlers[Idle]; ok && h.OnEnter != nil {
		_ = h.OnEnter()
	}
}

func (m *Machine) resolve(from State, ev Event) (State, error) {
	if ev == Stop || ev == Error {
		if !isActive(from) {
			return from, errs.New(errs.InvalidTransition, "Fire", fmt.Sprintf("%v rejected from Idle", ev))
		}
		return Idle, nil
	}
	if ev == LevelChange {
		if !isActive(from) {
			return from, nil
		}
		return Idle, nil
	}
	if ev == Pause {
		if from != PlayingScript && from != PlayingRecord {
			return from, errs.New(errs.InvalidTransition, "Fire", fmt.Sprintf("Pause rejected from %v", from))
		}
		m.prePause = from
		return Paused, nil
	}
	if ev == Resume {
		if from != Paused {
			return from, errs.New(errs.InvalidTransition, "Fire", fmt.Sprintf("Resume rejected from %v", from))
		}
		return m.prePause, nil
	}
	if target, ok := startTarget(ev); ok {
		if from != Idle {
			return from, errs.New(errs.InvalidTransition, "Fire", fmt.Sprintf("%v rejected from %v (only Idle accepts Start* events)", ev, from))
		}
		return target, nil
	}
	return from, errs.New(errs.InvalidTransition, "Fire", fmt.Sprintf("unknown event %v", ev))
}

// Tick invokes the current state's OnTick handler, if any.
func (m *Machine) Tick(currentTick uint64) {
	if h, ok := m.handlers[m.state]; ok && h.OnTick != nil {
		h.OnTick(currentTick)
	}
}

func (m *Machine) appendLog(tick uint64, from State, ev Event, to State, failed bool, err error) {
	m.log = append(m.log, TransitionLogEntry{
		Tick: tick, From: from, Event: ev, To: to, Failed: failed, Err: err,
	})
	if len(m.log) > m.logCapacity {
		m.log = m.log[len(m.log)-m.logCapacity:]
	}
}

// TransitionLog returns a copy of the bounded transition log, oldest first.
func (m *Machine) TransitionLog() []TransitionLogEntry {
	out := make([]TransitionLogEntry, len(m.log))
	copy(out, m.log)
	return out
}
