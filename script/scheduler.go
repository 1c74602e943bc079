// Package script hosts one Lua VM per ScriptContext (spec.md §4.7) and
// the cooperative scheduler that drives it (spec.md §4.6), built on real
// gopher-lua coroutines rather than an emulated generator scheduler — the
// redesign spec.md §9 explicitly sanctions.
package script

import (
	"log"

	lua "github.com/yuin/gopher-lua"
)

// TaskID identifies a scheduled coroutine task.
type TaskID uint64

// WaitKind selects which completion rule a Wait uses (spec.md §4.6).
type WaitKind int

const (
	WaitImmediate WaitKind = iota
	WaitTick
	WaitPredicate
	WaitJoin
)

// Wait is one of the four task wait conditions, evaluated once per tick.
type Wait struct {
	Kind      WaitKind
	Ticks     int          // WaitTick: remaining ticks
	Predicate *lua.LFunction
	Join      []TaskID
}

// TickWait builds a Wait that completes after n ticks.
func TickWait(n int) Wait { return Wait{Kind: WaitTick, Ticks: n} }

// PredicateWait builds a Wait that completes when f returns truthy.
func PredicateWait(f *lua.LFunction) Wait { return Wait{Kind: WaitPredicate, Predicate: f} }

// JoinWait builds a Wait that completes when every task in ids is done.
func JoinWait(ids []TaskID) Wait { return Wait{Kind: WaitJoin, Join: ids} }

// ImmediateWait builds a Wait that is ready on the very next check.
func ImmediateWait() Wait { return Wait{Kind: WaitImmediate} }

type task struct {
	id      TaskID
	thread  *lua.LState
	cancel  func()
	fn      *lua.LFunction // non-nil only before the first resume
	args    []lua.LValue
	wait    Wait
	done    bool
}

// Scheduler runs cooperative coroutine tasks with tick-accurate waits
// (spec.md §4.6) for one ScriptContext's owner VM.
type Scheduler struct {
	owner   *lua.LState
	tasks   []*task
	byID    map[TaskID]*task
	nextID  TaskID
	stack   []TaskID // current-thread stack identifying the active task
}

// NewScheduler creates a Scheduler bound to the VM it schedules
// coroutines against.
func NewScheduler(owner *lua.LState) *Scheduler {
	return &Scheduler{owner: owner, byID: make(map[TaskID]*task)}
}

// Spawn creates a new coroutine task that calls fn(args...) the next
// time it is ticked (an Immediate wait), and returns its TaskID.
func (s *Scheduler) Spawn(fn *lua.LFunction, args ...lua.LValue) TaskID {
	thread, cancel := s.owner.NewThread()
	s.nextID++
	id := s.nextID
	t := &task{id: id, thread: thread, cancel: cancel, fn: fn, args: args, wait: ImmediateWait()}
	s.tasks = append(s.tasks, t)
	s.byID[id] = t
	return id
}

// IsRunning is true while any task is pending (spec.md §4.6).
func (s *Scheduler) IsRunning() bool {
	return len(s.tasks) > 0
}

// CurrentTask returns the TaskID of the coroutine currently being
// resumed, so script APIs can identify which context owns the call
// (spec.md §4.6 yield semantics); ok is false outside of a resume.
func (s *Scheduler) CurrentTask() (id TaskID, ok bool) {
	if len(s.stack) == 0 {
		return 0, false
	}
	return s.stack[len(s.stack)-1], true
}

// Tick evaluates every pending task once, resuming those whose wait has
// completed, exactly as spec.md §4.6's tick loop describes.
func (s *Scheduler) Tick(currentTick uint64) {
	pending := s.tasks
	s.tasks = s.tasks[:0]

	for _, t := range pending {
		if t.done {
			continue
		}
		if !s.evaluate(t, currentTick) {
			s.tasks = append(s.tasks, t)
			continue
		}
		s.resumeOnce(t)
		if !t.done {
			s.tasks = append(s.tasks, t)
		}
	}

	for id := range s.byID {
		if t := s.byID[id]; t.done {
			delete(s.byID, id)
		}
	}
}

func (s *Scheduler) evaluate(t *task, currentTick uint64) bool {
	switch t.wait.Kind {
	case WaitImmediate:
		return true
	case WaitTick:
		t.wait.Ticks--
		return t.wait.Ticks <= 0
	case WaitPredicate:
		ok, err := s.callPredicate(t.wait.Predicate)
		if err != nil {
			log.Printf("script: predicate wait raised an error, completing task to avoid a hang: %v", err)
			return true
		}
		return ok
	case WaitJoin:
		for _, id := range t.wait.Join {
			if other, exists := s.byID[id]; exists && !other.done {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (s *Scheduler) callPredicate(f *lua.LFunction) (bool, error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("script: recovered from panic in predicate wait: %v", r)
		}
	}()
	if err := s.owner.CallByParam(lua.P{Fn: f, NRet: 1, Protect: true}); err != nil {
		return false, err
	}
	ret := s.owner.Get(-1)
	s.owner.Pop(1)
	return lua.LVAsBool(ret), nil
}

// resumeOnce resumes t's coroutine exactly once, updating its wait from
// whatever it yields, or marking it done on return/error.
func (s *Scheduler) resumeOnce(t *task) {
	s.stack = append(s.stack, t.id)
	defer func() { s.stack = s.stack[:len(s.stack)-1] }()

	var st lua.ResumeState
	var values []lua.LValue
	var err error
	if t.fn != nil {
		st, err, values = s.owner.Resume(t.thread, t.fn, t.args...)
		t.fn = nil
		t.args = nil
	} else {
		st, err, values = s.owner.Resume(t.thread, nil)
	}

	switch st {
	case lua.ResumeError:
		log.Printf("script: task %d coroutine error: %v", t.id, err)
		t.done = true
		t.cancel()
	case lua.ResumeOK:
		t.done = true
		t.cancel()
	case lua.ResumeYield:
		t.wait = waitFromYield(values)
	}
}

// waitFromYield interprets the values a coroutine yields into the wait
// primitive it names: no value or nil -> Immediate (resume next tick);
// a number -> TickWait; a function -> PredicateWait; a table of
// thread-identifying numbers -> JoinWait.
func waitFromYield(values []lua.LValue) Wait {
	if len(values) == 0 {
		return ImmediateWait()
	}
	switch v := values[0].(type) {
	case lua.LNumber:
		return TickWait(int(v))
	case *lua.LFunction:
		return PredicateWait(v)
	case *lua.LTable:
		var ids []TaskID
		n := v.Len()
		for i := 1; i <= n; i++ {
			if num, ok := v.RawGetInt(i).(lua.LNumber); ok {
				ids = append(ids, TaskID(num))
			}
		}
		return JoinWait(ids)
	default:
		return ImmediateWait()
	}
}
