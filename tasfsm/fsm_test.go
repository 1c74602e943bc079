package tasfsm

import "testing"

func TestIdleAcceptsEveryStart(t *testing.T) {
	cases := []struct {
		ev   Event
		want State
	}{
		{StartRecording, Recording},
		{StartScriptPlayback, PlayingScript},
		{StartRecordPlayback, PlayingRecord},
		{StartTranslation, Translating},
	}
	for _, c := range cases {
		m := New(nil)
		if err := m.Fire(0, c.ev); err != nil {
			t.Fatalf("%v: unexpected error: %v", c.ev, err)
		}
		if m.State() != c.want {
			t.Fatalf("%v: got state %v, want %v", c.ev, m.State(), c.want)
		}
	}
}

func TestStopAndErrorReturnToIdleFromAnyActiveState(t *testing.T) {
	for _, active := range []State{Recording, PlayingScript, PlayingRecord, Translating} {
		m := New(nil)
		m.state = active
		if err := m.Fire(0, Stop); err != nil {
			t.Fatalf("Stop from %v: unexpected error: %v", active, err)
		}
		if m.State() != Idle {
			t.Fatalf("Stop from %v: got %v, want Idle", active, m.State())
		}

		m = New(nil)
		m.state = active
		if err := m.Fire(0, Error); err != nil {
			t.Fatalf("Error from %v: unexpected error: %v", active, err)
		}
		if m.State() != Idle {
			t.Fatalf("Error from %v: got %v, want Idle", active, m.State())
		}
	}
}

func TestPauseResumeRestoresPriorState(t *testing.T) {
	m := New(nil)
	if err := m.Fire(0, StartScriptPlayback); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Fire(1, Pause); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != Paused {
		t.Fatalf("got %v, want Paused", m.State())
	}
	if err := m.Fire(2, Resume); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State() != PlayingScript {
		t.Fatalf("got %v, want PlayingScript restored", m.State())
	}
}

func TestStartRejectedFromNonIdle(t *testing.T) {
	m := New(nil)
	_ = m.Fire(0, StartRecording)
	if err := m.Fire(1, StartScriptPlayback); err == nil {
		t.Fatalf("expected rejection of Start* from a non-Idle state")
	}
	if m.State() != Recording {
		t.Fatalf("rejected transition must not change state, got %v", m.State())
	}
}

func TestFailingOnEnterForcesIdle(t *testing.T) {
	handlers := map[State]Handler{
		Recording: {OnEnter: func() error { return errBoom }},
	}
	m := New(handlers)
	err := m.Fire(0, StartRecording)
	if err == nil {
		t.Fatalf("expected on_enter failure to propagate")
	}
	if m.State() != Idle {
		t.Fatalf("failing on_enter must force Idle, got %v", m.State())
	}
}

func TestTransitionLogBounded(t *testing.T) {
	m := New(nil)
	m.logCapacity = 3
	for i := 0; i < 10; i++ {
		_ = m.Fire(uint64(i), StartRecording)
		_ = m.Fire(uint64(i), Stop)
	}
	if len(m.TransitionLog()) != 3 {
		t.Fatalf("expected log capped at 3, got %d", len(m.TransitionLog()))
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

var errBoom = testErr("boom")
