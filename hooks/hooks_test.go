package hooks

import "testing"

func TestTickRNGIsPureFunctionOfTick(t *testing.T) {
	r := TickRNG{Salt: 42}
	a := r.Next(100)
	b := r.Next(100)
	if a != b {
		t.Fatalf("expected identical output for identical tick, got %v and %v", a, b)
	}
	if r.Next(100) == r.Next(101) {
		t.Fatalf("expected different ticks to (almost certainly) diverge")
	}
}

func TestTickRNGNextNBounds(t *testing.T) {
	r := TickRNG{Salt: 7}
	for tick := uint64(0); tick < 1000; tick++ {
		v := r.NextN(tick, 6)
		if v >= 6 {
			t.Fatalf("NextN(_, 6) returned out-of-range value %d", v)
		}
	}
}

func TestClockModePriority(t *testing.T) {
	c := NewClock()
	if _, ok := c.DeltaTimeMs(0); ok {
		t.Fatalf("idle clock must not override delta time")
	}

	c.SetMode(ModeRecording)
	c.SetRecordingDelta(16.666)
	if d, ok := c.DeltaTimeMs(5); !ok || d != 16.666 {
		t.Fatalf("recording mode: got (%v,%v), want (16.666,true)", d, ok)
	}

	c.SetMode(ModePlayingRecord)
	c.SetFrameDeltaSource(func(tick uint64) float32 { return float32(tick) })
	if d, ok := c.DeltaTimeMs(9); !ok || d != 9 {
		t.Fatalf("playing-record mode: got (%v,%v), want (9,true)", d, ok)
	}

	c.SetMode(ModePlayingScript)
	c.SetScriptDelta(33.333)
	if d, ok := c.DeltaTimeMs(0); !ok || d != 33.333 {
		t.Fatalf("playing-script mode: got (%v,%v), want (33.333,true)", d, ok)
	}
}
