package recorder

import (
	"strings"
	"testing"

	"github.com/lixenwraith/tasrun/record"
)

func TestRecorderBasicLifecycle(t *testing.T) {
	r := New()
	r.Start(0)
	if !r.Active() {
		t.Fatalf("expected recorder active after Start")
	}
	var f record.Frame
	f.SetBit(record.BitUp, true)
	r.Tick(0, f)
	r.OnGameEvent(0, "hit", 7)
	f.SetBit(record.BitUp, false)
	r.Tick(1, f)

	_, ok := r.Stop(nil)
	if ok {
		t.Fatalf("Stop with nil generator should report ok=false")
	}
	if r.Active() {
		t.Fatalf("expected recorder inactive after Stop")
	}
	frames := r.Frames()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if len(frames[1].Events) != 1 || frames[1].Events[0].Name != "hit" {
		t.Fatalf("expected queued event to attach to the next frame recorded, got %+v", frames[1].Events)
	}
}

func TestRecorderAutoStopsAtMaxFrames(t *testing.T) {
	r := New().WithMaxFrames(2)
	r.Start(0)
	r.Tick(0, record.Frame{})
	r.Tick(1, record.Frame{})
	if r.Active() {
		t.Fatalf("expected recorder to auto-stop at max_frames")
	}
}

func TestGeneratorPressReleaseAndWait(t *testing.T) {
	var f0, f1, f2 record.Frame
	f1.SetBit(record.BitUp, true)

	frames := []RawFrameData{
		{TickIndex: 0, Frame: f0},
		{TickIndex: 3, Frame: f1},
		{TickIndex: 4, Frame: f2},
	}
	gen := NewGenerator(GenerationOptions{ProjectName: "demo", UpdateRate: 60})
	script := gen.Generate(frames)

	if !strings.Contains(script, "tas.wait(3)") {
		t.Fatalf("expected a tas.wait(3) aligning to the next event, got:\n%s", script)
	}
	if !strings.Contains(script, `tas.hold("up")`) {
		t.Fatalf("expected a tas.hold(\"up\") call, got:\n%s", script)
	}
	if !strings.Contains(script, `tas.release("up")`) {
		t.Fatalf("expected a tas.release(\"up\") call, got:\n%s", script)
	}
}

func TestGeneratorEmitsSameTickTapAsSinglePress(t *testing.T) {
	var f0, f1, f2 record.Frame
	f1.SetBit(record.BitSpace, true)
	f1.SetReleasedBit(record.BitSpace, true)

	frames := []RawFrameData{
		{TickIndex: 0, Frame: f0},
		{TickIndex: 2, Frame: f1},
		{TickIndex: 3, Frame: f2},
	}
	gen := NewGenerator(GenerationOptions{ProjectName: "demo", UpdateRate: 60})
	script := gen.Generate(frames)

	if !strings.Contains(script, `tas.press("space")`) {
		t.Fatalf("expected a same-tick tap to collapse into tas.press(\"space\"), got:\n%s", script)
	}
	if strings.Contains(script, `tas.hold("space")`) || strings.Contains(script, `tas.release("space")`) {
		t.Fatalf("same-tick tap must not also emit tas.hold/tas.release, got:\n%s", script)
	}
}

func TestGeneratorEmitTransitionsSortsKeyNamesDeterministically(t *testing.T) {
	var f0, f1 record.Frame
	f1.SetBit(record.BitUp, true)
	f1.SetBit(record.BitDown, true)
	f1.SetBit(record.BitLeft, true)
	f1.SetBit(record.BitRight, true)

	frames := []RawFrameData{
		{TickIndex: 0, Frame: f0},
		{TickIndex: 1, Frame: f1},
	}
	gen := NewGenerator(GenerationOptions{ProjectName: "demo", UpdateRate: 60})
	for i := 0; i < 5; i++ {
		script := gen.Generate(frames)
		if !strings.Contains(script, `tas.hold("up down left right")`) {
			t.Fatalf("expected a deterministically ordered tas.hold call, got:\n%s", script)
		}
	}
}
