package record

import "testing"

// S3: three frames with delta=16.666, up bits [1,1,0]. Expected:
// tick 0 PRESSED, tick 1 PRESSED|RELEASED, tick 2 playback completes.
func TestPlayerScenarioS3(t *testing.T) {
	frames := make([]Frame, 4) // 3 real frames + sentinel
	for i := 0; i < 3; i++ {
		frames[i].DeltaTimeMs = 16.666
	}
	frames[0].SetBit(BitUp, true)
	frames[1].SetBit(BitUp, true)
	frames[2].SetBit(BitUp, false)

	p := NewPlayer(frames)
	upCode := p.codes[BitUp]
	buf := make([]byte, 256)

	if done := p.Tick(0, buf); done {
		t.Fatalf("tick0: unexpected early completion")
	}
	if buf[upCode] != 1 { // Pressed
		t.Fatalf("tick0: got %02x, want PRESSED", buf[upCode])
	}

	if done := p.Tick(1, buf); done {
		t.Fatalf("tick1: unexpected early completion")
	}
	if buf[upCode] != 3 { // Pressed|Released
		t.Fatalf("tick1: got %02x, want PRESSED|RELEASED", buf[upCode])
	}

	if done := p.Tick(2, buf); !done {
		t.Fatalf("tick2: expected playback to complete")
	}
	if !p.Stopped() {
		t.Fatalf("expected player to be stopped after completion")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := []Frame{
		{DeltaTimeMs: 16.0, KeyMask: 0b101},
		{DeltaTimeMs: 17.0, KeyMask: 0b010},
	}
	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(want)+1 {
		t.Fatalf("expected %d frames incl. sentinel, got %d", len(want)+1, len(got))
	}
	for i, f := range want {
		if got[i] != f {
			t.Fatalf("frame %d: got %+v, want %+v", i, got[i], f)
		}
	}
}

func TestDecodeEmptyRecord(t *testing.T) {
	data := make([]byte, 4) // U == 0
	frames, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	p := NewPlayer(frames)
	if p.TotalFrames() != 0 {
		t.Fatalf("expected zero playable frames, got %d", p.TotalFrames())
	}
}

func TestDecodeRejectsMisalignedSize(t *testing.T) {
	data := make([]byte, 4)
	data[0] = 3 // U=3, not a multiple of FrameSize
	if _, err := Decode(data); err == nil {
		t.Fatalf("expected rejection of misaligned uncompressed size")
	}
}
