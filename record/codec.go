package record

import (
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/lixenwraith/tasrun/errs"
)

// Encode packs frames into the on-disk record format (spec.md §6):
// a little-endian u32 uncompressed-size header followed by the zstd
// compressed payload. An empty frame slice yields a valid zero-frame
// file with U == 0.
func Encode(frames []Frame) ([]byte, error) {
	raw := make([]byte, len(frames)*FrameSize)
	for i, f := range frames {
		writeFrame(raw[i*FrameSize:], f)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errs.Wrap(errs.RecordDecompressFailure, "Encode", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw, nil)

	out := make([]byte, 4+len(compressed))
	binary.LittleEndian.PutUint32(out, uint32(len(raw)))
	copy(out[4:], compressed)
	return out, nil
}

// Decode loads the on-disk record format per spec.md §4.4's load
// contract: read U, reject if U isn't a whole multiple of FrameSize,
// decompress, and slice into frames. Allocates one extra sentinel frame
// for the player's lookahead.
func Decode(data []byte) ([]Frame, error) {
	if len(data) < 4 {
		return nil, errs.New(errs.RecordCorrupt, "Decode", "file shorter than the 4-byte size header")
	}
	u := binary.LittleEndian.Uint32(data[0:4])
	if u == 0 {
		return []Frame{{}}, nil
	}
	if u%FrameSize != 0 {
		return nil, errs.New(errs.RecordCorrupt, "Decode", "uncompressed size is not a multiple of the frame size")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errs.Wrap(errs.RecordDecompressFailure, "Decode", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data[4:], make([]byte, 0, u))
	if err != nil {
		return nil, errs.Wrap(errs.RecordDecompressFailure, "Decode", err)
	}
	if uint32(len(raw)) != u {
		return nil, errs.New(errs.RecordDecompressFailure, "Decode", "decompressed size did not match the declared header size")
	}

	count := int(u / FrameSize)
	frames := make([]Frame, count+1) // +1 sentinel for lookahead
	for i := 0; i < count; i++ {
		frames[i] = readFrame(raw[i*FrameSize:])
	}
	return frames, nil
}

func writeFrame(b []byte, f Frame) {
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(f.DeltaTimeMs))
	binary.LittleEndian.PutUint32(b[4:8], f.KeyMask)
}

func readFrame(b []byte) Frame {
	return Frame{
		DeltaTimeMs: math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		KeyMask:     binary.LittleEndian.Uint32(b[4:8]),
	}
}
