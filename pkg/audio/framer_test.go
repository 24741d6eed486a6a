package audio_test

import (
	"testing"

	"github.com/pwmlive/pwmlive/pkg/audio"
)

// ramp returns n samples whose int16 encoding identifies their position.
func ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start+i) / 32768
	}
	return out
}

func TestFramer_EmitsOnlyOnExactFill(t *testing.T) {
	t.Parallel()

	var frames [][]int16
	f := audio.NewFramer(4, func(frame []int16) { frames = append(frames, frame) })

	f.Ingest(ramp(0, 3))
	if len(frames) != 0 {
		t.Fatalf("emitted %d frames before fill, want 0", len(frames))
	}
	if got := f.Buffered(); got != 3 {
		t.Errorf("Buffered = %d, want 3", got)
	}

	f.Ingest(ramp(3, 1))
	if len(frames) != 1 {
		t.Fatalf("emitted %d frames after fill, want 1", len(frames))
	}
	if got := f.Buffered(); got != 0 {
		t.Errorf("Buffered after flush = %d, want 0", got)
	}
}

func TestFramer_FrameCountAndOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		size   int
		blocks []int
	}{
		{"aligned blocks", 8, []int{8, 8, 8}},
		{"small blocks", 8, []int{1, 3, 4, 2, 6}},
		{"oversized block", 8, []int{24}},
		{"render quantum", 2048, []int{128, 128, 128, 128, 128, 128, 128, 128, 128, 128, 128, 128, 128, 128, 128, 128, 2048}},
		{"mixed", 5, []int{7, 2, 1, 10, 5}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var frames [][]int16
			f := audio.NewFramer(tc.size, func(frame []int16) { frames = append(frames, frame) })

			total := 0
			for _, n := range tc.blocks {
				f.Ingest(ramp(total, n))
				total += n
			}
			if total%tc.size != 0 {
				t.Fatalf("test case total %d not a multiple of %d", total, tc.size)
			}

			if want := total / tc.size; len(frames) != want {
				t.Fatalf("frames = %d, want %d", len(frames), want)
			}
			next := 0
			for i, frame := range frames {
				if len(frame) != tc.size {
					t.Fatalf("frame %d length = %d, want %d", i, len(frame), tc.size)
				}
				for _, s := range frame {
					if want := audio.FloatToInt16(float32(next) / 32768); s != want {
						t.Fatalf("frame %d out of order: got %d, want %d", i, s, want)
					}
					next++
				}
			}
		})
	}
}

func TestFramer_FramesAreIndependent(t *testing.T) {
	t.Parallel()

	var frames [][]int16
	f := audio.NewFramer(2, func(frame []int16) { frames = append(frames, frame) })
	f.Ingest([]float32{0.5, 0.5})
	f.Ingest([]float32{-0.5, -0.5})

	if frames[0][0] == frames[1][0] {
		t.Fatal("second frame overwrote the first; frames must not share storage")
	}
}

func TestNewFramer_DefaultSize(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer(0, nil)
	if got := f.Size(); got != audio.DefaultFrameSize {
		t.Errorf("Size = %d, want %d", got, audio.DefaultFrameSize)
	}
	// A nil emit callback must not panic on flush.
	f.Ingest(make([]float32, audio.DefaultFrameSize))
}
