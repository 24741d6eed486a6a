package audio

// DefaultFrameSize is the number of samples per outbound frame.
const DefaultFrameSize = 2048

// Framer accumulates capture blocks into fixed-size int16 frames.
//
// A frame is emitted only when the internal buffer fills exactly; there is no
// timer flush, so every emitted frame holds exactly Size samples. Frames are
// emitted in ingestion order and ownership of each frame passes to the emit
// callback.
//
// A Framer is driven by a single capture goroutine and is not safe for
// concurrent Ingest calls.
type Framer struct {
	buf  []float32
	n    int
	emit func(frame []int16)
}

// NewFramer returns a Framer that emits frames of size samples to emit.
// A non-positive size selects [DefaultFrameSize].
func NewFramer(size int, emit func(frame []int16)) *Framer {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &Framer{
		buf:  make([]float32, size),
		emit: emit,
	}
}

// Ingest appends block to the buffer, emitting a frame every time the buffer
// fills. Blocks may be of any length, including longer than the frame size.
func (f *Framer) Ingest(block []float32) {
	for len(block) > 0 {
		c := copy(f.buf[f.n:], block)
		f.n += c
		block = block[c:]
		if f.n == len(f.buf) {
			f.flush()
		}
	}
}

// Buffered reports how many samples are waiting for the next frame.
func (f *Framer) Buffered() int { return f.n }

// Size returns the frame length in samples.
func (f *Framer) Size() int { return len(f.buf) }

func (f *Framer) flush() {
	frame := FloatsToInt16(f.buf)
	f.n = 0
	if f.emit != nil {
		f.emit(frame)
	}
}
