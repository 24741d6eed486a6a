package audio

import "sync"

// DefaultAnalyserWindow is the number of recent samples an [Analyser] keeps.
const DefaultAnalyserWindow = 2048

// Tap exposes a time-domain view of a signal for metering.
type Tap interface {
	// TimeDomain copies the most recent samples into dst, oldest first, and
	// returns how many were written. It returns 0 when nothing has been
	// observed yet.
	TimeDomain(dst []float32) int
}

// Analyser is a fixed-size ring of the most recent samples observed on an
// audio path. Writers (capture or render callbacks) and the metering reader
// only hold the lock for a bounded copy.
type Analyser struct {
	mu   sync.Mutex
	data []float32
	pos  int // next write position
	size int // valid samples, up to len(data)
}

// NewAnalyser returns an Analyser retaining window samples. A non-positive
// window selects [DefaultAnalyserWindow].
func NewAnalyser(window int) *Analyser {
	if window <= 0 {
		window = DefaultAnalyserWindow
	}
	return &Analyser{data: make([]float32, window)}
}

// Write records samples, overwriting the oldest ones once the window is full.
func (a *Analyser) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	capacity := len(a.data)
	if len(samples) >= capacity {
		copy(a.data, samples[len(samples)-capacity:])
		a.pos = 0
		a.size = capacity
		return
	}

	n := copy(a.data[a.pos:], samples)
	if n < len(samples) {
		copy(a.data, samples[n:])
	}
	a.pos = (a.pos + len(samples)) % capacity
	a.size = min(a.size+len(samples), capacity)
}

// TimeDomain implements [Tap].
func (a *Analyser) TimeDomain(dst []float32) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := min(len(dst), a.size)
	if n == 0 {
		return 0
	}
	capacity := len(a.data)
	start := (a.pos - n + capacity) % capacity
	c := copy(dst[:n], a.data[start:min(start+n, capacity)])
	if c < n {
		copy(dst[c:n], a.data[:n-c])
	}
	return n
}

// Reset forgets every observed sample.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos = 0
	a.size = 0
}
