package har

// DefaultWindowSize holds 4 s of samples at the 50 Hz rate the bundled
// models were trained on.
const DefaultWindowSize = 200

// Window is a bounded FIFO over the most recent samples. Push evicts
// from the head once capacity is reached, so the buffer always holds
// the newest Size() samples in arrival order. Window is not safe for
// concurrent use; the pipeline serializes access.
type Window struct {
	buf   []Sample
	head  int
	count int
}

// NewWindow returns a Window holding up to size samples. Sizes below 1
// fall back to DefaultWindowSize.
func NewWindow(size int) *Window {
	if size < 1 {
		size = DefaultWindowSize
	}
	return &Window{buf: make([]Sample, size)}
}

// Push appends s, evicting the oldest sample when the window is full.
func (w *Window) Push(s Sample) {
	tail := (w.head + w.count) % len(w.buf)
	w.buf[tail] = s
	if w.count < len(w.buf) {
		w.count++
		return
	}
	// tail just overwrote the oldest entry
	w.head = (w.head + 1) % len(w.buf)
}

// Len reports the number of buffered samples.
func (w *Window) Len() int { return w.count }

// Size reports the capacity.
func (w *Window) Size() int { return len(w.buf) }

// Full reports whether the window holds Size() samples.
func (w *Window) Full() bool { return w.count == len(w.buf) }

// Snapshot copies the buffered samples in arrival order. The returned
// slice is independent of the window, so an inference can work on it
// while new samples keep arriving.
func (w *Window) Snapshot() []Sample {
	out := make([]Sample, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Reset discards all buffered samples.
func (w *Window) Reset() {
	w.head, w.count = 0, 0
}
