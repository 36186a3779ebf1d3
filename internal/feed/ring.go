package feed

// Ring is a fixed-capacity circular buffer of samples. Pushing past
// capacity evicts the oldest sample. Ring is not safe for concurrent use;
// the owning aggregator guards it.
type Ring struct {
	buf   []Sample
	head  int // next write position
	count int
}

// NewRing creates a ring holding at most capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Sample, capacity)}
}

// Push adds s as the newest sample.
func (r *Ring) Push(s Sample) {
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Samples returns a copy of the retained samples, newest first.
func (r *Ring) Samples() []Sample {
	out := make([]Sample, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head - 1 - i + len(r.buf)) % len(r.buf)
		out[i] = r.buf[idx]
	}
	return out
}

// Len returns the number of retained samples.
func (r *Ring) Len() int {
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Clear drops every sample.
func (r *Ring) Clear() {
	for i := range r.buf {
		r.buf[i] = Sample{}
	}
	r.head = 0
	r.count = 0
}
