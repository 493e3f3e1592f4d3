package stats

// Ring is a fixed-capacity buffer that evicts its oldest element when full
type Ring[T any] struct {
	buf   []T
	start int // Index of the oldest element
	size  int
}

// NewRing creates a ring holding at most capacity elements (minimum 1)
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element if the ring is full
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored elements
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the ring capacity
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Recent returns up to n elements, newest first
func (r *Ring[T]) Recent(n int) []T {
	if n > r.size || n < 0 {
		n = r.size
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+r.size-1-i)%len(r.buf)]
	}
	return out
}
