package tension

// ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest
// element. Not safe for concurrent use.
type ring[T any] struct {
	data  []T
	head  int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{data: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

func (r *ring[T]) len() int { return r.count }

// items returns the contents oldest first.
func (r *ring[T]) items() []T {
	out := make([]T, r.count)
	start := (r.head - r.count + len(r.data)) % len(r.data)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// tail returns up to n of the newest elements, oldest first.
func (r *ring[T]) tail(n int) []T {
	all := r.items()
	if n < len(all) {
		return all[len(all)-n:]
	}
	return all
}

func (r *ring[T]) last() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.data[(r.head-1+len(r.data))%len(r.data)], true
}
