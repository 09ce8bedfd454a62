package mapretry

// reorderBuffer holds results that resolved ahead of an earlier item and
// releases them strictly by source index.
type reorderBuffer[In, Out any] struct {
	pending map[int]Result[In, Out]
	next    int
}

func newReorderBuffer[In, Out any]() *reorderBuffer[In, Out] {
	return &reorderBuffer[In, Out]{pending: make(map[int]Result[In, Out])}
}

func (b *reorderBuffer[In, Out]) add(r Result[In, Out]) {
	b.pending[r.Index] = r
}

// release returns the result for the next index in sequence, if resolved.
func (b *reorderBuffer[In, Out]) release() (Result[In, Out], bool) {
	r, ok := b.pending[b.next]
	if !ok {
		return r, false
	}
	delete(b.pending, b.next)
	b.next++
	return r, true
}

func (b *reorderBuffer[In, Out]) len() int {
	return len(b.pending)
}
