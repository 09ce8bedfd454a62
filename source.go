package mapretry

import "iter"

// Source is the primary sequence an Engine pulls items from.
// Next returns the next item and true, or false once the source is
// exhausted. After returning false it must keep returning false.
type Source[T any] interface {
	Next() (T, bool)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc[T any] func() (T, bool)

// Next implements Source.
func (f SourceFunc[T]) Next() (T, bool) {
	return f()
}

// SliceSource yields the elements of a slice in order.
type SliceSource[T any] struct {
	items []T
	pos   int
}

// FromSlice creates a Source over items. The slice is not copied.
func FromSlice[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

// Next implements Source.
func (s *SliceSource[T]) Next() (T, bool) {
	if s.pos >= len(s.items) {
		var zero T
		return zero, false
	}
	item := s.items[s.pos]
	s.pos++
	return item, true
}

// Remaining returns how many items have not been pulled yet.
func (s *SliceSource[T]) Remaining() int {
	return len(s.items) - s.pos
}

// SeqSource pulls items from an iter.Seq.
// Close releases the underlying iterator if the engine stops early.
type SeqSource[T any] struct {
	next func() (T, bool)
	stop func()
	done bool
}

// FromSeq creates a Source over seq.
func FromSeq[T any](seq iter.Seq[T]) *SeqSource[T] {
	next, stop := iter.Pull(seq)
	return &SeqSource[T]{next: next, stop: stop}
}

// Next implements Source.
func (s *SeqSource[T]) Next() (T, bool) {
	if s.done {
		var zero T
		return zero, false
	}
	v, ok := s.next()
	if !ok {
		s.done = true
		s.stop()
	}
	return v, ok
}

// Close stops the underlying iterator. It is safe to call more than once.
func (s *SeqSource[T]) Close() error {
	s.done = true
	s.stop()
	return nil
}

// ChannelSource receives items from a channel until it is closed.
type ChannelSource[T any] struct {
	ch <-chan T
}

// FromChannel creates a Source that blocks on ch for every item.
func FromChannel[T any](ch <-chan T) *ChannelSource[T] {
	return &ChannelSource[T]{ch: ch}
}

// Next implements Source.
func (s *ChannelSource[T]) Next() (T, bool) {
	v, ok := <-s.ch
	return v, ok
}
