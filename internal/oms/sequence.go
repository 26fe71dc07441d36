package oms

// Sequence issues order ids, which double as queue-priority sequence
// numbers: ids are strictly increasing, so the earlier order at a price
// level always carries the smaller number. One instance can be shared
// across the books of a run to keep ids unique across symbols. Not safe
// for concurrent use; a run is single-threaded by contract.
type Sequence struct {
	n uint64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

func (s *Sequence) Next() uint64 {
	s.n++
	return s.n
}

// Bump raises the counter so restored orders never collide with new ids.
func (s *Sequence) Bump(n uint64) {
	if n > s.n {
		s.n = n
	}
}
