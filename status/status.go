package status

import (
	"monks.co/syncd/atom"
)

// Status tracks which destinations have a transfer in flight. Pairs run
// sequentially today, but destination writes must never be concurrent even
// if the driver is ever parallelized, so the guard lives here rather than
// in the loop.
type Status struct {
	*atom.Atom[map[string]bool]
}

func New() *Status {
	return &Status{
		atom.New(make(map[string]bool)),
	}
}

// Acquire marks a destination as having an in-flight transfer. It returns
// false if one is already in flight.
func (s *Status) Acquire(destination string) bool {
	acquired := false
	s.Swap(func(old map[string]bool) map[string]bool {
		if old[destination] {
			return old
		}
		out := make(map[string]bool, len(old)+1)
		for k, v := range old {
			out[k] = v
		}
		out[destination] = true
		acquired = true
		return out
	})
	return acquired
}

// Release clears the in-flight mark.
func (s *Status) Release(destination string) {
	s.Swap(func(old map[string]bool) map[string]bool {
		out := make(map[string]bool, len(old))
		for k, v := range old {
			out[k] = v
		}
		delete(out, destination)
		return out
	})
}

// InFlight reports whether a destination has a transfer in flight.
func (s *Status) InFlight(destination string) bool {
	return s.Deref()[destination]
}
