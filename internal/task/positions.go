package task

import "sync/atomic"

// Positions hands out task positions. The caller owns it and passes it
// to every builder that contributes to one group, so position N in the
// result always means item N of the request.
//
// Thread-safety: safe for concurrent use.
type Positions struct {
	next atomic.Int64
}

// NewPositions creates a counter whose first position is 0.
func NewPositions() *Positions {
	return &Positions{}
}

// NewPositionsAt creates a counter whose first position is start.
// Used when a request continues a previous page of work.
func NewPositionsAt(start int) *Positions {
	p := &Positions{}
	p.next.Store(int64(start))
	return p
}

// Next returns the next position.
func (p *Positions) Next() int {
	return int(p.next.Add(1) - 1)
}

// Issued returns how many positions have been handed out.
func (p *Positions) Issued() int {
	return int(p.next.Load())
}
