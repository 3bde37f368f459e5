package testutil

import (
	"fmt"
	"sync"

	"github.com/gocql/gocql"

	"github.com/roach88/cqlbridge/internal/ir"
)

// Sequence hands out predictable identifiers: "<prefix>-1", "<prefix>-2"...
//
// Thread-safety: safe for concurrent use.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a sequence. The first call to Next returns "<prefix>-1".
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next returns the next identifier.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// DocumentID adapts the sequence to a document id generator.
func (s *Sequence) DocumentID() (ir.Value, error) {
	return ir.String(s.Next()), nil
}

// Reset rewinds the sequence.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}

// baseTxID is a version 1 UUID; TxIDs varies its node bytes.
const baseTxID = "5a2f6c00-8d4e-11ef-8000-000000000000"

// TxIDs returns a generator of distinct, reproducible version 1 UUIDs.
func TxIDs() func() gocql.UUID {
	base, err := gocql.ParseUUID(baseTxID)
	if err != nil {
		panic(err)
	}
	var (
		mu sync.Mutex
		n  uint16
	)
	return func() gocql.UUID {
		mu.Lock()
		defer mu.Unlock()
		n++
		id := base
		id[14] = byte(n >> 8)
		id[15] = byte(n)
		return id
	}
}
