// Package transaction defines transaction identity and per-transaction state
// tracked by the buffer pool: which pages it has touched, which it has
// dirtied, and what phase of its lifecycle it is in.
package transaction

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var transactionCounter int64

// ID is the opaque identity of a transaction. Equality and ordering are by
// the monotonic sequence number; the trace field only makes the transaction
// easier to find in logs and never participates in equality.
type ID struct {
	seq   int64
	trace uuid.UUID
}

// New allocates a fresh, never-reused transaction identity.
func New() *ID {
	return &ID{
		seq:   atomic.AddInt64(&transactionCounter, 1),
		trace: uuid.New(),
	}
}

// FromValue reconstructs an ID with a specific sequence number. Used only by
// tests that need deterministic, comparable transaction identities.
func FromValue(seq int64) *ID {
	return &ID{seq: seq}
}

func (id *ID) Seq() int64 {
	return id.seq
}

func (id *ID) String() string {
	return fmt.Sprintf("TID-%d", id.seq)
}

// Trace returns this transaction's correlation UUID. The logging helpers are
// given String() (the sequence number), so the trace does not appear in log
// lines.
func (id *ID) Trace() string {
	return id.trace.String()
}

func (id *ID) Equals(other *ID) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.seq == other.seq
}
