package lock

import (
	"errors"
	"sync"

	"github.com/sasha-s/go-deadlock"

	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
)

// ErrDeadlock is returned by Acquire when granting the requested lock would
// complete a cycle in the waits-for graph. The caller must treat this as a
// mandatory abort of the requesting transaction.
var ErrDeadlock = errors.New("lock: deadlock detected")

// LockManager is the page-level shared/exclusive lock table described in the
// package doc: one monitor lock guards both the lock table and the waits-for
// graph, and a single condition variable wakes every blocked waiter on any
// release.
//
// The monitor itself is a [deadlock.Mutex] rather than a plain sync.Mutex.
// That catches a different class of bug than the waits-for graph does: a
// transaction deadlock is a cycle of *transactions* waiting on *pages*,
// detected deliberately by this package; a monitor deadlock would be a bug
// in this package itself — e.g. two goroutines each holding LockManager's
// monitor while blocked acquiring the other's — and go-deadlock panics with
// a full stack dump the moment one happens instead of hanging the test
// suite silently.
type LockManager struct {
	mu    deadlock.Mutex
	cond  *sync.Cond
	table *table
	graph *depGraph
}

func NewLockManager() *LockManager {
	lm := &LockManager{
		table: newTable(),
		graph: newDepGraph(),
	}
	lm.cond = sync.NewCond(&lm.mu)
	return lm
}

// Acquire blocks until tid holds a lock of at least mode on pid, or returns
// ErrDeadlock. It implements the algorithm from the package doc:
//
//  1. If tid already holds a sufficient lock, or the request is compatible
//     with every other holder, grant it immediately.
//  2. Otherwise record a waits-for edge to every conflicting holder and run
//     cycle detection rooted at tid. A cycle means deadlock: undo the edges
//     and fail.
//  3. Otherwise block on the condition variable. On every wake (real or
//     spurious), drop tid's stale edges and retry from step 1.
func (lm *LockManager) Acquire(tid *transaction.ID, pid primitives.PageID, mode Mode) error {
	log := logging.WithLock(tid.String(), pid.String())

	lm.mu.Lock()
	defer lm.mu.Unlock()

	for {
		if lm.table.holds(tid, pid, mode) {
			return nil
		}

		if granted, holders := lm.tryGrant(tid, pid, mode); granted {
			lm.table.grant(tid, pid, mode)
			lm.graph.removeWaiter(tid)
			log.WithField("mode", mode.String()).Debug("lock granted")
			return nil
		} else {
			for _, h := range holders {
				lm.graph.addEdge(tid, h)
			}

			if lm.graph.hasCycleFrom(tid) {
				lm.graph.removeWaiter(tid)
				log.WithField("mode", mode.String()).Warn("deadlock detected")
				return ErrDeadlock
			}

			log.WithField("mode", mode.String()).Debug("blocking on conflicting lock")
			lm.cond.Wait()
			lm.graph.removeWaiter(tid)
		}
	}
}

// tryGrant reports whether mode can be granted to tid on pid right now, and
// if not, the set of other transactions currently holding a lock that
// conflicts with the request. Because tid's own existing lock is never
// counted as a conflict, this single check also implements upgrade: a
// Shared-holding tid requesting Exclusive is granted exactly when no other
// transaction holds anything on the page.
func (lm *LockManager) tryGrant(tid *transaction.ID, pid primitives.PageID, mode Mode) (bool, []*transaction.ID) {
	var conflicts []*transaction.ID

	for _, e := range lm.table.locksOn(pid) {
		if e.tid == tid {
			continue
		}
		if mode == Shared && e.mode == Shared {
			continue
		}
		conflicts = append(conflicts, e.tid)
	}

	return len(conflicts) == 0, conflicts
}

// Release releases any lock tid holds on pid and wakes every blocked waiter.
// A no-op if tid holds no lock there.
func (lm *LockManager) Release(tid *transaction.ID, pid primitives.PageID) {
	lm.mu.Lock()
	lm.table.release(tid, pid)
	lm.graph.removeTransaction(tid)
	lm.mu.Unlock()
	lm.cond.Broadcast()
}

// ReleaseAll releases every lock tid holds, in a single pass, and wakes
// every blocked waiter. Called exactly once per transaction, at the
// transaction's commit/abort point (strict 2PL).
func (lm *LockManager) ReleaseAll(tid *transaction.ID) {
	lm.mu.Lock()
	lm.table.releaseAll(tid)
	lm.graph.removeTransaction(tid)
	lm.mu.Unlock()
	lm.cond.Broadcast()
}

// Holds reports whether tid currently holds any lock on pid.
func (lm *LockManager) Holds(tid *transaction.ID, pid primitives.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.table.holds(tid, pid, Shared)
}

// IsLocked reports whether any transaction holds a lock on pid.
func (lm *LockManager) IsLocked(pid primitives.PageID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.table.isLocked(pid)
}
