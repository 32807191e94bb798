package lock

import (
	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/primitives"
)

// table is the dual index of every currently held lock: pages to their
// holders, and transactions to the pages they hold locks on. It is not
// itself safe for concurrent use — every call is made with LockManager's
// monitor held.
type table struct {
	byPage map[primitives.PageID][]*entry
	byTx   map[*transaction.ID]map[primitives.PageID]Mode
}

func newTable() *table {
	return &table{
		byPage: make(map[primitives.PageID][]*entry),
		byTx:   make(map[*transaction.ID]map[primitives.PageID]Mode),
	}
}

// locksOn returns every entry currently held on pid.
func (t *table) locksOn(pid primitives.PageID) []*entry {
	return t.byPage[pid]
}

// holds reports whether tid already holds a lock at least as strong as mode
// on pid.
func (t *table) holds(tid *transaction.ID, pid primitives.PageID, mode Mode) bool {
	pages, ok := t.byTx[tid]
	if !ok {
		return false
	}
	current, ok := pages[pid]
	if !ok {
		return false
	}
	return current == Exclusive || (current == Shared && mode == Shared)
}

// isLocked reports whether any transaction holds any lock on pid.
func (t *table) isLocked(pid primitives.PageID) bool {
	return len(t.byPage[pid]) > 0
}

// grant records that tid now holds mode on pid. If tid already holds a lock
// on pid, the entry is upgraded in place (Shared -> Exclusive) or left
// unchanged (Exclusive, or a repeated Shared request); it is never
// downgraded.
func (t *table) grant(tid *transaction.ID, pid primitives.PageID, mode Mode) {
	pages, ok := t.byTx[tid]
	if !ok {
		pages = make(map[primitives.PageID]Mode)
		t.byTx[tid] = pages
	}

	if current, held := pages[pid]; held {
		if current == Exclusive || mode == Shared {
			return
		}
		pages[pid] = Exclusive
		for _, e := range t.byPage[pid] {
			if e.tid == tid {
				e.mode = Exclusive
				return
			}
		}
		return
	}

	pages[pid] = mode
	t.byPage[pid] = append(t.byPage[pid], &entry{tid: tid, mode: mode})
}

// release drops any lock tid holds on pid. A no-op if tid holds nothing
// there.
func (t *table) release(tid *transaction.ID, pid primitives.PageID) {
	if locks, ok := t.byPage[pid]; ok {
		kept := locks[:0]
		for _, e := range locks {
			if e.tid != tid {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(t.byPage, pid)
		} else {
			t.byPage[pid] = kept
		}
	}

	if pages, ok := t.byTx[tid]; ok {
		delete(pages, pid)
		if len(pages) == 0 {
			delete(t.byTx, tid)
		}
	}
}

// releaseAll drops every lock tid holds and returns the pages that were
// affected, so the caller can wake any waiters on each of them.
func (t *table) releaseAll(tid *transaction.ID) []primitives.PageID {
	pages, ok := t.byTx[tid]
	if !ok {
		return nil
	}

	affected := make([]primitives.PageID, 0, len(pages))
	for pid := range pages {
		affected = append(affected, pid)
	}
	for _, pid := range affected {
		t.release(tid, pid)
	}
	return affected
}
