package transaction

import (
	"fmt"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"storemy/pkg/primitives"
)

// Status is the lifecycle phase of a transaction.
type Status int

const (
	Active Status = iota
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Permission is the access level a page was fetched under.
type Permission int

const (
	ReadOnly Permission = iota
	ReadWrite
)

// Stats is a point-in-time snapshot of a transaction's activity, surfaced for
// monitoring and tests; it is never consulted by commit/abort logic itself.
type Stats struct {
	PagesLocked int
	PagesDirty  int
}

// Context is the single source of truth for everything one transaction has
// done to the buffer pool: which pages it holds locks on, which of those it
// has dirtied, and what phase of commit/abort it is in. The buffer pool
// consults GetDirtyPages at transaction_complete time to know exactly which
// pages to flush (commit) or discard (abort).
type Context struct {
	ID *ID

	mutex     sync.RWMutex
	status    Status
	startTime time.Time
	endTime   time.Time

	lockedPages map[primitives.PageID]Permission
	dirtyPages  mapset.Set[primitives.PageID]
}

// NewContext creates a fresh, active transaction context for tid.
func NewContext(tid *ID) *Context {
	return &Context{
		ID:          tid,
		status:      Active,
		startTime:   time.Now(),
		lockedPages: make(map[primitives.PageID]Permission),
		dirtyPages:  mapset.NewThreadUnsafeSet[primitives.PageID](),
	}
}

func (c *Context) IsActive() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status == Active
}

func (c *Context) Status() Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.status
}

// Finish transitions the context out of Active. Calling it twice is a no-op
// after the first call has recorded the end time.
func (c *Context) Finish(status Status) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.status != Active {
		return
	}
	c.status = status
	c.endTime = time.Now()
}

// RecordAccess remembers the permission a page was fetched under. A page
// already held ReadWrite is never downgraded by a later ReadOnly fetch.
func (c *Context) RecordAccess(pid primitives.PageID, perm Permission) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if existing, ok := c.lockedPages[pid]; ok && existing == ReadWrite {
		return
	}
	c.lockedPages[pid] = perm
}

// MarkDirty records that this transaction dirtied pid. Safe to call more
// than once for the same page.
func (c *Context) MarkDirty(pid primitives.PageID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.dirtyPages.Add(pid)
}

// GetDirtyPages returns every page this transaction has dirtied, in no
// particular order.
func (c *Context) GetDirtyPages() []primitives.PageID {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.dirtyPages.ToSlice()
}

// GetLockedPages returns every page this transaction has fetched, dirty or
// not.
func (c *Context) GetLockedPages() []primitives.PageID {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	pids := make([]primitives.PageID, 0, len(c.lockedPages))
	for pid := range c.lockedPages {
		pids = append(pids, pid)
	}
	return pids
}

func (c *Context) Duration() time.Duration {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(c.startTime)
}

func (c *Context) Stats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return Stats{
		PagesLocked: len(c.lockedPages),
		PagesDirty:  c.dirtyPages.Cardinality(),
	}
}

func (c *Context) String() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return fmt.Sprintf("Transaction %s [status=%s duration=%v dirty=%d locked=%d]",
		c.ID.String(), c.status.String(), c.Duration(), c.dirtyPages.Cardinality(), len(c.lockedPages))
}
