package memory

import (
	dberr "storemy/pkg/error"

	"github.com/sasha-s/go-deadlock"

	"storemy/pkg/catalog"
	"storemy/pkg/concurrency/lock"
	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/page"
)

// DefaultCapacity is the default number of pages a BufferPool holds, per
// spec §6.
const DefaultCapacity = 50

// BufferPool is the bounded page cache every client goes through to read or
// mutate a page. It owns one monitor lock guarding the cache, LRU ordering,
// and dirty bookkeeping. It calls into the LockManager only while not holding
// that lock, and the LockManager never calls back into the pool, so the two
// monitors can never deadlock each other.
type BufferPool struct {
	mu       deadlock.Mutex
	cache    *pageCache
	locks    *lock.LockManager
	catalog  *catalog.Catalog
	registry *transaction.Registry
}

// NewBufferPool builds a BufferPool of the given capacity, backed by
// catalog for table_id -> PageStore lookups and its own fresh LockManager.
func NewBufferPool(capacity int, cat *catalog.Catalog) *BufferPool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BufferPool{
		cache:    newPageCache(capacity),
		locks:    lock.NewLockManager(),
		catalog:  cat,
		registry: transaction.NewRegistry(),
	}
}

func permissionFor(mode lock.Mode) transaction.Permission {
	if mode == lock.Exclusive {
		return transaction.ReadWrite
	}
	return transaction.ReadOnly
}

// GetPage implements the spec's get_page protocol: acquire the lock, then
// serve from cache or fault in from the owning PageStore, evicting a clean
// page first if the cache is full.
func (bp *BufferPool) GetPage(tid *transaction.ID, pid primitives.PageID, mode lock.Mode) (page.Page, error) {
	log := logging.WithTx(tid.String())

	if err := bp.locks.Acquire(tid, pid, mode); err != nil {
		log.WithField("page", pid.String()).Warn("lock acquisition failed")
		return nil, dberr.TransactionAborted("GetPage", err)
	}
	bp.registry.GetOrCreate(tid).RecordAccess(pid, permissionFor(mode))

	bp.mu.Lock()
	defer bp.mu.Unlock()

	if p, ok := bp.cache.get(pid); ok {
		return p, nil
	}

	store, err := bp.catalog.Store(pid.GetTableID())
	if err != nil {
		return nil, dberr.DbException("GetPage", "no PageStore for table", err)
	}

	p, err := store.ReadPage(pid)
	if err != nil {
		return nil, dberr.DbException("GetPage", "PageStore.ReadPage failed", err)
	}

	if bp.cache.size() >= bp.cache.maxSize {
		if err := bp.evictOne(); err != nil {
			return nil, err
		}
	}

	if err := bp.cache.put(pid, p); err != nil {
		return nil, dberr.DbException("GetPage", "cache insert failed after eviction", err)
	}
	return p, nil
}

// evictOne drops the least-recently-used clean page. Must be called with mu
// held. Fails if every cached page is dirty (NO-STEAL: a dirty page is
// never evicted).
func (bp *BufferPool) evictOne() error {
	for _, pid := range bp.cache.lruOrder() {
		p, ok := bp.cache.peek(pid)
		if !ok {
			continue
		}
		if p.IsDirty() == nil {
			bp.cache.remove(pid)
			return nil
		}
	}
	logging.WithComponent("buffer_pool").Warn("eviction failed: buffer pool full of dirty pages")
	return dberr.DbException("evictOne", "buffer pool full of dirty pages", nil)
}

// InsertTuple delegates to data's table's PageStore, marks every page it
// touched dirty on tid's behalf, and installs them in the cache.
func (bp *BufferPool) InsertTuple(tid *transaction.ID, tableID primitives.TableID, data []byte) ([]page.Page, error) {
	store, err := bp.catalog.Store(tableID)
	if err != nil {
		return nil, dberr.DbException("InsertTuple", "no PageStore for table", err)
	}

	pages, err := store.InsertTuple(data)
	if err != nil {
		return nil, dberr.DbException("InsertTuple", "PageStore.InsertTuple failed", err)
	}
	return bp.installDirty(tid, pages)
}

// DeleteTuple is InsertTuple's symmetric counterpart.
func (bp *BufferPool) DeleteTuple(tid *transaction.ID, rid page.RecordID) ([]page.Page, error) {
	store, err := bp.catalog.Store(rid.PID.GetTableID())
	if err != nil {
		return nil, dberr.DbException("DeleteTuple", "no PageStore for table", err)
	}

	pages, err := store.DeleteTuple(rid)
	if err != nil {
		return nil, dberr.DbException("DeleteTuple", "PageStore.DeleteTuple failed", err)
	}
	return bp.installDirty(tid, pages)
}

func (bp *BufferPool) installDirty(tid *transaction.ID, pages []page.Page) ([]page.Page, error) {
	ctx := bp.registry.GetOrCreate(tid)

	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, p := range pages {
		p.MarkDirty(true, tid)
		ctx.MarkDirty(p.ID())
		if _, ok := bp.cache.get(p.ID()); ok {
			continue
		}
		if bp.cache.size() >= bp.cache.maxSize {
			if err := bp.evictOne(); err != nil {
				return nil, err
			}
		}
		if err := bp.cache.put(p.ID(), p); err != nil {
			return nil, dberr.DbException("installDirty", "cache insert failed after eviction", err)
		}
	}
	return pages, nil
}

// TransactionComplete is the strict-2PL release point: on commit it FORCEs
// every page tid dirtied (per its transaction.Context, the authoritative
// record of what it touched) to its PageStore and clears the marker; on
// abort it drops those pages from the cache and reverts them, at their
// owning PageStore, to their pre-mutation before-image so a later refetch
// cannot observe the aborted mutation. Either way, tid's locks are released
// last, and its context is retired from the registry. If a commit flush
// fails, the error is returned at once: tid's locks stay held and its
// context stays registered.
func (bp *BufferPool) TransactionComplete(tid *transaction.ID, commit bool) error {
	log := logging.WithTx(tid.String())

	ctx, err := bp.registry.Get(tid)
	if err != nil {
		// tid never touched a page through this pool; nothing to flush or
		// discard, but its locks (if any, acquired some other way) still
		// need releasing.
		bp.locks.ReleaseAll(tid)
		return nil
	}
	dirty := ctx.GetDirtyPages()

	bp.mu.Lock()
	var flushErr error
	if commit {
		for _, pid := range dirty {
			p, ok := bp.cache.get(pid)
			if !ok {
				continue
			}
			store, serr := bp.catalog.Store(pid.GetTableID())
			if serr != nil {
				flushErr = dberr.DbException("TransactionComplete", "no PageStore for table", serr)
				break
			}
			if werr := store.WritePage(p); werr != nil {
				flushErr = dberr.DbException("TransactionComplete", "flush failed during commit", werr)
				break
			}
			p.SetBeforeImage()
			p.MarkDirty(false, nil)
		}
	} else {
		for _, pid := range dirty {
			bp.cache.remove(pid)
			store, serr := bp.catalog.Store(pid.GetTableID())
			if serr != nil {
				log.WithField("page", pid.String()).Warn("no PageStore for table, cannot revert aborted page")
				continue
			}
			if derr := store.DiscardPage(pid); derr != nil {
				log.WithField("page", pid.String()).Warn("discard on abort failed")
			}
		}
	}
	bp.mu.Unlock()

	if flushErr != nil {
		log.Warn("commit flush failed, locks retained")
		return flushErr
	}

	bp.locks.ReleaseAll(tid)
	if commit {
		ctx.Finish(transaction.Committed)
	} else {
		ctx.Finish(transaction.Aborted)
	}
	bp.registry.Remove(tid)
	log.WithField("commit", commit).Debug("transaction complete")
	return nil
}

// FlushAllPages writes every dirty cached page to its PageStore, regardless
// of which transaction dirtied it. Intended for an orderly shutdown, not
// part of the commit/abort path.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, p := range bp.cache.all() {
		if p.IsDirty() == nil {
			continue
		}
		store, err := bp.catalog.Store(p.ID().GetTableID())
		if err != nil {
			return dberr.DbException("FlushAllPages", "no PageStore for table", err)
		}
		if err := store.WritePage(p); err != nil {
			return dberr.DbException("FlushAllPages", "flush failed", err)
		}
		p.SetBeforeImage()
		p.MarkDirty(false, nil)
	}
	return nil
}

// DiscardPage drops pid from the cache unconditionally, dirty or not. Used
// by recovery hooks outside the normal commit/abort path.
func (bp *BufferPool) DiscardPage(pid primitives.PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.cache.remove(pid)
}

// ReleasePage releases tid's lock on pid without ending the transaction.
// Used by operators that only need a page transiently (e.g. a scan that has
// finished with a page but isn't done with the transaction).
func (bp *BufferPool) ReleasePage(tid *transaction.ID, pid primitives.PageID) {
	bp.locks.Release(tid, pid)
}

// Holds reports whether tid currently holds any lock on pid.
func (bp *BufferPool) Holds(tid *transaction.ID, pid primitives.PageID) bool {
	return bp.locks.Holds(tid, pid)
}
