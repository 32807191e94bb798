package memory

import (
	"os"
	"testing"

	"storemy/pkg/catalog"
	"storemy/pkg/concurrency/lock"
	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/heap"
	"storemy/pkg/storage/page"
)

func newTestStore(t *testing.T, tableID primitives.TableID) *heap.File {
	t.Helper()
	path := t.TempDir() + "/table.db"
	f, err := heap.NewFile(path, tableID)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func newTestPool(t *testing.T, capacity int, tableID primitives.TableID) (*BufferPool, *catalog.Catalog) {
	t.Helper()
	store := newTestStore(t, tableID)
	cat := catalog.NewCatalog()
	cat.Register(tableID, store)
	return NewBufferPool(capacity, cat), cat
}

func TestInsertThenGetPageSeesData(t *testing.T) {
	const tableID = primitives.TableID(1)
	bp, _ := newTestPool(t, DefaultCapacity, tableID)
	tid := transaction.New()

	pages, err := bp.InsertTuple(tid, tableID, []byte("hello"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 affected page, got %d", len(pages))
	}

	got, err := bp.GetPage(tid, pages[0].ID(), lock.Shared)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if got.ID() != pages[0].ID() {
		t.Fatal("GetPage returned a different page than InsertTuple reported")
	}
	if got.IsDirty() == nil || !got.IsDirty().Equals(tid) {
		t.Fatal("page should be dirty for the inserting transaction")
	}
}

func TestCommitFlushesAndClearsDirty(t *testing.T) {
	const tableID = primitives.TableID(1)
	bp, cat := newTestPool(t, DefaultCapacity, tableID)
	tid := transaction.New()

	pages, err := bp.InsertTuple(tid, tableID, []byte("payload"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	pid := pages[0].ID()

	if err := bp.TransactionComplete(tid, true); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if bp.Holds(tid, pid) {
		t.Fatal("commit should release all of tid's locks")
	}

	store, _ := cat.Store(tableID)
	onDisk, err := store.ReadPage(pid)
	if err != nil {
		t.Fatalf("re-read from store: %v", err)
	}
	if onDisk.IsDirty() != nil {
		t.Fatal("flushed page should not carry a dirty marker")
	}
}

func TestAbortDiscardsDirtyPages(t *testing.T) {
	const tableID = primitives.TableID(1)
	bp, _ := newTestPool(t, DefaultCapacity, tableID)
	tid := transaction.New()

	pages, err := bp.InsertTuple(tid, tableID, []byte("throwaway"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	pid := pages[0].ID()

	if err := bp.TransactionComplete(tid, false); err != nil {
		t.Fatalf("abort: %v", err)
	}

	tid2 := transaction.New()
	refetched, err := bp.GetPage(tid2, pid, lock.Shared)
	if err != nil {
		t.Fatalf("GetPage after abort: %v", err)
	}
	if refetched.IsDirty() != nil {
		t.Fatal("page refetched after abort should be clean")
	}
}

func TestEvictionFailsWhenEveryPageIsDirty(t *testing.T) {
	// Shrink the page so each one holds only a couple of slots, forcing
	// a second page to be allocated quickly.
	restore := page.SetPageSizeForTest(128)
	defer restore()

	const tableID = primitives.TableID(1)
	bp, _ := newTestPool(t, 2, tableID)
	tid := transaction.New()

	seen := map[primitives.PageID]bool{}
	for len(seen) < 2 {
		pages, err := bp.InsertTuple(tid, tableID, []byte("x"))
		if err != nil {
			t.Fatalf("InsertTuple: %v", err)
		}
		seen[pages[0].ID()] = true
	}

	// Both pages are now cached and dirty under tid, exactly filling the
	// pool's capacity of 2. A third, distinct page cannot be faulted in
	// because there is nothing clean to evict.
	thirdPid := page.NewPageDescriptor(tableID, 99)
	_, err := bp.GetPage(tid, thirdPid, lock.Shared)
	if err == nil {
		t.Fatal("expected eviction to fail when every cached page is dirty")
	}
}

func TestReleasePageDoesNotEndTransaction(t *testing.T) {
	const tableID = primitives.TableID(1)
	bp, _ := newTestPool(t, DefaultCapacity, tableID)
	tid := transaction.New()
	pid := page.NewPageDescriptor(tableID, 0)

	if _, err := bp.GetPage(tid, pid, lock.Shared); err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	bp.ReleasePage(tid, pid)
	if bp.Holds(tid, pid) {
		t.Fatal("ReleasePage should drop the lock on that page")
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
