package heap

import (
	"testing"

	"storemy/pkg/primitives"
	"storemy/pkg/storage/page"
)

func newTestFile(t *testing.T) *File {
	t.Helper()
	f, err := NewFile(t.TempDir()+"/t.db", primitives.TableID(1))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestInsertTupleAllocatesOnFirstWrite(t *testing.T) {
	f := newTestFile(t)

	pages, err := f.InsertTuple([]byte("row one"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}

	n, err := f.NumPages()
	if err != nil {
		t.Fatalf("NumPages: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 allocated page, got %d", n)
	}
}

func TestSecondInsertBeforeFlushSeesFirst(t *testing.T) {
	restore := page.SetPageSizeForTest(256)
	defer restore()

	f := newTestFile(t)

	if _, err := f.InsertTuple([]byte("a")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	pages, err := f.InsertTuple([]byte("b"))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}

	hp := pages[0].(*Page)
	first, err := hp.ReadTuple(0)
	if err != nil {
		t.Fatalf("read slot 0: %v", err)
	}
	if string(first) != "a" {
		t.Fatalf("second insert's page lost the first insert's tuple: got %q", first)
	}
	second, err := hp.ReadTuple(1)
	if err != nil {
		t.Fatalf("read slot 1: %v", err)
	}
	if string(second) != "b" {
		t.Fatalf("expected second tuple in slot 1, got %q", second)
	}
}

func TestWritePageThenReadPageRoundTrips(t *testing.T) {
	f := newTestFile(t)

	pages, err := f.InsertTuple([]byte("durable"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	if err := f.WritePage(pages[0]); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	f2, err := NewFile(f.FilePath(), primitives.TableID(1))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()

	got, err := f2.ReadPage(pages[0].ID())
	if err != nil {
		t.Fatalf("ReadPage after reopen: %v", err)
	}
	hp := got.(*Page)
	data, err := hp.ReadTuple(0)
	if err != nil {
		t.Fatalf("ReadTuple: %v", err)
	}
	if string(data) != "durable" {
		t.Fatalf("expected the flushed tuple to survive reopening the file, got %q", data)
	}
}

func TestDeleteTupleFreesSlot(t *testing.T) {
	f := newTestFile(t)

	pages, err := f.InsertTuple([]byte("temp"))
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	hp := pages[0].(*Page)
	before := hp.NumEmptySlots()

	rid := page.RecordID{PID: pages[0].ID(), Slot: 0}
	if _, err := f.DeleteTuple(rid); err != nil {
		t.Fatalf("DeleteTuple: %v", err)
	}

	if hp.NumEmptySlots() != before+1 {
		t.Fatalf("expected one more empty slot after delete, had %d now have %d", before, hp.NumEmptySlots())
	}
	if _, err := hp.ReadTuple(0); err == nil {
		t.Fatal("expected reading a deleted slot to fail")
	}
}

func TestPageSerializeDeserializeRoundTrip(t *testing.T) {
	pd := page.NewPageDescriptor(1, 0)
	hp, err := NewEmptyPage(pd)
	if err != nil {
		t.Fatalf("NewEmptyPage: %v", err)
	}
	if _, err := hp.InsertTuple([]byte("roundtrip")); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	data := hp.Data()
	restored, err := NewPage(pd, data)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	got, err := restored.ReadTuple(0)
	if err != nil {
		t.Fatalf("ReadTuple: %v", err)
	}
	if string(got) != "roundtrip" {
		t.Fatalf("expected %q, got %q", "roundtrip", got)
	}
}
