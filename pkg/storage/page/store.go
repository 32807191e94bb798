package page

import "storemy/pkg/primitives"

// PageStore is the external collaborator that owns a single table's durable
// storage. The buffer pool is the only caller: it reads pages on a miss,
// writes them back on FORCE-commit flush, and delegates tuple-level
// mutation to it, but never touches the underlying file directly.
//
// PageStore implementations are responsible for their own on-disk layout,
// tuple encoding, and schema — none of which the storage core inspects. The
// core treats the []Page an InsertTuple/DeleteTuple call returns as the
// authoritative set of pages to mark dirty and install in the cache.
type PageStore interface {
	// ReadPage loads the page identified by pid from durable storage.
	ReadPage(pid primitives.PageID) (Page, error)

	// WritePage persists p to durable storage at its own identity.
	WritePage(p Page) error

	// InsertTuple stores data as a new tuple, allocating or reusing a page
	// as needed, and returns every page it modified.
	InsertTuple(data []byte) ([]Page, error)

	// DeleteTuple removes the tuple at rid and returns every page it
	// modified.
	DeleteTuple(rid RecordID) ([]Page, error)

	// DiscardPage reverts pid's page to its pre-mutation before-image and
	// clears its dirty marker, if this store is holding one resident. Called
	// by the buffer pool on abort, after the page has already been dropped
	// from the cache, so that a subsequent ReadPage for pid cannot hand back
	// the aborting transaction's uncommitted mutation. A no-op if the store
	// holds no resident page for pid.
	DiscardPage(pid primitives.PageID) error

	// NumPages returns the number of pages currently allocated.
	NumPages() (primitives.PageNumber, error)

	// ID returns this store's table identifier.
	ID() primitives.TableID
}

// RecordID names a single tuple's slot on a page.
type RecordID struct {
	PID  primitives.PageID
	Slot int
}
