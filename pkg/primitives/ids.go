// Package primitives defines the identity tokens shared by every layer of the
// transactional storage core: table identifiers, page numbers, and the opaque
// PageID contract that the lock manager and buffer pool key off of.
//
// Nothing in this package understands tuples, schemas, or disk formats. It is
// deliberately the narrowest possible seam between the storage core and the
// page representations built on top of it.
package primitives

// TableID identifies a table's backing PageStore within a Catalog.
type TableID int32

// PageNumber is the zero-based offset of a page within its table's file.
type PageNumber int32

// HashCode is a hash value suitable for use in hand-rolled hash maps.
type HashCode uint64

// PageID is the opaque identity of a single page: a (table, page number) pair.
// The core never inspects a page's layout through its PageID; it only needs
// value equality and a stable hash so that heap pages, and any future page
// kind, can share the same lock table and buffer pool.
type PageID interface {
	GetTableID() TableID
	PageNo() PageNumber
	Equals(other PageID) bool
	HashCode() HashCode
	String() string
}
