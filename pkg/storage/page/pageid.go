package page

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"storemy/pkg/primitives"
)

// PageDescriptor is the concrete primitives.PageID used by every page kind
// in this storage core: a (table, page number) pair.
//
// PageDescriptor is deliberately a plain comparable value, not a pointer: it
// is used as a map key throughout the lock manager and buffer pool, and two
// descriptors naming the same page must compare equal there even when they
// were constructed independently (e.g. by two goroutines fetching the same
// page). A pointer receiver would make map lookups key off of identity
// instead of the (table, page) pair they are supposed to name.
type PageDescriptor struct {
	tableID primitives.TableID
	pageNum primitives.PageNumber
}

// NewPageDescriptor builds a PageDescriptor identifying page pageNum of
// table tableID.
func NewPageDescriptor(tableID primitives.TableID, pageNum primitives.PageNumber) PageDescriptor {
	return PageDescriptor{tableID: tableID, pageNum: pageNum}
}

func (pd PageDescriptor) GetTableID() primitives.TableID {
	return pd.tableID
}

func (pd PageDescriptor) PageNo() primitives.PageNumber {
	return pd.pageNum
}

func (pd PageDescriptor) Equals(other primitives.PageID) bool {
	if other == nil {
		return false
	}
	return pd.tableID == other.GetTableID() && pd.pageNum == other.PageNo()
}

func (pd PageDescriptor) HashCode() primitives.HashCode {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(pd.tableID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(pd.pageNum))
	h := fnv.New64a()
	h.Write(buf)
	return primitives.HashCode(h.Sum64())
}

func (pd PageDescriptor) String() string {
	return fmt.Sprintf("PageDescriptor(table=%d, page=%d)", pd.tableID, pd.pageNum)
}
