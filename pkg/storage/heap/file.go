package heap

import (
	"fmt"
	"sync"

	"storemy/pkg/primitives"
	"storemy/pkg/storage/page"
)

// File is the concrete page.PageStore backing one table: a single OS file
// of fixed-size slotted pages, concatenated in file order.
//
// File keeps a small resident map of pages it has handed out. Without it, a
// second InsertTuple landing on a page the buffer pool has already cached
// (but not yet flushed, by NO-STEAL design) would re-read that page from
// disk and silently lose the first insert's in-memory mutation. The map is
// never evicted: once a page has round-tripped through here, this file
// keeps mutating the same in-memory object the buffer pool holds — which is
// exactly why an aborted transaction's mutation has to be undone explicitly
// rather than discarded by forgetting the resident entry. See DiscardPage.
type File struct {
	*page.BaseFile
	tableID primitives.TableID

	mu    sync.Mutex
	pages map[primitives.PageNumber]*Page
}

// NewFile opens (creating if necessary) the heap file at path for tableID.
func NewFile(path string, tableID primitives.TableID) (*File, error) {
	bf, err := page.NewBaseFile(path)
	if err != nil {
		return nil, err
	}
	return &File{BaseFile: bf, tableID: tableID, pages: make(map[primitives.PageNumber]*Page)}, nil
}

func (f *File) ID() primitives.TableID {
	return f.tableID
}

// ReadPage returns pid's resident page if this file has already handed one
// out, otherwise loads it from disk (or builds a freshly zeroed page, if pid
// is at or past the current end of file; the file itself is not extended)
// and remembers it for next time.
func (f *File) ReadPage(pid primitives.PageID) (page.Page, error) {
	pd, err := f.checkPageID(pid)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if hp, ok := f.pages[pd.PageNo()]; ok {
		return hp, nil
	}

	numPages, err := f.NumPages()
	if err != nil {
		return nil, fmt.Errorf("heap: read page: %w", err)
	}

	var hp *Page
	if pd.PageNo() >= numPages {
		hp, err = NewEmptyPage(pd)
	} else {
		var data []byte
		data, err = f.ReadPageData(pd.PageNo())
		if err == nil {
			hp, err = NewPage(pd, data)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("heap: read page: %w", err)
	}

	f.pages[pd.PageNo()] = hp
	return hp, nil
}

func (f *File) WritePage(p page.Page) error {
	if p == nil {
		return fmt.Errorf("heap: cannot write a nil page")
	}
	pd, err := f.checkPageID(p.ID())
	if err != nil {
		return err
	}
	if err := f.WritePageData(pd.PageNo(), p.Data()); err != nil {
		return err
	}

	hp, ok := p.(*Page)
	if !ok {
		return fmt.Errorf("heap: page %s is not a heap page", pd)
	}
	f.mu.Lock()
	f.pages[pd.PageNo()] = hp
	f.mu.Unlock()
	return nil
}

// InsertTuple appends data to the last page if it has room, otherwise
// allocates a new page.
func (f *File) InsertTuple(data []byte) ([]page.Page, error) {
	numPages, err := f.NumPages()
	if err != nil {
		return nil, fmt.Errorf("heap: insert tuple: %w", err)
	}

	if numPages > 0 {
		last := page.NewPageDescriptor(f.tableID, numPages-1)
		hp, err := f.loadHeapPage(last)
		if err != nil {
			return nil, err
		}
		if hp.NumEmptySlots() > 0 {
			if _, err := hp.InsertTuple(data); err == nil {
				return []page.Page{hp}, nil
			}
		}
	}

	newNo, err := f.AllocateNewPage()
	if err != nil {
		return nil, fmt.Errorf("heap: insert tuple: allocate: %w", err)
	}
	pd := page.NewPageDescriptor(f.tableID, newNo)
	hp, err := NewEmptyPage(pd)
	if err != nil {
		return nil, err
	}
	if _, err := hp.InsertTuple(data); err != nil {
		return nil, fmt.Errorf("heap: insert tuple: newly allocated page has no room: %w", err)
	}

	f.mu.Lock()
	f.pages[newNo] = hp
	f.mu.Unlock()
	return []page.Page{hp}, nil
}

// DeleteTuple removes the tuple named by rid from its page.
func (f *File) DeleteTuple(rid page.RecordID) ([]page.Page, error) {
	pd, err := f.checkPageID(rid.PID)
	if err != nil {
		return nil, err
	}
	hp, err := f.loadHeapPage(pd)
	if err != nil {
		return nil, err
	}
	if err := hp.DeleteTuple(rid.Slot); err != nil {
		return nil, fmt.Errorf("heap: delete tuple: %w", err)
	}
	return []page.Page{hp}, nil
}

// DiscardPage reverts pid's resident page, if any, to its before-image and
// clears its dirty marker. The resident entry itself is kept (not deleted)
// so the reverted object stays the one every other holder of this *Page
// already points to — there is no second "stale mutated copy" left behind
// for a later ReadPage to hand out.
func (f *File) DiscardPage(pid primitives.PageID) error {
	pd, err := f.checkPageID(pid)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	hp, ok := f.pages[pd.PageNo()]
	if !ok {
		return nil
	}
	hp.revertToBeforeImage()
	return nil
}

func (f *File) loadHeapPage(pd page.PageDescriptor) (*Page, error) {
	p, err := f.ReadPage(pd)
	if err != nil {
		return nil, err
	}
	hp, ok := p.(*Page)
	if !ok {
		return nil, fmt.Errorf("heap: page %s is not a heap page", pd)
	}
	return hp, nil
}

func (f *File) checkPageID(pid primitives.PageID) (page.PageDescriptor, error) {
	if pid == nil {
		return page.PageDescriptor{}, fmt.Errorf("heap: page id cannot be nil")
	}
	if pid.GetTableID() != f.tableID {
		return page.PageDescriptor{}, fmt.Errorf("heap: page %s does not belong to table %d", pid, f.tableID)
	}
	return page.NewPageDescriptor(pid.GetTableID(), pid.PageNo()), nil
}
