// Package heap is the one concrete PageStore this repository ships: a
// file of fixed-size pages, each laid out as a slotted page (a fixed
// slot-pointer array at the front, tuple bytes appended after it in
// insertion order, toward the end of the page).
//
// Tuple schema is deliberately not this package's concern — a tuple is
// stored and returned as an opaque byte slice. Anything layered on top
// (record format, field types, query operators) is free to interpret those
// bytes however it likes; the storage core itself never does.
package heap

import (
	"encoding/binary"
	"fmt"
	"sync"

	"storemy/pkg/concurrency/transaction"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/page"
)

// slotPointerSize is 2 bytes of offset + 2 bytes of length per slot.
const slotPointerSize = 4

// Page is the concrete page.Page backing a heap file: a slotted page of
// opaque tuple bytes.
type Page struct {
	mutex sync.RWMutex

	id           page.PageDescriptor
	numSlots     int
	slotOffset   []uint16
	slotLength   []uint16
	freeSpacePtr uint16
	tupleBytes   []byte
	dirtyBy      *transaction.ID
	beforeImage  []byte
}

// NewEmptyPage builds a zeroed page of the given identity.
func NewEmptyPage(id page.PageDescriptor) (*Page, error) {
	return NewPage(id, make([]byte, page.PageSize))
}

// NewPage deserializes data (exactly page.PageSize bytes) into a Page.
func NewPage(id page.PageDescriptor, data []byte) (*Page, error) {
	if len(data) != page.PageSize {
		return nil, fmt.Errorf("heap: invalid page data size: expected %d, got %d", page.PageSize, len(data))
	}

	numSlots := maxSlotsFor(page.PageSize)
	hp := &Page{
		id:           id,
		numSlots:     numSlots,
		slotOffset:   make([]uint16, numSlots),
		slotLength:   make([]uint16, numSlots),
		freeSpacePtr: uint16(numSlots * slotPointerSize),
		beforeImage:  make([]byte, page.PageSize),
	}

	if err := hp.parse(data); err != nil {
		return nil, err
	}
	copy(hp.beforeImage, data)
	return hp, nil
}

// maxSlotsFor picks a fixed slot budget sized so the pointer array leaves
// most of the page for tuple bytes. The budget is generous rather than
// schema-derived since tuples here carry no fixed width.
func maxSlotsFor(pageSize int) int {
	return pageSize / 64
}

func (p *Page) ID() primitives.PageID {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.id
}

func (p *Page) IsDirty() *transaction.ID {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.dirtyBy
}

func (p *Page) MarkDirty(dirty bool, tid *transaction.ID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if dirty {
		p.dirtyBy = tid
	} else {
		p.dirtyBy = nil
	}
}

func (p *Page) Data() []byte {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.serialize()
}

func (p *Page) BeforeImage() page.Page {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	before, _ := NewPage(p.id, p.beforeImage)
	return before
}

func (p *Page) SetBeforeImage() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.beforeImage = p.serialize()
}

// revertToBeforeImage resets this page's slot array and tuple bytes to its
// before-image and clears its dirty marker. Called by File.DiscardPage when
// a transaction that dirtied this page aborts: the before-image is the
// page's state as of its last flush (or, if never flushed, as loaded), since
// SetBeforeImage is only called after a successful commit flush or a
// BufferPool.FlushAllPages write.
func (p *Page) revertToBeforeImage() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	_ = p.parse(p.beforeImage)
	p.dirtyBy = nil
}

// serialize must be called with the lock already held.
func (p *Page) serialize() []byte {
	buf := make([]byte, page.PageSize)
	for i := 0; i < p.numSlots; i++ {
		off := i * slotPointerSize
		binary.LittleEndian.PutUint16(buf[off:], p.slotOffset[i])
		binary.LittleEndian.PutUint16(buf[off+2:], p.slotLength[i])
	}
	// Tuple bytes were written directly into a scratch buffer kept in sync
	// with the slot array; re-read them from that buffer's backing store.
	copy(buf[p.tupleRegionStart():], p.tupleBytes)
	return buf
}

// tupleRegionStart is the first byte after the slot-pointer header.
func (p *Page) tupleRegionStart() int {
	return p.numSlots * slotPointerSize
}

func (p *Page) parse(data []byte) error {
	for i := 0; i < p.numSlots; i++ {
		off := i * slotPointerSize
		p.slotOffset[i] = binary.LittleEndian.Uint16(data[off:])
		p.slotLength[i] = binary.LittleEndian.Uint16(data[off+2:])
	}

	region := p.tupleRegionStart()
	p.tupleBytes = make([]byte, page.PageSize-region)
	copy(p.tupleBytes, data[region:])

	maxOffset := uint16(0)
	for i := 0; i < p.numSlots; i++ {
		if p.slotOffset[i] == 0 {
			continue
		}
		end := p.slotOffset[i] + p.slotLength[i]
		if end > maxOffset {
			maxOffset = end
		}
	}
	if maxOffset > uint16(region) {
		p.freeSpacePtr = maxOffset
	} else {
		p.freeSpacePtr = uint16(region)
	}
	return nil
}

// NumEmptySlots reports how many slots are currently unused.
func (p *Page) NumEmptySlots() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.numEmptySlots()
}

func (p *Page) numEmptySlots() int {
	n := 0
	for i := 0; i < p.numSlots; i++ {
		if p.slotOffset[i] == 0 {
			n++
		}
	}
	return n
}

// InsertTuple places data into the first free slot and returns its slot
// number.
func (p *Page) InsertTuple(data []byte) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	slot := -1
	for i := 0; i < p.numSlots; i++ {
		if p.slotOffset[i] == 0 {
			slot = i
			break
		}
	}
	if slot == -1 {
		return 0, fmt.Errorf("heap: page %s has no free slot", p.id)
	}

	size := uint16(len(data))
	region := p.tupleRegionStart()
	regionOffset := int(p.freeSpacePtr) - region
	if regionOffset+len(data) > len(p.tupleBytes) {
		return 0, fmt.Errorf("heap: page %s has no free space for %d bytes", p.id, len(data))
	}

	copy(p.tupleBytes[regionOffset:], data)
	p.slotOffset[slot] = p.freeSpacePtr
	p.slotLength[slot] = size
	p.freeSpacePtr += size
	return slot, nil
}

// ReadTuple returns the bytes stored at slot, or an error if the slot is
// empty.
func (p *Page) ReadTuple(slot int) ([]byte, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if slot < 0 || slot >= p.numSlots || p.slotOffset[slot] == 0 {
		return nil, fmt.Errorf("heap: slot %d is empty", slot)
	}
	region := p.tupleRegionStart()
	start := int(p.slotOffset[slot]) - region
	end := start + int(p.slotLength[slot])
	out := make([]byte, end-start)
	copy(out, p.tupleBytes[start:end])
	return out, nil
}

// DeleteTuple empties slot. Space is reclaimed lazily; this package does
// not compact.
func (p *Page) DeleteTuple(slot int) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if slot < 0 || slot >= p.numSlots || p.slotOffset[slot] == 0 {
		return fmt.Errorf("heap: slot %d is already empty", slot)
	}
	p.slotOffset[slot] = 0
	p.slotLength[slot] = 0
	return nil
}
