// Package memory is the BufferPool: the bounded page cache that sits
// between clients and the table PageStores, routing every access through
// the LockManager and applying the FORCE/NO-STEAL durability policy at
// transaction boundaries.
package memory

import (
	"fmt"

	"storemy/pkg/primitives"
	"storemy/pkg/storage/page"
)

// pageCache is a fixed-capacity LRU index over cached pages. It is not
// itself safe for concurrent use: per spec, the cache map, LRU ordering, and
// dirty bookkeeping all live under BufferPool's single monitor, so every
// call here is made with that lock already held.
type pageCache struct {
	maxSize int
	byID    map[primitives.PageID]*node
	head    *node // most-recently-used sentinel
	tail    *node // least-recently-used sentinel
}

type node struct {
	pid  primitives.PageID
	page page.Page
	prev *node
	next *node
}

func newPageCache(maxSize int) *pageCache {
	head, tail := &node{}, &node{}
	head.next = tail
	tail.prev = head
	return &pageCache{maxSize: maxSize, byID: make(map[primitives.PageID]*node), head: head, tail: tail}
}

func (c *pageCache) addToFront(n *node) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *pageCache) removeNode(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *pageCache) moveToFront(n *node) {
	c.removeNode(n)
	c.addToFront(n)
}

// get returns the cached page for pid, touching it as most-recently-used.
func (c *pageCache) get(pid primitives.PageID) (page.Page, bool) {
	n, ok := c.byID[pid]
	if !ok {
		return nil, false
	}
	c.moveToFront(n)
	return n.page, true
}

// peek returns the cached page for pid without disturbing the LRU ordering.
// Used when a caller needs to inspect a page (e.g. its dirty marker during
// eviction scanning) without that inspection counting as a use.
func (c *pageCache) peek(pid primitives.PageID) (page.Page, bool) {
	n, ok := c.byID[pid]
	if !ok {
		return nil, false
	}
	return n.page, true
}

// put inserts or updates pid's entry as most-recently-used. Callers must
// check capacity (and evict if necessary) before inserting a new entry.
func (c *pageCache) put(pid primitives.PageID, p page.Page) error {
	if n, ok := c.byID[pid]; ok {
		n.page = p
		c.moveToFront(n)
		return nil
	}
	if len(c.byID) >= c.maxSize {
		return fmt.Errorf("memory: cache is full")
	}
	n := &node{pid: pid, page: p}
	c.byID[pid] = n
	c.addToFront(n)
	return nil
}

// remove drops pid's entry, if any.
func (c *pageCache) remove(pid primitives.PageID) {
	if n, ok := c.byID[pid]; ok {
		delete(c.byID, pid)
		c.removeNode(n)
	}
}

func (c *pageCache) size() int {
	return len(c.byID)
}

// lruOrder returns every cached page id, ordered least- to
// most-recently-used.
func (c *pageCache) lruOrder() []primitives.PageID {
	out := make([]primitives.PageID, 0, len(c.byID))
	for n := c.tail.prev; n != c.head; n = n.prev {
		out = append(out, n.pid)
	}
	return out
}

func (c *pageCache) all() []page.Page {
	out := make([]page.Page, 0, len(c.byID))
	for n := c.head.next; n != c.tail; n = n.next {
		out = append(out, n.page)
	}
	return out
}
