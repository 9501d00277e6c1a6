package buffer

import (
	"github.com/Blackdeer1524/reldb/src/pkg/common"
	"github.com/Blackdeer1524/reldb/src/storage/page"
)

// BasicPageGuard is a scoped handle over a fetched page. Its zero value is
// a "null" guard: Drop on it is a no-op. Go has no
// destructors, so callers must `defer g.Drop()` themselves; Take()
// transfers ownership the way a C++ move constructor would, leaving the
// source guard null.
type BasicPageGuard struct {
	pool    *Pool
	page    *page.Page
	id      common.PageID
	isDirty bool
}

func newBasicPageGuard(pool *Pool, id common.PageID, pg *page.Page) BasicPageGuard {
	return BasicPageGuard{pool: pool, page: pg, id: id}
}

// IsValid reports whether the guard currently owns a page.
func (g *BasicPageGuard) IsValid() bool { return g.page != nil }

func (g *BasicPageGuard) PageID() common.PageID { return g.id }

func (g *BasicPageGuard) Data() []byte { return g.page.Data() }

// MarkDirty records that the caller is about to, or has, modified the
// page's bytes; the dirty flag is OR'd in on Drop/Unpin.
func (g *BasicPageGuard) MarkDirty() { g.isDirty = true }

// Take transfers ownership to a new guard value, leaving g null.
func (g *BasicPageGuard) Take() BasicPageGuard {
	moved := *g
	g.pool = nil
	g.page = nil
	g.isDirty = false
	return moved
}

// Drop unpins the page with the accumulated dirty flag. A no-op if the
// guard is already null.
func (g *BasicPageGuard) Drop() {
	if g.page == nil {
		return
	}
	g.pool.UnpinPage(g.id, g.isDirty)
	g.pool = nil
	g.page = nil
	g.isDirty = false
}

// ReadPageGuard additionally holds the page's shared latch for its
// lifetime.
type ReadPageGuard struct {
	inner BasicPageGuard
}

func newReadPageGuard(pool *Pool, id common.PageID, pg *page.Page) ReadPageGuard {
	pg.RLock()
	return ReadPageGuard{inner: newBasicPageGuard(pool, id, pg)}
}

func (g *ReadPageGuard) IsValid() bool          { return g.inner.IsValid() }
func (g *ReadPageGuard) PageID() common.PageID  { return g.inner.PageID() }
func (g *ReadPageGuard) Data() []byte           { return g.inner.Data() }

func (g *ReadPageGuard) Take() ReadPageGuard {
	return ReadPageGuard{inner: g.inner.Take()}
}

// Drop unconditionally releases the shared latch before unpinning,
// regardless of the exit path.
func (g *ReadPageGuard) Drop() {
	if !g.inner.IsValid() {
		return
	}
	pg := g.inner.page
	pg.RUnlock()
	g.inner.Drop()
}

// WritePageGuard holds the page's exclusive latch for its lifetime.
type WritePageGuard struct {
	inner BasicPageGuard
}

func newWritePageGuard(pool *Pool, id common.PageID, pg *page.Page) WritePageGuard {
	pg.Lock()
	return WritePageGuard{inner: newBasicPageGuard(pool, id, pg)}
}

func (g *WritePageGuard) IsValid() bool         { return g.inner.IsValid() }
func (g *WritePageGuard) PageID() common.PageID { return g.inner.PageID() }
func (g *WritePageGuard) Data() []byte          { return g.inner.Data() }
func (g *WritePageGuard) MarkDirty()            { g.inner.MarkDirty() }

func (g *WritePageGuard) Take() WritePageGuard {
	return WritePageGuard{inner: g.inner.Take()}
}

func (g *WritePageGuard) Drop() {
	if !g.inner.IsValid() {
		return
	}
	pg := g.inner.page
	g.inner.Drop()
	pg.Unlock()
}

// FetchPageBasic returns a BasicPageGuard for id, pinning it as FetchPage
// would. ok is false if the page could not be fetched.
func (p *Pool) FetchPageBasic(id common.PageID) (BasicPageGuard, bool) {
	if _, ok := p.FetchPage(id); !ok {
		return BasicPageGuard{}, false
	}
	pg, ok := p.pageAt(id)
	if !ok {
		return BasicPageGuard{}, false
	}
	return newBasicPageGuard(p, id, pg), true
}

// FetchPageRead returns a ReadPageGuard, latching the page shared after
// pinning it.
func (p *Pool) FetchPageRead(id common.PageID) (ReadPageGuard, bool) {
	if _, ok := p.FetchPage(id); !ok {
		return ReadPageGuard{}, false
	}
	pg, ok := p.pageAt(id)
	if !ok {
		return ReadPageGuard{}, false
	}
	return newReadPageGuard(p, id, pg), true
}

// FetchPageWrite returns a WritePageGuard, latching the page exclusively
// after pinning it.
func (p *Pool) FetchPageWrite(id common.PageID) (WritePageGuard, bool) {
	if _, ok := p.FetchPage(id); !ok {
		return WritePageGuard{}, false
	}
	pg, ok := p.pageAt(id)
	if !ok {
		return WritePageGuard{}, false
	}
	return newWritePageGuard(p, id, pg), true
}

// NewPageGuarded allocates a fresh page and returns a WritePageGuard over
// it (the natural way to initialize a brand-new page's contents).
func (p *Pool) NewPageGuarded() (WritePageGuard, bool) {
	id, _, ok := p.NewPage()
	if !ok {
		return WritePageGuard{}, false
	}
	pg, ok := p.pageAt(id)
	if !ok {
		return WritePageGuard{}, false
	}
	return newWritePageGuard(p, id, pg), true
}
