// Package buffer implements the buffer pool: a fixed set of frames caching
// disk pages, backed by an LRU-K replacer for eviction.
package buffer

import (
	"sync"

	"github.com/panjf2000/ants"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/buffer/replacer"
	"github.com/Blackdeer1524/reldb/src/pkg/assert"
	"github.com/Blackdeer1524/reldb/src/pkg/common"
	"github.com/Blackdeer1524/reldb/src/storage/disk"
	"github.com/Blackdeer1524/reldb/src/storage/page"
)

// flushWorkers bounds how many pages FlushAllPages writes back concurrently.
const flushWorkers = 8

// DiskManager is the synchronous page_id -> bytes collaborator the pool
// reads through and writes back to on eviction/flush.
type DiskManager interface {
	AllocatePage() common.PageID
	ReadPage(id common.PageID, out []byte) error
	WritePage(id common.PageID, bytes []byte) error
}

var _ DiskManager = (*disk.Manager)(nil)

// Pool is the buffer pool manager. Every single-page operation holds mu for
// its entire duration: at most one structural change to
// pageTable/frames/freeList is in flight at a time. FlushAllPages holds mu
// only while listing resident pages, then flushes each one through FlushPage.
type Pool struct {
	mu sync.Mutex

	frames    []*page.Page
	pageTable map[common.PageID]common.FrameID
	freeList  []common.FrameID

	replacer *replacer.LRUKReplacer
	disk     DiskManager

	log *zap.Logger
}

func New(poolSize int, k int, disk DiskManager, log *zap.Logger) *Pool {
	assert.Assert(poolSize > 0, "pool size must be positive")

	frames := make([]*page.Page, poolSize)
	free := make([]common.FrameID, poolSize)
	for i := range frames {
		frames[i] = page.New()
		free[i] = common.FrameID(poolSize - 1 - i) // grabFrame pops from the tail, so this yields frame 0 first
	}

	return &Pool{
		frames:    frames,
		pageTable: make(map[common.PageID]common.FrameID),
		freeList:  free,
		replacer:  replacer.New(poolSize, k),
		disk:      disk,
		log:       log,
	}
}

// grabFrame returns a frame to host a new resident page, evicting one if
// the free list is empty. Caller holds mu.
func (p *Pool) grabFrame() (common.FrameID, bool) {
	if n := len(p.freeList); n > 0 {
		fid := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return fid, true
	}

	victim, ok := p.replacer.Evict()
	if !ok {
		return 0, false
	}
	fid := common.FrameID(victim)

	victimPage := p.frames[fid]
	if victimPage.IsDirty() {
		if err := p.disk.WritePage(common.PageID(victimPage.ID()), victimPage.Data()); err != nil {
			p.log.Warn("failed to flush evicted page", zap.Int32("page_id", victimPage.ID()), zap.Error(err))
		}
	}
	delete(p.pageTable, common.PageID(victimPage.ID()))
	victimPage.Reset()

	return fid, true
}

// NewPage allocates a fresh page, installs it in a frame pinned once, and
// returns its id and data. Returns ok=false iff no frame is available.
func (p *Pool) NewPage() (common.PageID, []byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.grabFrame()
	if !ok {
		return 0, nil, false
	}

	id := p.disk.AllocatePage()
	pg := p.frames[fid]
	pg.Init(int32(id))

	p.pageTable[id] = fid
	p.replacer.RecordAccess(int32(fid))
	p.replacer.SetEvictable(int32(fid), false)

	p.log.Debug("new page", zap.Int32("page_id", int32(id)), zap.Int32("frame_id", int32(fid)))
	return id, pg.Data(), true
}

// FetchPage pins id, reading it from disk on first access. Returns
// ok=false iff the page isn't resident and no frame could be obtained.
func (p *Pool) FetchPage(id common.PageID) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fid, ok := p.pageTable[id]; ok {
		pg := p.frames[fid]
		pg.Pin()
		p.replacer.RecordAccess(int32(fid))
		p.replacer.SetEvictable(int32(fid), false)
		return pg.Data(), true
	}

	fid, ok := p.grabFrame()
	if !ok {
		return nil, false
	}

	pg := p.frames[fid]
	if err := p.disk.ReadPage(id, pg.Data()); err != nil {
		p.log.Warn("failed to read page from disk", zap.Int32("page_id", int32(id)), zap.Error(err))
		p.freeList = append(p.freeList, fid)
		return nil, false
	}
	pg.Init(int32(id))

	p.pageTable[id] = fid
	p.replacer.RecordAccess(int32(fid))
	p.replacer.SetEvictable(int32(fid), false)

	return pg.Data(), true
}

// UnpinPage decrements id's pin count, OR-ing in dirty. Returns false if
// the page isn't resident or its pin count is already zero.
func (p *Pool) UnpinPage(id common.PageID, dirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return false
	}
	pg := p.frames[fid]
	if pg.PinCount() <= 0 {
		return false
	}

	if dirty {
		pg.SetDirty(true)
	}
	pg.Unpin()
	if pg.PinCount() == 0 {
		p.replacer.SetEvictable(int32(fid), true)
	}
	return true
}

// FlushPage writes id's current bytes to disk unconditionally and clears
// its dirty flag.
func (p *Pool) FlushPage(id common.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return false
	}
	pg := p.frames[fid]
	if err := p.disk.WritePage(id, pg.Data()); err != nil {
		p.log.Warn("flush_page failed", zap.Int32("page_id", int32(id)), zap.Error(err))
		return false
	}
	pg.SetDirty(false)
	return true
}

// FlushAllPages flushes every resident page, writing pages back to disk
// concurrently over a bounded worker pool rather than one at a time.
func (p *Pool) FlushAllPages() {
	p.mu.Lock()
	ids := make([]common.PageID, 0, len(p.pageTable))
	for id := range p.pageTable {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	workers := flushWorkers
	if workers > len(ids) {
		workers = len(ids)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		p.log.Warn("failed to start flush worker pool, flushing serially", zap.Error(err))
		for _, id := range ids {
			p.FlushPage(id)
		}
		return
	}
	defer pool.Release()

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for _, id := range ids {
		id := id
		if submitErr := pool.Submit(func() {
			defer wg.Done()
			p.FlushPage(id)
		}); submitErr != nil {
			p.log.Warn("failed to submit page flush", zap.Int32("page_id", int32(id)), zap.Error(submitErr))
			wg.Done()
		}
	}
	wg.Wait()
}

// DeletePage removes id from the pool. Returns true if absent, false if
// still pinned, else resets its frame and returns it to the free list.
func (p *Pool) DeletePage(id common.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return true
	}
	pg := p.frames[fid]
	if pg.PinCount() > 0 {
		return false
	}

	delete(p.pageTable, id)
	p.replacer.Remove(int32(fid))
	pg.Reset()
	p.freeList = append(p.freeList, fid)
	return true
}

// PinCount reports id's current pin count (0 if not resident). Diagnostic
// helper carried from original_source's BufferPoolManager::GetPinCount.
func (p *Pool) PinCount(id common.PageID) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return 0
	}
	return p.frames[fid].PinCount()
}

func (p *Pool) pageAt(id common.PageID) (*page.Page, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return nil, false
	}
	return p.frames[fid], true
}
