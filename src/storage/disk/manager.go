// Package disk implements a synchronous page_id -> bytes read/write
// service. It is kept deliberately dumb — no caching, no write coalescing,
// no WAL — all of that lives above it in the buffer pool.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/reldb/src/pkg/common"
)

// PageSize is the fixed on-disk and in-memory page size.
const PageSize = 4096

var ErrNoSuchPage = errors.New("disk: no such page")

// Manager reads and writes fixed-size pages of a single backing file
// through an afero.Fs, so tests can swap in an in-memory filesystem
// (afero.NewMemMapFs) without touching real disk.
type Manager struct {
	fs   afero.Fs
	path string

	mu   sync.Mutex
	file afero.File

	nextPageID atomic.Int32

	log *zap.Logger
}

// New opens (creating if necessary) path on fs as the backing store for a
// single file's pages.
func New(fs afero.Fs, path string, log *zap.Logger) (*Manager, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}

	m := &Manager{
		fs:   fs,
		path: path,
		file: f,
		log:  log,
	}
	m.nextPageID.Store(int32(info.Size() / PageSize))

	return m, nil
}

// AllocatePage returns the next strictly monotonic page id.
func (m *Manager) AllocatePage() common.PageID {
	return common.PageID(m.nextPageID.Add(1) - 1)
}

// ReadPage fills out with the PageSize bytes stored at pageID, zero-filling
// pages that have never been written (a freshly allocated page reads as
// zeros until its first write).
func (m *Manager) ReadPage(pageID common.PageID, out []byte) error {
	if len(out) != PageSize {
		return fmt.Errorf("disk: read buffer must be %d bytes, got %d", PageSize, len(out))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * PageSize
	n, err := m.file.ReadAt(out, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("disk: read page %d: %w", pageID, err)
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}

	m.log.Debug("read page", zap.Int32("page_id", int32(pageID)))
	return nil
}

// WritePage persists bytes (which must be PageSize long) at pageID.
func (m *Manager) WritePage(pageID common.PageID, bytes []byte) error {
	if len(bytes) != PageSize {
		return fmt.Errorf("disk: write buffer must be %d bytes, got %d", PageSize, len(bytes))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * PageSize
	if _, err := m.file.WriteAt(bytes, offset); err != nil {
		return fmt.Errorf("disk: write page %d: %w", pageID, err)
	}

	m.log.Debug("wrote page", zap.Int32("page_id", int32(pageID)))
	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
