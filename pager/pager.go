// Package pager owns page-granular file I/O. It translates page numbers to
// byte offsets, loads pages on demand into a resident cache and writes dirty
// pages back. It has no knowledge of B-Tree semantics.
package pager

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"BriskDB/dberr"
	"BriskDB/logger"
)

// PageSize is the fixed size of every page, the unit of disk I/O and caching.
const PageSize = 4096

// Pager caches pages by number for the lifetime of the open file. There is no
// eviction at this scale; the dirty set is tracked separately so a policy that
// drops unpinned clean pages could be added behind GetPage without changing
// the contract.
type Pager struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	fileLength  int64
	pageCount   uint32
	pages       map[uint32][]byte
	dirty       map[uint32]bool
	syncOnFlush bool
}

// Open opens or creates the file at path and sizes the pager from its length.
func Open(path string, syncOnFlush bool) (*Pager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(dberr.ErrPageIO, "open %s: %v", path, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(dberr.ErrPageIO, "stat %s: %v", path, err)
	}
	p := &Pager{
		file:        file,
		path:        path,
		fileLength:  stat.Size(),
		pageCount:   uint32(stat.Size() / PageSize),
		pages:       make(map[uint32][]byte),
		dirty:       make(map[uint32]bool),
		syncOnFlush: syncOnFlush,
	}
	logger.Debugf("pager: opened %s (%d pages)", path, p.pageCount)
	return p, nil
}

// GetPage returns the mutable buffer of page n, loading it from the file (or
// zero-initializing a never-written page) on first access. The buffer stays
// valid until Close. Callers that mutate it must call MarkDirty.
func (p *Pager) GetPage(n uint32) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getPage(n)
}

func (p *Pager) getPage(n uint32) ([]byte, error) {
	if p.file == nil {
		return nil, errors.Wrap(dberr.ErrPageIO, "pager is closed")
	}
	if page, ok := p.pages[n]; ok {
		return page, nil
	}
	page := make([]byte, PageSize)
	offset := int64(n) * PageSize
	if offset < p.fileLength {
		if _, err := p.file.ReadAt(page, offset); err != nil && err != io.EOF &&
			!errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.Wrapf(dberr.ErrPageIO, "read page %d of %s: %v", n, p.path, err)
		}
	}
	p.pages[n] = page
	if n >= p.pageCount {
		p.pageCount = n + 1
	}
	return page, nil
}

// MarkDirty records that page n was modified and is pending flush.
func (p *Pager) MarkDirty(n uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pages[n]; ok {
		p.dirty[n] = true
	}
}

// Flush writes page n back to its file offset and clears its dirty flag.
func (p *Pager) Flush(n uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flush(n)
}

func (p *Pager) flush(n uint32) error {
	if p.file == nil {
		return errors.Wrap(dberr.ErrPageIO, "pager is closed")
	}
	page, ok := p.pages[n]
	if !ok {
		return nil
	}
	offset := int64(n) * PageSize
	if _, err := p.file.WriteAt(page, offset); err != nil {
		return errors.Wrapf(dberr.ErrPageIO, "write page %d of %s: %v", n, p.path, err)
	}
	if end := offset + PageSize; end > p.fileLength {
		p.fileLength = end
	}
	delete(p.dirty, n)
	return nil
}

// FlushAll writes every resident dirty page and optionally syncs the file.
func (p *Pager) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := range p.dirty {
		if err := p.flush(n); err != nil {
			return err
		}
	}
	if p.syncOnFlush {
		if err := p.file.Sync(); err != nil {
			return errors.Wrapf(dberr.ErrPageIO, "sync %s: %v", p.path, err)
		}
	}
	return nil
}

// NewPage allocates the next unused page number. The page materializes on the
// first GetPage for it and reaches disk on flush.
func (p *Pager) NewPage() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.pageCount
	p.pageCount++
	return n
}

// PageCount reports the number of pages, resident or on disk.
func (p *Pager) PageCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageCount
}

// Reset discards every resident page, clean or dirty, and re-sizes the pager
// from the file. Used to abandon in-memory state that was never flushed.
func (p *Pager) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return errors.Wrap(dberr.ErrPageIO, "pager is closed")
	}
	stat, err := p.file.Stat()
	if err != nil {
		return errors.Wrapf(dberr.ErrPageIO, "stat %s: %v", p.path, err)
	}
	p.pages = make(map[uint32][]byte)
	p.dirty = make(map[uint32]bool)
	p.fileLength = stat.Size()
	p.pageCount = uint32(stat.Size() / PageSize)
	logger.Debugf("pager: reset %s to %d on-disk pages", p.path, p.pageCount)
	return nil
}

// Sync forces the file to stable storage.
func (p *Pager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return errors.Wrap(dberr.ErrPageIO, "pager is closed")
	}
	if err := p.file.Sync(); err != nil {
		return errors.Wrapf(dberr.ErrPageIO, "sync %s: %v", p.path, err)
	}
	return nil
}

// Close flushes dirty pages, syncs and closes the file. Safe to call twice.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	for n := range p.dirty {
		if err := p.flush(n); err != nil {
			p.file.Close()
			p.file = nil
			return err
		}
	}
	if err := p.file.Sync(); err != nil {
		p.file.Close()
		p.file = nil
		return errors.Wrapf(dberr.ErrPageIO, "sync %s: %v", p.path, err)
	}
	err := p.file.Close()
	p.file = nil
	if err != nil {
		return errors.Wrapf(dberr.ErrPageIO, "close %s: %v", p.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (p *Pager) Path() string {
	return p.path
}
