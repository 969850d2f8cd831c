package page

import (
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/omendb/omendb/internal/dberr"
	"github.com/omendb/omendb/internal/logger"
	"github.com/omendb/omendb/internal/metrics"
)

// PageWriteLogger is implemented by the WAL so the page manager can hand
// off every physical write as a PageWrite record before applying it
// (spec.md §4.1 "WAL handoff"). A nil logger means no WAL is attached.
type PageWriteLogger interface {
	LogPageWrite(id uint64, data []byte) error
}

// Manager is the PageManager: the exclusive owner of the paged file and
// its page cache. Everyone else borrows pages by id.
//
// Grounded on the teacher's pkg/storage/kv.go KV type (raw fd + mmap +
// two-phase-fsync meta page), generalized to a dedicated header page, a
// singly-linked free list, and an explicit read-through LRU cache.
type Manager struct {
	path       string
	fd         *os.File
	pageSize   int
	headerSize int

	hdrMu sync.Mutex
	hdr   *header

	fileMu   sync.RWMutex // serializes file extension / mmap remap against readers
	mmapData []byte
	useMmap  bool
	compress bool

	cache      *cache
	LockMgr    *LockManager
	walHandoff PageWriteLogger

	log     *logger.Logger
	metrics *metrics.Metrics

	closed bool
}

// Options configures a Manager.
type Options struct {
	PageSize  int
	CacheSize int
	UseMmap   bool
	// Compress enables transparent CompressedPageFormat wrapping for
	// non-B+Tree-node pages (spec.md §4.1).
	Compress bool
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Open creates or opens a paged file at path.
func Open(path string, opts Options) (*Manager, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 10_000
	}

	fd, created, err := createOrOpen(path)
	if err != nil {
		return nil, dberr.IOf("page: open %s: %v", path, err)
	}

	m := &Manager{
		path:       path,
		fd:         fd,
		pageSize:   opts.PageSize,
		headerSize: HeaderPageSize,
		cache:      newCache(opts.CacheSize),
		LockMgr:    NewLockManager(0),
		useMmap:    opts.UseMmap,
		compress:   opts.Compress,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}

	if created {
		m.hdr = newHeader()
		if err := m.writeHeaderLocked(); err != nil {
			fd.Close()
			return nil, err
		}
		if err := fd.Sync(); err != nil {
			fd.Close()
			return nil, dberr.IOf("page: initial sync: %v", err)
		}
	} else {
		buf := make([]byte, HeaderPageSize)
		if _, err := fd.ReadAt(buf, 0); err != nil {
			fd.Close()
			return nil, dberr.IOf("page: read header: %v", err)
		}
		hdr, err := decodeHeader(buf)
		if err != nil {
			fd.Close()
			return nil, err
		}
		m.hdr = hdr
	}

	if m.useMmap {
		if err := m.remapLocked(); err != nil {
			// mmap is an optimization; fall back to seek+read on failure.
			m.useMmap = false
		}
	}

	return m, nil
}

func createOrOpen(path string) (*os.File, bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, false, err
			}
		}
		fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return nil, false, err
		}
		if dir := filepath.Dir(path); dir != "." {
			if df, err := os.Open(dir); err == nil {
				df.Sync()
				df.Close()
			}
		}
		return fd, true, nil
	}
	fd, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, err
	}
	return fd, false, nil
}

func (m *Manager) writeHeaderLocked() error {
	buf := m.hdr.encode()
	if _, err := m.fd.WriteAt(buf, 0); err != nil {
		return dberr.IOf("page: write header: %v", err)
	}
	return nil
}

// remapLocked (re)establishes the mmap over the current file size.
// Caller must hold fileMu for writing.
func (m *Manager) remapLocked() error {
	if m.mmapData != nil {
		unix.Munmap(m.mmapData)
		m.mmapData = nil
	}
	info, err := m.fd.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= int64(m.headerSize) {
		return nil
	}
	data, err := unix.Mmap(int(m.fd.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	m.mmapData = data
	return nil
}

// AllocatePage pops from the free list, or extends the file by one page.
func (m *Manager) AllocatePage() (PageID, error) {
	m.hdrMu.Lock()
	defer m.hdrMu.Unlock()

	if m.hdr.freeListHead != PageIDInvalid {
		id := m.hdr.freeListHead
		body, err := m.readPageRawLocked(id)
		if err != nil {
			return 0, err
		}
		m.hdr.freeListHead = freeListNext(body)
		if err := m.writeHeaderLocked(); err != nil {
			return 0, err
		}
		m.recordAlloc()
		return id, nil
	}

	id := PageID(m.hdr.pageCount + 1)
	m.hdr.pageCount++
	if err := m.extendFileLocked(id); err != nil {
		m.hdr.pageCount--
		return 0, err
	}
	if err := m.writeHeaderLocked(); err != nil {
		return 0, err
	}
	m.recordAlloc()
	return id, nil
}

func (m *Manager) recordAlloc() {
	if m.metrics != nil {
		m.metrics.PageAllocsTotal.Inc()
	}
}

func (m *Manager) extendFileLocked(id PageID) error {
	offset := m.pageOffset(id)
	zero := make([]byte, m.pageSize)
	if _, err := m.fd.WriteAt(zero, offset); err != nil {
		return dberr.IOf("page: extend file: %v", err)
	}
	if m.useMmap {
		m.fileMu.Lock()
		defer m.fileMu.Unlock()
		m.remapLocked()
	}
	return nil
}

func (m *Manager) pageOffset(id PageID) int64 {
	return int64(m.headerSize) + int64(id-1)*int64(m.pageSize)
}

// FreePage writes a free-list node into the page body and atomically
// updates the header's free-list head.
func (m *Manager) FreePage(id PageID) error {
	m.hdrMu.Lock()
	defer m.hdrMu.Unlock()

	if err := validatePageID(id, m.hdr.pageCount+1); err != nil {
		return err
	}

	body := make([]byte, m.pageSize)
	setFreeListNext(body, m.hdr.freeListHead)
	if _, err := m.fd.WriteAt(body, m.pageOffset(id)); err != nil {
		return dberr.IOf("page: free page write: %v", err)
	}
	m.hdr.freeListHead = id
	if err := m.writeHeaderLocked(); err != nil {
		return err
	}
	m.cache.invalidate(id)
	if m.metrics != nil {
		m.metrics.PageFreesTotal.Inc()
	}
	return nil
}

// ReadPage returns a page, served from cache when resident.
func (m *Manager) ReadPage(id PageID) (*Page, error) {
	m.hdrMu.Lock()
	pageCount := m.hdr.pageCount
	m.hdrMu.Unlock()
	if err := validatePageID(id, pageCount+1); err != nil {
		return nil, err
	}

	if data := m.cache.get(id); data != nil {
		if m.metrics != nil {
			m.metrics.PageCacheHits.Inc()
		}
		return &Page{ID: id, Data: data}, nil
	}
	if m.metrics != nil {
		m.metrics.PageCacheMisses.Inc()
	}

	data, err := m.readPageRaw(id)
	if err != nil {
		return nil, err
	}
	m.cache.put(id, data)
	return &Page{ID: id, Data: data}, nil
}

func (m *Manager) readPageRaw(id PageID) ([]byte, error) {
	m.fileMu.RLock()
	defer m.fileMu.RUnlock()
	return m.readPageRawLocked(id)
}

// readPageRawLocked reads a page bypassing the cache. Caller may or may
// not hold fileMu/hdrMu; it only touches the fd / mmap snapshot.
func (m *Manager) readPageRawLocked(id PageID) ([]byte, error) {
	offset := m.pageOffset(id)
	var physical []byte
	if m.useMmap && m.mmapData != nil && int(offset)+m.pageSize <= len(m.mmapData) {
		physical = make([]byte, m.pageSize)
		copy(physical, m.mmapData[offset:offset+int64(m.pageSize)])
	} else {
		physical = make([]byte, m.pageSize)
		if _, err := m.fd.ReadAt(physical, offset); err != nil {
			return nil, dberr.IOf("page: read page %d: %v", id, err)
		}
	}
	if !m.compress {
		return physical, nil
	}
	logical, err := decompressPage(physical)
	if err != nil {
		return nil, dberr.Corruptionf("page: decompress page %d: %v", id, err)
	}
	return logical, nil
}

// WritePage performs the WAL handoff (if attached) then the physical
// write, and refreshes the cache entry.
func (m *Manager) WritePage(id PageID, data []byte) error {
	if len(data) != m.pageSize {
		return dberr.InvalidInputf("page: write page %d: expected %d bytes, got %d", id, m.pageSize, len(data))
	}
	m.hdrMu.Lock()
	pageCount := m.hdr.pageCount
	m.hdrMu.Unlock()
	if err := validatePageID(id, pageCount+1); err != nil {
		return err
	}

	if m.walHandoff != nil {
		if err := m.walHandoff.LogPageWrite(uint64(id), data); err != nil {
			return err
		}
	}

	physical := data
	if m.compress {
		physical = compressPage(data, m.pageSize)
	}

	m.fileMu.RLock()
	_, err := m.fd.WriteAt(physical, m.pageOffset(id))
	m.fileMu.RUnlock()
	if err != nil {
		return dberr.IOf("page: write page %d: %v", id, err)
	}
	m.cache.put(id, append([]byte(nil), data...))
	return nil
}

// SetWALHandoff attaches a PageWriteLogger so future writes are logged
// before being applied.
func (m *Manager) SetWALHandoff(l PageWriteLogger) { m.walHandoff = l }

// Sync fsyncs the underlying file.
func (m *Manager) Sync() error {
	if err := m.fd.Sync(); err != nil {
		return dberr.IOf("page: sync: %v", err)
	}
	return nil
}

// PageCount returns the number of allocated data pages.
func (m *Manager) PageCount() uint64 {
	m.hdrMu.Lock()
	defer m.hdrMu.Unlock()
	return m.hdr.pageCount
}

// PageSize returns the configured data page size.
func (m *Manager) PageSize() int { return m.pageSize }

// CacheStats reports cumulative cache hit/miss counters.
func (m *Manager) CacheStats() (hits, misses uint64) { return m.cache.stats() }

// Close releases the mmap (if any) and closes the file.
func (m *Manager) Close() error {
	m.fileMu.Lock()
	defer m.fileMu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.mmapData != nil {
		unix.Munmap(m.mmapData)
		m.mmapData = nil
	}
	return m.fd.Close()
}
