package page

import (
	"fmt"
	"os"
	"sync"

	"storemy/pkg/primitives"
)

// BaseFile is the shared file-I/O core every concrete PageStore embeds: it
// owns the os.File handle and implements the fixed-size-pages-concatenated-
// in-file-order layout (page k occupies byte range [k*PageSize,
// (k+1)*PageSize)), guarded by a single read/write mutex.
//
// It intentionally knows nothing about tuples or slots — that is the
// concrete PageStore's job, built on top of ReadPageData/WritePageData.
type BaseFile struct {
	mutex sync.RWMutex
	file  *os.File
	path  string
}

// NewBaseFile opens (creating if necessary) the file at path.
func NewBaseFile(path string) (*BaseFile, error) {
	if path == "" {
		return nil, fmt.Errorf("page: file path cannot be empty")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("page: open %s: %w", path, err)
	}
	return &BaseFile{file: f, path: path}, nil
}

// FilePath returns the path this file was opened from.
func (bf *BaseFile) FilePath() string {
	return bf.path
}

// NumPages returns ceil(file_size / PageSize).
func (bf *BaseFile) NumPages() (primitives.PageNumber, error) {
	bf.mutex.RLock()
	defer bf.mutex.RUnlock()

	if bf.file == nil {
		return 0, fmt.Errorf("page: file is closed")
	}
	info, err := bf.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("page: stat: %w", err)
	}

	n := info.Size() / int64(PageSize)
	if info.Size()%int64(PageSize) != 0 {
		n++
	}
	return primitives.PageNumber(n), nil
}

// ReadPageData reads exactly PageSize bytes at the offset for pageNo.
func (bf *BaseFile) ReadPageData(pageNo primitives.PageNumber) ([]byte, error) {
	bf.mutex.RLock()
	defer bf.mutex.RUnlock()

	if bf.file == nil {
		return nil, fmt.Errorf("page: file is closed")
	}

	data := make([]byte, PageSize)
	offset := int64(pageNo) * int64(PageSize)
	if _, err := bf.file.ReadAt(data, offset); err != nil {
		return nil, fmt.Errorf("page: read page %d: %w", pageNo, err)
	}
	return data, nil
}

// WritePageData writes exactly PageSize bytes of data at the offset for
// pageNo, then syncs.
func (bf *BaseFile) WritePageData(pageNo primitives.PageNumber, data []byte) error {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	if bf.file == nil {
		return fmt.Errorf("page: file is closed")
	}
	if len(data) != PageSize {
		return fmt.Errorf("page: write page %d: expected %d bytes, got %d", pageNo, PageSize, len(data))
	}

	offset := int64(pageNo) * int64(PageSize)
	if _, err := bf.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("page: write page %d: %w", pageNo, err)
	}
	return bf.file.Sync()
}

// AllocateNewPage atomically extends the file by one zero-filled page and
// returns its page number.
func (bf *BaseFile) AllocateNewPage() (primitives.PageNumber, error) {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	if bf.file == nil {
		return 0, fmt.Errorf("page: file is closed")
	}
	info, err := bf.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("page: stat: %w", err)
	}

	n := info.Size() / int64(PageSize)
	if info.Size()%int64(PageSize) != 0 {
		n++
	}

	zero := make([]byte, PageSize)
	if _, err := bf.file.WriteAt(zero, n*int64(PageSize)); err != nil {
		return 0, fmt.Errorf("page: allocate page %d: %w", n, err)
	}
	if err := bf.file.Sync(); err != nil {
		return 0, fmt.Errorf("page: allocate page %d: sync: %w", n, err)
	}
	return primitives.PageNumber(n), nil
}

// Close releases the underlying file handle. Safe to call more than once.
func (bf *BaseFile) Close() error {
	bf.mutex.Lock()
	defer bf.mutex.Unlock()

	if bf.file == nil {
		return nil
	}
	err := bf.file.Close()
	bf.file = nil
	return err
}
