package testfunc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/chriskuehl/vcfrange/variants/record"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

// MemoryStorageBackend serves objects from memory. MaxChunk, if nonzero, caps the bytes returned
// by each ReadChunk call, and FailAfter, if nonzero, makes a session fail with FailErr once that
// many bytes were served.
type MemoryStorageBackend struct {
	Objects   map[storage.Locator][]byte
	MaxChunk  int
	FailAfter int
	FailErr   error

	mu     sync.Mutex
	opened int
	closed int
}

func NewMemoryStorageBackend() *MemoryStorageBackend {
	return &MemoryStorageBackend{
		Objects: make(map[storage.Locator][]byte),
	}
}

func (b *MemoryStorageBackend) Put(loc storage.Locator, content []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Objects[loc] = content
}

func (b *MemoryStorageBackend) Open(ctx context.Context, loc storage.Locator) (storage.Session, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.Objects[loc]
	if !ok {
		return nil, &storage.TransportError{Op: "open", Locator: loc, Err: storage.ErrObjectNotFound}
	}
	b.opened++
	var r io.Reader = bytes.NewReader(content)
	if b.FailAfter > 0 {
		failErr := b.FailErr
		if failErr == nil {
			failErr = fmt.Errorf("connection reset")
		}
		r = io.MultiReader(io.LimitReader(r, int64(b.FailAfter)), &errReader{err: failErr})
	}
	if b.MaxChunk > 0 {
		r = &chunkReader{r: r, max: b.MaxChunk}
	}
	return storage.NewSession(loc, &memoryBody{Reader: r, backend: b}), nil
}

func (b *MemoryStorageBackend) Validate() []string {
	return nil
}

// OpenSessions returns how many sessions were opened and not yet closed.
func (b *MemoryStorageBackend) OpenSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened - b.closed
}

// Opened returns how many sessions were ever opened.
func (b *MemoryStorageBackend) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

type memoryBody struct {
	io.Reader
	backend *MemoryStorageBackend
	once    sync.Once
}

func (m *memoryBody) Close() error {
	m.once.Do(func() {
		m.backend.mu.Lock()
		defer m.backend.mu.Unlock()
		m.backend.closed++
	})
	return nil
}

type chunkReader struct {
	r   io.Reader
	max int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.max {
		p = p[:c.max]
	}
	return c.r.Read(p)
}

type errReader struct {
	err error
}

func (e *errReader) Read(p []byte) (int, error) {
	return 0, e.err
}

// EncodeRecords returns the v1 encoding of recs, back to back.
func EncodeRecords(recs ...record.Record) []byte {
	var buf bytes.Buffer
	for _, rec := range recs {
		if err := record.Encode(&buf, rec); err != nil {
			panic(fmt.Sprintf("unexpected error: %v", err))
		}
	}
	return buf.Bytes()
}
