package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JaimeStill/arbiter/pkg/lifecycle"
)

type memoryBlob struct {
	data []byte
	meta BlobMeta
}

type memory struct {
	mu     sync.RWMutex
	blobs  map[string]memoryBlob
	logger *slog.Logger
	now    func() time.Time
}

// NewMemory creates a process-local System for demo runs and tests.
// Contents are lost on exit.
func NewMemory(logger *slog.Logger) System {
	return &memory{
		blobs:  make(map[string]memoryBlob),
		logger: logger.With("system", "storage"),
		now:    time.Now,
	}
}

func (m *memory) Start(lc *lifecycle.Coordinator) error {
	m.logger.Info("starting in-memory storage")
	return nil
}

func (m *memory) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[key] = memoryBlob{
		data: data,
		meta: BlobMeta{
			Key:           key,
			ContentType:   contentType,
			ContentLength: int64(len(data)),
			LastModified:  m.now().UTC(),
		},
	}
	return nil
}

func (m *memory) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(slices.Clone(b.data))), nil
}

func (m *memory) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}

func (m *memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[key]
	return ok, nil
}

func (m *memory) Find(ctx context.Context, key string) (*BlobMeta, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	meta := b.meta
	return &meta, nil
}

// List pages through keys in lexical order. The marker is the last key of
// the previous page.
func (m *memory) List(ctx context.Context, prefix, marker string, maxResults int32) (*BlobList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		if strings.HasPrefix(k, prefix) && k > marker {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	result := &BlobList{Blobs: []BlobMeta{}}
	for i, k := range keys {
		if maxResults > 0 && int32(i) == maxResults {
			result.NextMarker = keys[i-1]
			break
		}
		result.Blobs = append(result.Blobs, m.blobs[k].meta)
	}
	return result, nil
}
