package storage

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

type memoryEntry struct {
	url     string
	status  Status
	retries int
}

// memoryStorage is a process local queue for runs without postgres. Failed
// urls are requeued until they failed maxRetries times.
type memoryStorage struct {
	mu      sync.Mutex
	known   mapset.Set[string]
	entries []*memoryEntry
}

const maxRetries = 3

func NewMemoryStorage() Storage {
	return &memoryStorage{
		known: mapset.NewThreadUnsafeSet[string](),
	}
}

func (m *memoryStorage) AddURLs(ctx context.Context, urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, url := range urls {
		if m.known.Add(url) {
			m.entries = append(m.entries, &memoryEntry{url: url, status: Queued})
		}
	}
	return nil
}

func (m *memoryStorage) GetNextURL(ctx context.Context) (QueuedURL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.status == Queued || (e.status == Failed && e.retries < maxRetries) {
			e.status = Processing
			return QueuedURL{URL: e.url, Status: Processing}, nil
		}
	}
	return QueuedURL{}, ErrEmptyQueue
}

func (m *memoryStorage) MarkDone(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(url); e != nil {
		e.status = Done
	}
	return nil
}

func (m *memoryStorage) MarkFailed(ctx context.Context, url string, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(url); e != nil {
		e.status = Failed
		e.retries++
	}
	return nil
}

func (m *memoryStorage) QueueSize(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.status == Queued {
			n++
		}
	}
	return n, nil
}

func (m *memoryStorage) Close() {}

func (m *memoryStorage) find(url string) *memoryEntry {
	for _, e := range m.entries {
		if e.url == url {
			return e
		}
	}
	return nil
}
