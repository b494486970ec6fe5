package directory

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"eddisonso.com/edd-directory/internal/cache"
	"eddisonso.com/edd-directory/internal/db"
	"eddisonso.com/edd-directory/internal/events"
)

// memStore is an in-memory record store that counts reads.
type memStore struct {
	mu     sync.Mutex
	rows   map[int64]db.Employee
	nextID int64

	lists, gets int
	failWrites  error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]db.Employee)}
}

func (m *memStore) ListEmployeesByOwner(_ context.Context, ownerID int64) ([]*db.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	out := []*db.Employee{}
	for _, e := range m.rows {
		if e.OwnerID == ownerID {
			cp := e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName > out[j].FullName })
	return out, nil
}

func (m *memStore) GetEmployee(_ context.Context, id int64) (*db.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	e, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memStore) CreateEmployee(_ context.Context, e *db.Employee) (*db.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return nil, m.failWrites
	}
	m.nextID++
	cp := *e
	cp.ID = m.nextID
	cp.CreatedAt = time.Unix(1700000000, 0)
	m.rows[cp.ID] = cp
	return &cp, nil
}

func (m *memStore) UpdateEmployee(_ context.Context, id int64, u db.EmployeeUpdate) (*db.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return nil, m.failWrites
	}
	e, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	e.FullName, e.Location, e.JobTitle, e.Badges = u.FullName, u.Location, u.JobTitle, u.Badges
	if u.ObjectKey != nil {
		e.ObjectKey = *u.ObjectKey
	}
	m.rows[id] = e
	return &e, nil
}

func (m *memStore) DeleteEmployee(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok, nil
}

func (m *memStore) reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists + m.gets
}

// flakyCache wraps a cache and can fail individual operations.
type flakyCache struct {
	cache.Cache
	failGet, failSet, failDelete error
}

func (f *flakyCache) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	return f.Cache.Get(ctx, key)
}

func (f *flakyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.failSet != nil {
		return f.failSet
	}
	return f.Cache.Set(ctx, key, value, ttl)
}

func (f *flakyCache) Delete(ctx context.Context, keys ...string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.Cache.Delete(ctx, keys...)
}

type fakePhotos struct {
	mu        sync.Mutex
	uploaded  []string
	deleted   []string
	next      int
	uploadErr error
	deleteErr error
}

func (f *fakePhotos) Upload(_ context.Context, filename, _ string, body io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	key := "photo-" + string(rune('a'+f.next-1)) + ".png"
	f.uploaded = append(f.uploaded, key)
	return key, nil
}

func (f *fakePhotos) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return f.deleteErr
}

type recordedChange struct {
	action events.EmployeeAction
	id     int64
}

type fakeEvents struct {
	changes []recordedChange
}

func (f *fakeEvents) PublishEmployeeChanged(_ context.Context, action events.EmployeeAction, id, _ int64, _ string) error {
	f.changes = append(f.changes, recordedChange{action, id})
	return nil
}

var errCacheDown = errors.New("dial tcp: connection refused")

// blockingStore holds list loads until release is closed, honouring ctx.
type blockingStore struct {
	*memStore
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore(m *memStore) *blockingStore {
	return &blockingStore{memStore: m, entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blockingStore) ListEmployeesByOwner(ctx context.Context, ownerID int64) ([]*db.Employee, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.memStore.ListEmployeesByOwner(ctx, ownerID)
}
