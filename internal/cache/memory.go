package cache

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const numShards = 16

// Stats reports cache activity since construction.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Sets      int64 `json:"sets"`
	Deletes   int64 `json:"deletes"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

type memEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// memShard is a single LRU partition with its own lock.
type memShard struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	curSize int
}

// MemoryCache shards entries across independent LRU partitions bounded by
// total value bytes. Each entry carries its own expiry.
type MemoryCache struct {
	shards [numShards]*memShard
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once

	hits, misses, sets, deletes, evictions atomic.Int64
}

// NewMemoryCache bounds the cache to maxBytes of stored values and sweeps
// expired entries every sweepEvery (no sweeper when zero).
func NewMemoryCache(maxBytes int, sweepEvery time.Duration) *MemoryCache {
	c := &MemoryCache{now: time.Now, stop: make(chan struct{})}
	perShard := maxBytes / numShards
	for i := range c.shards {
		c.shards[i] = &memShard{
			items:   make(map[string]*list.Element),
			order:   list.New(),
			maxSize: perShard,
		}
	}
	if sweepEvery > 0 {
		go c.sweep(sweepEvery)
	}
	return c
}

func (c *MemoryCache) shard(key string) *memShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Get returns a copy of the stored value, promoting it to most recently used.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	s := c.shard(key)
	s.mu.Lock()
	elem, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		c.misses.Add(1)
		return nil, ErrMiss
	}
	entry := elem.Value.(*memEntry)
	if !c.now().Before(entry.expiresAt) {
		s.removeLocked(elem)
		s.mu.Unlock()
		c.misses.Add(1)
		return nil, ErrMiss
	}
	s.order.MoveToFront(elem)
	out := append([]byte(nil), entry.value...)
	s.mu.Unlock()
	c.hits.Add(1)
	return out, nil
}

// Set stores a copy of value. Values larger than a shard are not cached.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s := c.shard(key)
	if len(value) > s.maxSize || ttl <= 0 {
		return nil
	}

	entry := &memEntry{
		key:       key,
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.removeLocked(elem)
	}
	for s.curSize+len(entry.value) > s.maxSize && s.order.Len() > 0 {
		s.removeLocked(s.order.Back())
		c.evictions.Add(1)
	}
	s.items[key] = s.order.PushFront(entry)
	s.curSize += len(entry.value)
	c.sets.Add(1)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s := c.shard(key)
		s.mu.Lock()
		if elem, ok := s.items[key]; ok {
			s.removeLocked(elem)
			c.deletes.Add(1)
		}
		s.mu.Unlock()
	}
	return nil
}

func (c *MemoryCache) Stats() Stats {
	st := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
	}
	for _, s := range c.shards {
		s.mu.Lock()
		st.Size += s.order.Len()
		s.mu.Unlock()
	}
	return st
}

// Close stops the sweeper.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// removeLocked removes an element from both the list and map. Caller must hold shard lock.
func (s *memShard) removeLocked(elem *list.Element) {
	entry := s.order.Remove(elem).(*memEntry)
	delete(s.items, entry.key)
	s.curSize -= len(entry.value)
}

func (c *MemoryCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := c.now()
			for _, s := range c.shards {
				s.mu.Lock()
				for elem := s.order.Back(); elem != nil; {
					prev := elem.Prev()
					if !now.Before(elem.Value.(*memEntry).expiresAt) {
						s.removeLocked(elem)
					}
					elem = prev
				}
				s.mu.Unlock()
			}
		}
	}
}
