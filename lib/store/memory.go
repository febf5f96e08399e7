package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Memory is an in-process Store. It backs tests and local development where
// no Redis server is available.
type Memory struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
	zsets   map[string]map[string]float64
}

func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		zsets:   make(map[string]map[string]float64),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strings[key] = value
	return nil
}

func (m *Memory) GetSet(ctx context.Context, key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.strings[key]
	m.strings[key] = value
	if !ok {
		return "", ErrNotFound
	}
	return old, nil
}

func (m *Memory) SetNX(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strings[key]; ok {
		return false, nil
	}
	m.strings[key] = value
	return true, nil
}

func (m *Memory) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *Memory) ZAdd(ctx context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zaddLocked(key, score, member)
	return nil
}

func (m *Memory) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		member string
		score  float64
	}
	entries := make([]entry, 0)
	for member, score := range m.zsets[key] {
		if score >= min && score <= max {
			entries = append(entries, entry{member, score})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].member < entries[j].member
	})

	members := make([]string, len(entries))
	for i, e := range entries {
		members[i] = e.member
	}
	return members, nil
}

func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(0)
	if raw, ok := m.strings[key]; ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("store: %s holds non-integer value %q", key, raw)
		}
		n = parsed
	}
	n++
	m.strings[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *Memory) Batch(ctx context.Context, fn func(b Batch)) error {
	batch := &memoryBatch{}
	fn(batch)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range batch.ops {
		op(m)
	}
	return nil
}

// zaddLocked requires m.mu held.
func (m *Memory) zaddLocked(key string, score float64, member string) {
	zset, ok := m.zsets[key]
	if !ok {
		zset = make(map[string]float64)
		m.zsets[key] = zset
	}
	zset[member] = score
}

type memoryBatch struct {
	ops []func(m *Memory)
}

func (b *memoryBatch) Set(key, value string) {
	b.ops = append(b.ops, func(m *Memory) { m.strings[key] = value })
}

func (b *memoryBatch) ZAdd(key string, score float64, member string) {
	b.ops = append(b.ops, func(m *Memory) { m.zaddLocked(key, score, member) })
}
