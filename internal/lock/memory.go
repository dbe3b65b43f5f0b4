package lock

import (
	"context"
	"hash/fnv"
)

const memoryShards = 256

// MemoryLocker is an in-process Locker for demo mode and tests. Keys map
// onto a fixed pool of channel-based mutexes so acquisition can respect
// context cancellation while waiting.
type MemoryLocker struct {
	shards [memoryShards]chan struct{}
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	m := &MemoryLocker{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{} // start unlocked
	}
	return m
}

func (m *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	shard := m.shards[shardIdx(key)]

	select {
	case <-shard:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { shard <- struct{}{} }()

	return fn(ctx)
}

func shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % memoryShards
}
