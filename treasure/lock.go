package treasure

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PairLocker serializes work on an unordered pair of balance keys.
// Lock blocks until the pair is free or ctx is done; the returned func
// releases it and must be called exactly once.
type PairLocker interface {
	Lock(ctx context.Context, a, b string) (func(), error)
}

// PairKey names the unordered pair {a, b}; PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	keys := []string{a, b}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

var defaultLocker = NewLocalLocker()

// LocalLocker is a process-wide lock per pair. With two keys there is only
// ever one pair, so in practice all transfers share one slot.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, a, b string) (func(), error) {
	slot := l.slot(PairKey(a, b))
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrLockUnavailable, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	return slot
}
