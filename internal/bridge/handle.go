package bridge

import "sync"

// Handle is an opaque integer identifying a registry entry. Handles start at
// 1 and increase monotonically; a handle value is never reissued, even after
// its entry is released.
type Handle int

// InvalidHandle is the sentinel returned alongside an error by operations
// that mint handles.
const InvalidHandle Handle = -1

// Valid reports whether the handle could have been issued by a registry.
func (h Handle) Valid() bool { return h >= 1 }

// handleTable is an insertion-ordered mapping from monotonically increasing
// handles to live entries. The mutex guards insert, lookup and remove; the
// entries themselves are immutable once inserted, so callers may use a looked
// up value after the lock is dropped.
type handleTable[T any] struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]T
}

func newHandleTable[T any]() *handleTable[T] {
	return &handleTable[T]{next: 1, entries: make(map[Handle]T)}
}

func (t *handleTable[T]) insert(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.next
	t.next++
	t.entries[h] = v
	return h
}

func (t *handleTable[T]) lookup(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[h]
	return v, ok
}

func (t *handleTable[T]) remove(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	return v, ok
}

func (t *handleTable[T]) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// drain removes and returns every live entry.
func (t *handleTable[T]) drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]T, 0, len(t.entries))
	for h, v := range t.entries {
		out = append(out, v)
		delete(t.entries, h)
	}
	return out
}
