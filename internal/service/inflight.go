package service

import "sync"

// inflight tracks which action keys have a request outstanding. A key is
// held from the first remote call until the local store is updated, so a
// double-clicked "Send" or two overlapping edits of one message cannot
// interleave.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{keys: make(map[string]struct{})}
}

// acquire claims key. It returns false if the key is already held.
// The returned func releases it and is safe to call once.
func (f *inflight) acquire(key string) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.keys[key]; busy {
		return nil, false
	}
	f.keys[key] = struct{}{}
	return func() {
		f.mu.Lock()
		delete(f.keys, key)
		f.mu.Unlock()
	}, true
}
