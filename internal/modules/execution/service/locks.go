package service

import "sync"

// LockTable serializes order flow per (symbol, account). Locks live in
// process memory only; a restart clears them.
type LockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLockTable() *LockTable {
	return &LockTable{held: make(map[string]struct{})}
}

func Key(symbol, accountID string) string {
	return symbol + "|" + accountID
}

// TryAcquire takes the lock if free and reports whether it did.
func (t *LockTable) TryAcquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[key]; ok {
		return false
	}
	t.held[key] = struct{}{}
	return true
}

func (t *LockTable) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, key)
}

// Busy returns the number of currently held locks.
func (t *LockTable) Busy() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held)
}
