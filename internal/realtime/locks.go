package realtime

import "sync"

// issueLocks hands out one mutex per issue id and forgets it once unused.
type issueLocks struct {
	mu    sync.Mutex
	locks map[int64]*issueLock
}

type issueLock struct {
	mu   sync.Mutex
	refs int
}

func newIssueLocks() *issueLocks {
	return &issueLocks{locks: make(map[int64]*issueLock)}
}

// lock blocks until the caller owns issueID and returns the release func.
func (l *issueLocks) lock(issueID int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[issueID]
	if !ok {
		entry = &issueLock{}
		l.locks[issueID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, issueID)
		}
		l.mu.Unlock()
	}
}

func (l *issueLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
