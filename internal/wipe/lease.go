package wipe

import "sync"

// Lease is the single job-ownership slot. Holding it is the only way to
// run a destructive operation.
type Lease struct {
	mu     sync.Mutex
	holder string
}

// processLease is shared by every orchestrator in the process unless one is
// given its own with WithLease.
var processLease = &Lease{}

// TryAcquire takes the lease for holder. It returns false if the lease is
// held, by anyone.
func (l *Lease) TryAcquire(holder string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" {
		return false
	}
	l.holder = holder
	return true
}

// Release frees the lease if holder owns it.
func (l *Lease) Release(holder string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != holder {
		return false
	}
	l.holder = ""
	return true
}

// Holder returns the current holder or "".
func (l *Lease) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}
