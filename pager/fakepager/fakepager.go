// Package fakepager is an in-memory Pager test double, with no
// third-party dependency, used by the hma package's own unit tests
// where a real embedded engine would be overkill.
package fakepager

import "sync"

// Pager is a minimal in-memory stand-in for a real database engine's
// Pager adapter. It records RollbackJournal calls so tests can assert
// the engine invoked rollback exactly once per crashed slot (spec §8
// testable property 6), and its database-file lock is a simple
// in-process flag rather than a real OS lock, since fakepager never
// shares a path across processes.
type Pager struct {
	path string

	mu        sync.Mutex
	locked    bool
	rollbacks []int
}

// New returns a Pager naming path as its database file.
func New(path string) *Pager {
	return &Pager{path: path}
}

func (p *Pager) Filename() string { return p.path }

// RollbackJournal records the call; fakepager has no real journal to
// replay.
func (p *Pager) RollbackJournal(client int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollbacks = append(p.rollbacks, client)
	return nil
}

// Rollbacks returns the client ids RollbackJournal was called with, in
// call order.
func (p *Pager) Rollbacks() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.rollbacks))
	copy(out, p.rollbacks)
	return out
}

// LockDatabaseFile reports whether the in-process flag was free and, if
// so, sets it.
func (p *Pager) LockDatabaseFile() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked {
		return false, nil
	}
	p.locked = true
	return true, nil
}

func (p *Pager) UnlockDatabaseFile() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = false
	return nil
}
