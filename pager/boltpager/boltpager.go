// Package boltpager adapts go.etcd.io/bbolt as a hma.Pager, grounded on
// the teacher's own benchmarks/bench_cache.go getCachedBoltDB helper
// (bolt.Open with NoSync/NoFreelistSync for benchmark-grade throughput).
package boltpager

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/pagelock/hma/pager/internal/filelock"
)

// Pager wraps an open bbolt database as a hma.Pager. bbolt has no
// per-client journal to replay, so RollbackJournal is a no-op;
// client recovery for this adapter means nothing more than freeing the
// client's HMA slot.
type Pager struct {
	db   *bolt.DB
	path string
	lock *filelock.Handle
}

// Open opens (creating if needed) a bbolt database at path.
func Open(path string) (*Pager, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{
		NoSync:         true,
		NoFreelistSync: true,
	})
	if err != nil {
		return nil, fmt.Errorf("boltpager: open %s: %w", path, err)
	}
	return &Pager{db: db, path: path}, nil
}

// DB returns the underlying bbolt handle, for callers that need direct
// bucket access alongside the page-lock coordination.
func (p *Pager) DB() *bolt.DB { return p.db }

func (p *Pager) Filename() string { return p.path }

func (p *Pager) RollbackJournal(client int) error { return nil }

// LockDatabaseFile attempts a non-blocking exclusive whole-file lock on
// the bbolt database, independent of bbolt's own internal flock, for
// the registry's unlink-on-last-disconnect decision (spec §6).
func (p *Pager) LockDatabaseFile() (bool, error) {
	h, ok, err := filelock.Lock(p.path)
	if err != nil || !ok {
		return ok, err
	}
	p.lock = h
	return true, nil
}

func (p *Pager) UnlockDatabaseFile() error {
	if p.lock == nil {
		return nil
	}
	err := p.lock.Unlock()
	p.lock = nil
	return err
}

// Close closes the underlying bbolt database.
func (p *Pager) Close() error { return p.db.Close() }
