// Package rocksdbpager adapts github.com/tecbot/gorocksdb as a
// hma.Pager, grounded on the teacher's benchmarks/bench_cache.go
// getCachedRocksDB helper (CreateIfMissing with a 64MB write buffer).
package rocksdbpager

import (
	"fmt"

	"github.com/tecbot/gorocksdb"

	"github.com/pagelock/hma/pager/internal/filelock"
)

// Pager wraps an open RocksDB handle as a hma.Pager. RocksDB's own WAL
// is unrelated to the per-client journal this interface's
// RollbackJournal is meant for, so it is a no-op here too; a
// production adapter that layers its own journal atop RocksDB would
// replay it from this hook.
type Pager struct {
	db   *gorocksdb.DB
	opts *gorocksdb.Options
	path string
	lock *filelock.Handle
}

// Open opens (creating if missing) a RocksDB database at path, sized
// per the teacher's benchmark write-buffer options.
func Open(path string) (*Pager, error) {
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetWriteBufferSize(64 * 1024 * 1024)
	opts.SetMaxWriteBufferNumber(3)
	opts.SetTargetFileSizeBase(64 * 1024 * 1024)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("rocksdbpager: open %s: %w", path, err)
	}
	return &Pager{db: db, opts: opts, path: path}, nil
}

// DB returns the underlying RocksDB handle.
func (p *Pager) DB() *gorocksdb.DB { return p.db }

func (p *Pager) Filename() string { return p.path }

func (p *Pager) RollbackJournal(client int) error { return nil }

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

// Close closes the underlying RocksDB handle and destroys its options.
func (p *Pager) Close() error {
	p.db.Close()
	p.opts.Destroy()
	return nil
}
