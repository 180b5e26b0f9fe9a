// Package mdbxpager adapts github.com/erigontech/mdbx-go/mdbx as a
// hma.Pager, grounded on the teacher's benchmarks/bench_cache.go
// getCachedPlainDB helper (mdbx.NewEnv/SetGeometry/Open with
// NoSubdir|NoMetaSync|WriteMap for benchmark-grade throughput).
package mdbxpager

import (
	"fmt"
	"runtime"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/pagelock/hma/pager/internal/filelock"
)

// Pager wraps an open mdbx environment as a hma.Pager. Like boltpager,
// mdbx-go has no separate client journal for this adapter to replay;
// RollbackJournal is a no-op.
type Pager struct {
	env  *mdbx.Env
	path string
	lock *filelock.Handle
}

// Open opens (creating if needed) an mdbx environment at path, sized
// per the teacher's benchmark geometry (4GB max, 4096-byte pages,
// default growth step).
func Open(path string) (*Pager, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	env, err := mdbx.NewEnv(mdbx.Label("hma"))
	if err != nil {
		return nil, fmt.Errorf("mdbxpager: new env: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, 10); err != nil {
		env.Close()
		return nil, fmt.Errorf("mdbxpager: set max dbs: %w", err)
	}
	if err := env.SetGeometry(-1, -1, 1<<32, -1, -1, 4096); err != nil {
		env.Close()
		return nil, fmt.Errorf("mdbxpager: set geometry: %w", err)
	}
	if err := env.Open(path, mdbx.NoSubdir|mdbx.NoMetaSync|mdbx.WriteMap, 0o644); err != nil {
		env.Close()
		return nil, fmt.Errorf("mdbxpager: open %s: %w", path, err)
	}
	return &Pager{env: env, path: path}, nil
}

// Env returns the underlying mdbx environment.
func (p *Pager) Env() *mdbx.Env { return p.env }

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

// Close closes the underlying mdbx environment.
func (p *Pager) Close() error {
	p.env.Close()
	return nil
}
