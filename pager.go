package hma

// Pager is the external collaborator this package coordinates access
// for: an otherwise single-writer storage engine embedded once per
// process. The SQL parser, B-tree, pager cache, journal format, and VFS
// abstraction all live behind this interface and are out of scope here.
//
// Concrete adapters over real embeddable storage engines live in the
// sibling pager package.
type Pager interface {
	// Filename returns the path of the main database file. The HMA file
	// is this path with the literal suffix "-hma" appended.
	Filename() string

	// RollbackJournal replays or discards the rollback journal left
	// behind by client, whose HMA slot was found non-zero at connect or
	// contention time. Called at most once per crashed slot per
	// recovery, and also once for every client slot, occupied or not,
	// by the process that initializes a fresh HMA file.
	RollbackJournal(client int) error

	// LockDatabaseFile attempts to take an exclusive advisory lock on
	// the main database file (not the HMA file). Used only at final
	// disconnect to decide whether the HMA file can be safely unlinked.
	// ok is false if the lock could not be granted; err is non-nil only
	// on a genuine I/O failure.
	LockDatabaseFile() (ok bool, err error)

	// UnlockDatabaseFile releases a lock obtained via LockDatabaseFile.
	// Only called when ok was true.
	UnlockDatabaseFile() error
}
