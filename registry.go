package hma

import (
	"os"
	"sync"
)

// Registry owns every HMA handle this process has mapped, deduplicated
// by (device, inode) so that two Connect calls reaching the same
// database file via different paths share one mapping. All mutation is
// serialized by a single mutex. Cross-client rollback, which CASes
// page-lock words, runs while holding it; the mutex is never acquired
// in the middle of a page-lock CAS.
//
// Per the redesign note in spec §9: rather than a package-level static
// mutex and intrusive linked list, the registry is an explicit value the
// embedding program owns. Default is provided for callers happy with
// one process-wide registry.
type Registry struct {
	mu   sync.Mutex
	hmas []*hmaHandle
}

// NewRegistry returns an empty registry. Most programs need only one,
// shared across every Pager they open in this process.
func NewRegistry() *Registry {
	return &Registry{}
}

// Default is a process-wide registry for callers that don't need to
// manage the registry's lifetime themselves.
var Default = NewRegistry()

// hmaHandle is the per-process handle onto one HMA file, shared by every
// local Client connected to that database. clients is a mapping from
// client id to a *weak* back-reference: the registry exclusively owns
// the handle, and clearing a slot on disconnect is the invalidation
// event a reader must respect.
type hmaHandle struct {
	hma         *hmaFile
	refCount    int
	liveClients int
	clients     [NumClientSlots]*Client
	// lastPager is the most recently connected Pager, kept only so the
	// last disconnect can ask it for the exclusive main-db lock that
	// decides whether the HMA file gets unlinked.
	lastPager Pager
}

// LiveClientCount returns the number of local clients currently attached
// to this handle, exposed for tests of the de-duplication invariant
// (§8 testable property 7).
func (h *hmaHandle) LiveClientCount() int { return h.liveClients }

// Connect attaches pager to the HMA coordinating its database file,
// returning a Client bound to a freshly allocated client id.
//
// Per §4.C: locate or create the HMA for pager's database path
// (de-duplicated by (dev, inode)), scan client slots 0..C-1, and claim
// the first one this process can take a non-blocking exclusive OS lock
// on. If the claimed slot's word is non-zero, the previous owner
// crashed mid-transaction and rollbackClient runs before the slot is
// reused. If every slot is taken, Connect returns Busy.
func (r *Registry) Connect(pager Pager, logger Logger) (*Client, int, error) {
	if logger == nil {
		logger = DefaultLogger()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h, err := r.findOrCreateHMALocked(pager)
	if err != nil {
		return nil, -1, err
	}

	claimed, claimErr := r.claimSlotLocked(h)
	if claimErr != nil {
		r.releaseHandleLocked(h)
		return nil, -1, claimErr
	}
	if claimed < 0 {
		r.releaseHandleLocked(h)
		return nil, -1, newError(Busy, "connect", nil)
	}

	word := h.hma.wordAt(clientWordIndex(claimed))
	if prev := loadWord(word); prev != 0 {
		if err := rollbackClient(h, pager, claimed, logger); err != nil {
			unlockWord(h.hma.file, clientWordIndex(claimed))
			r.releaseHandleLocked(h)
			return nil, -1, err
		}
	}

	if err := lockWord(h.hma.file, clientWordIndex(claimed), lockShared, true); err != nil {
		unlockWord(h.hma.file, clientWordIndex(claimed))
		r.releaseHandleLocked(h)
		return nil, -1, err
	}

	storeWord(word, 1)
	h.lastPager = pager

	client := &Client{
		registry: r,
		hmaHdl:   h,
		id:       claimed,
		pager:    pager,
		logger:   logger,
		locks:    make([]uint64, 0, 128),
	}
	h.clients[claimed] = client
	h.liveClients++

	return client, claimed, nil
}

// claimSlotLocked scans client slots 0..C-1 and takes a non-blocking
// exclusive OS lock on the first one free both locally (no local Client
// record) and at the OS level (no other process holds it either).
// Returns -1, nil if every slot is taken.
func (r *Registry) claimSlotLocked(h *hmaHandle) (int, error) {
	for i := 0; i < NumClientSlots; i++ {
		if h.clients[i] != nil {
			continue
		}
		ok, err := tryLockWord(h.hma.file, clientWordIndex(i), lockExclusive, false)
		if err != nil {
			return -1, newError(Error, "connect: probe client slot", err)
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// Disconnect detaches client from its HMA. If this was the last local
// client of the handle and pager grants an exclusive lock on the main
// database file, the HMA file is unlinked (§8 testable property 8).
func (r *Registry) Disconnect(client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client.id < 0 {
		return newError(Error, "disconnect", errNotConnected)
	}
	h := client.hmaHdl
	id := client.id
	word := h.hma.wordAt(clientWordIndex(id))
	storeWord(word, 0)
	unlockErr := unlockWord(h.hma.file, clientWordIndex(id))

	h.clients[id] = nil
	h.liveClients--
	client.id = -1

	r.releaseHandleLocked(h)
	if unlockErr != nil {
		return newError(Error, "disconnect: unlock client slot", unlockErr)
	}
	return nil
}

// findOrCreateHMALocked returns the existing handle for pager's
// database, or creates and maps one. Must be called with r.mu held.
func (r *Registry) findOrCreateHMALocked(pager Pager) (*hmaHandle, error) {
	dbPath := pager.Filename()
	hmaPath := dbPath + hmaSuffix

	if dev, ino, ok := statPathIdentity(hmaPath); ok {
		for _, h := range r.hmas {
			if h.hma.dev == dev && h.hma.ino == ino {
				h.refCount++
				return h, nil
			}
		}
	}

	rollback := func(client int) error {
		return pager.RollbackJournal(client)
	}

	hf, err := openOrCreateHMA(dbPath, rollback)
	if err != nil {
		return nil, err
	}

	handle := &hmaHandle{hma: hf, refCount: 1}
	r.hmas = append(r.hmas, handle)
	return handle, nil
}

// releaseHandleLocked decrements refCount and, once it reaches zero,
// tears the handle down: if the Pager can take an exclusive lock on the
// main database file (proving no other process still needs this HMA),
// the HMA file is unlinked before unmapping; otherwise it is just
// unmapped and left in place for the next connect. Must be called with
// r.mu held.
func (r *Registry) releaseHandleLocked(h *hmaHandle) {
	h.refCount--
	if h.refCount > 0 {
		return
	}

	for i, hh := range r.hmas {
		if hh == h {
			r.hmas = append(r.hmas[:i], r.hmas[i+1:]...)
			break
		}
	}

	if h.lastPager != nil {
		if ok, err := h.lastPager.LockDatabaseFile(); err == nil && ok {
			_ = os.Remove(h.hma.path)
			_ = h.lastPager.UnlockDatabaseFile()
		}
	}

	_ = h.hma.close()
}
