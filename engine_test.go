package hma

import (
	"path/filepath"
	"testing"

	"github.com/pagelock/hma/pager/fakepager"
)

func connectN(t *testing.T, reg *Registry, pager *fakepager.Pager, n int) []*Client {
	t.Helper()
	clients := make([]*Client, n)
	for i := 0; i < n; i++ {
		c, _, err := reg.Connect(pager, NullLogger())
		if err != nil {
			t.Fatalf("connect %d: %v", i, err)
		}
		clients[i] = c
	}
	return clients
}

// S3 — SHARED compatibility.
func TestSharedLocksCoexist(t *testing.T) {
	dir := t.TempDir()
	pager := fakepager.New(filepath.Join(dir, "db.sqlite"))
	reg := NewRegistry()
	cs := connectN(t, reg, pager, 2)
	defer func() {
		for _, c := range cs {
			reg.Disconnect(c)
		}
	}()

	if err := cs[0].Lock(42, false, true); err != nil {
		t.Fatalf("client 0 lock shared: %v", err)
	}
	if err := cs[1].Lock(42, false, true); err != nil {
		t.Fatalf("client 1 lock shared: %v", err)
	}

	word := cs[0].hmaHdl.hma.wordAt(pageWordIndex(42))
	v := loadWord(word)
	if !hasReadBit(v, 0) || !hasReadBit(v, 1) {
		t.Fatalf("page 42 word = %#x, want bits 0 and 1 set", v)
	}
	if writeHolderOf(v) != -1 {
		t.Fatalf("page 42 write field = %d, want -1", writeHolderOf(v))
	}
}

// S4 — EXCLUSIVE contention: a non-blocking exclusive request fails
// while a reader holds the page, then succeeds once the reader ends.
func TestExclusiveContentionAndRetry(t *testing.T) {
	dir := t.TempDir()
	pager := fakepager.New(filepath.Join(dir, "db.sqlite"))
	reg := NewRegistry()
	cs := connectN(t, reg, pager, 2)
	defer func() {
		for _, c := range cs {
			reg.Disconnect(c)
		}
	}()

	if err := cs[0].Lock(42, false, true); err != nil {
		t.Fatalf("client 0 shared lock: %v", err)
	}

	err := cs[1].Lock(42, true, false)
	if ResultOf(err) != BusyDeadlock {
		t.Fatalf("non-blocking exclusive against a live reader = %v, want BusyDeadlock", err)
	}

	cs[0].releaseOne(42)

	if err := cs[1].Lock(42, true, false); err != nil {
		t.Fatalf("retry after release: %v", err)
	}
	v := loadWord(cs[1].hmaHdl.hma.wordAt(pageWordIndex(42)))
	if writeHolderOf(v) != cs[1].id {
		t.Fatalf("write holder = %d, want %d", writeHolderOf(v), cs[1].id)
	}
	if readBitsOf(v) != (uint32(1) << uint(cs[1].id)) {
		t.Fatalf("read-mask = %#x, want only client %d's bit", readBitsOf(v), cs[1].id)
	}
}

// Testable property 2 — mutual exclusion.
func TestMutualExclusion(t *testing.T) {
	dir := t.TempDir()
	pager := fakepager.New(filepath.Join(dir, "db.sqlite"))
	reg := NewRegistry()
	cs := connectN(t, reg, pager, 2)
	defer func() {
		for _, c := range cs {
			reg.Disconnect(c)
		}
	}()

	if err := cs[0].Lock(7, true, true); err != nil {
		t.Fatalf("client 0 exclusive: %v", err)
	}
	if err := cs[1].Lock(7, true, false); ResultOf(err) != BusyDeadlock {
		t.Fatalf("second exclusive = %v, want BusyDeadlock", err)
	}
	if !cs[0].HasLock(7, true) {
		t.Fatalf("client 0 should report holding the write lock on page 7")
	}
	if cs[1].HasLock(7, true) {
		t.Fatalf("client 1 should not report holding the write lock on page 7")
	}
}

// Testable property 4 — RESERVED starves new readers. Installs the
// RESERVED marker directly (the same CAS the engine itself performs
// inside Lock) rather than racing a second goroutine, so the assertion
// is deterministic.
func TestReservedStarvesNewReaders(t *testing.T) {
	dir := t.TempDir()
	pager := fakepager.New(filepath.Join(dir, "db.sqlite"))
	reg := NewRegistry()
	cs := connectN(t, reg, pager, 3)
	defer func() {
		for _, c := range cs {
			reg.Disconnect(c)
		}
	}()

	if err := cs[0].Lock(5, false, true); err != nil {
		t.Fatalf("client 0 shared: %v", err)
	}

	word := cs[0].hmaHdl.hma.wordAt(pageWordIndex(5))
	for {
		v := loadWord(word)
		if casWord(word, v, withWriteHolder(v, cs[1].id)) {
			break
		}
	}

	if err := cs[2].Lock(5, false, false); ResultOf(err) != BusyDeadlock {
		t.Fatalf("new reader against RESERVED = %v, want BusyDeadlock", err)
	}
}

// Testable property 5 — lock-list accounting after End.
func TestEndClearsAllRecordedLocks(t *testing.T) {
	dir := t.TempDir()
	pager := fakepager.New(filepath.Join(dir, "db.sqlite"))
	reg := NewRegistry()
	cs := connectN(t, reg, pager, 1)
	defer reg.Disconnect(cs[0])

	if err := cs[0].Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, p := range []uint64{1, 2, 3} {
		if err := cs[0].Lock(p, true, true); err != nil {
			t.Fatalf("lock %d: %v", p, err)
		}
	}
	if err := cs[0].End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	for _, p := range []uint64{0, 1, 2, 3} {
		v := loadWord(cs[0].hmaHdl.hma.wordAt(pageWordIndex(p)))
		if hasReadBit(v, cs[0].id) || writeHolderOf(v) == cs[0].id {
			t.Fatalf("page %d still names client %d after End: %#x", p, cs[0].id, v)
		}
	}
	if len(cs[0].locks) != 0 {
		t.Fatalf("lock list not cleared: %v", cs[0].locks)
	}
}

// S5 / Testable property 6 — crash recovery: a client's OS lock is
// released without clearing its slot word (the documented crash
// simulation), and the next connect to reuse that slot rolls it back
// exactly once.
func TestConnectRecoversCrashedSlot(t *testing.T) {
	dir := t.TempDir()
	pager := fakepager.New(filepath.Join(dir, "db.sqlite"))
	reg := NewRegistry()

	victim, victimID, err := reg.Connect(pager, NullLogger())
	if err != nil {
		t.Fatalf("connect victim: %v", err)
	}
	if err := victim.Lock(7, true, true); err != nil {
		t.Fatalf("victim lock page 7: %v", err)
	}
	// The first connect initialized the HMA and rolled back every slot;
	// only the calls made after it belong to the recovery under test.
	initRollbacks := len(pager.Rollbacks())

	// Simulate a crash: release the OS lock on the client slot without
	// going through Disconnect, leaving the slot word non-zero and
	// page 7's bits still naming this client. Clearing the local
	// client-record slot too stands in for what a real crash gives for
	// free — a different process never had one — since this test
	// exercises the single-process registry.
	h := victim.hmaHdl
	if err := unlockWord(h.hma.file, clientWordIndex(victimID)); err != nil {
		t.Fatalf("simulate crash: %v", err)
	}
	h.clients[victimID] = nil

	newClient, newID, err := reg.Connect(pager, NullLogger())
	if err != nil {
		t.Fatalf("connect after crash: %v", err)
	}
	defer reg.Disconnect(newClient)

	if newID != victimID {
		t.Fatalf("expected the crashed slot %d to be reused, got %d", victimID, newID)
	}
	if rb := pager.Rollbacks()[initRollbacks:]; len(rb) != 1 || rb[0] != victimID {
		t.Fatalf("RollbackJournal calls = %v, want exactly one call with %d", rb, victimID)
	}

	v := loadWord(newClient.hmaHdl.hma.wordAt(pageWordIndex(7)))
	if writeHolderOf(v) == victimID || hasReadBit(v, victimID) {
		t.Fatalf("page 7 still names the crashed client: %#x", v)
	}
}

func TestHasLockFastPath(t *testing.T) {
	dir := t.TempDir()
	pager := fakepager.New(filepath.Join(dir, "db.sqlite"))
	reg := NewRegistry()
	cs := connectN(t, reg, pager, 1)
	defer reg.Disconnect(cs[0])

	if cs[0].HasLock(9, false) {
		t.Fatalf("unexpected lock reported before acquiring")
	}
	if err := cs[0].Lock(9, false, true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !cs[0].HasLock(9, false) {
		t.Fatalf("HasLock false after successful Lock")
	}
	if err := cs[0].Lock(9, false, true); err != nil {
		t.Fatalf("re-locking an already-held shared page should be a no-op, got %v", err)
	}
}
