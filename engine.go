package hma

import (
	"errors"
	"time"
)

var errNotConnected = errors.New("client is not connected")

// Begin takes a long-held exclusive OS lock on this client's own client
// slot for the duration of the transaction — so that other processes
// observing contention can cheaply test liveness by trying to grab it
// exclusively — then acquires a RESERVED lock on the sentinel page 0,
// the convention used to timestamp the writer period.
func (c *Client) Begin() error {
	if c.id < 0 {
		return newError(Error, "begin", errNotConnected)
	}
	if err := lockWord(c.hmaHdl.hma.file, clientWordIndex(c.id), lockExclusive, true); err != nil {
		return err
	}
	return c.Lock(0, true, true)
}

// End releases every page lock this client took during the transaction,
// in the order they were recorded, and downgrades the client-slot OS
// lock back to shared. Releasing the sentinel page 0 updates the
// cumulative writer-time statistics and warns once per whole elapsed
// second.
func (c *Client) End() error {
	if c.id < 0 {
		return newError(Error, "end", errNotConnected)
	}
	for _, page := range c.locks {
		c.releaseOne(page)
		if page == 0 {
			c.recordWriterEnd()
		}
	}
	c.locks = c.locks[:0]
	return lockWord(c.hmaHdl.hma.file, clientWordIndex(c.id), lockShared, true)
}

// ReleaseWriteLocks is reserved for future use; it is a no-op, present
// only for API symmetry with the rest of the engine (spec §4.D).
func (c *Client) ReleaseWriteLocks() error {
	return nil
}

// HasLock consults the mapping and answers purely from the slot
// encoding, with no OS-lock involvement.
func (c *Client) HasLock(page uint64, write bool) bool {
	if c.id < 0 {
		return false
	}
	v := loadWord(c.hmaHdl.hma.wordAt(pageWordIndex(page)))
	if write {
		return writeHolderOf(v) == c.id
	}
	return hasReadBit(v, c.id)
}

// Lock acquires SHARED (write=false) or EXCLUSIVE (write=true) on page.
// blocking selects whether contention with a live client waits on its OS
// lock or fails immediately with BusyDeadlock.
func (c *Client) Lock(page uint64, write bool, blocking bool) error {
	if c.id < 0 {
		return newError(Error, "lock", errNotConnected)
	}

	i := c.id
	word := c.hmaHdl.hma.wordAt(pageWordIndex(page))

	// Fast path: already held.
	v := loadWord(word)
	if write && writeHolderOf(v) == i {
		return nil
	}
	if !write && hasReadBit(v, i) {
		return nil
	}

	if err := c.recordLock(page); err != nil {
		return err
	}

	mask := uint32(0)
	if write {
		mask = (uint32(1)<<NumClientSlots - 1) &^ (uint32(1) << uint(i))
	}

	reserved := false

	for {
		v := loadWord(word)
		w := writeHolderOf(v)
		conflict := (w != -1 && w != i) || (readBitsOf(v)&mask) != 0
		if !conflict {
			n := v | (uint32(1) << uint(i))
			if write {
				n = withWriteHolder(n, i)
			}
			if !casWord(word, v, n) {
				continue
			}
			break
		}

		if w == -1 && write && blocking {
			// No write-holder yet: install a RESERVED marker so new
			// readers stop joining while we wait for existing readers
			// to drain.
			if casWord(word, v, withWriteHolder(v, i)) {
				reserved = true
			}
			continue
		}

		retry, err := c.overcome(v, word, i, blocking)
		if err != nil {
			c.undoReserved(word, i, reserved)
			return err
		}
		if !retry {
			c.undoReserved(word, i, reserved)
			c.logger.BusyDeadlock("page %d: client %d blocked by a live holder", page, i)
			return newError(BusyDeadlock, "lock", nil)
		}
		// retry: reload v and loop.
	}

	if page == 0 {
		c.writerStart = time.Now()
	}
	return nil
}

// undoReserved clears a RESERVED marker this acquisition installed, on
// the failure path only — the conservative choice from spec §9's open
// question 1 leaves the page already recorded in c.locks untouched;
// End() scrubs it regardless of whether the bit or field was ever
// actually installed, since clearing an unset bit is a no-op.
func (c *Client) undoReserved(word *uint32, i int, reserved bool) {
	if !reserved {
		return
	}
	for {
		v := loadWord(word)
		if writeHolderOf(v) != i {
			return
		}
		if casWord(word, v, clearWriteField(v)) {
			return
		}
	}
}

// releaseOne clears client i's bits from a single page-lock word.
func (c *Client) releaseOne(page uint64) {
	word := c.hmaHdl.hma.wordAt(pageWordIndex(page))
	i := c.id
	for {
		v := loadWord(word)
		n := clearClientBits(v, i)
		if casWord(word, v, n) {
			return
		}
	}
}

// recordWriterEnd updates cumulative writer-time stats when the
// sentinel page 0 lock is released, warning once per whole elapsed
// second of accumulated writer time (spec §6's WARNING diagnostic).
func (c *Client) recordWriterEnd() {
	if c.writerStart.IsZero() {
		return
	}
	elapsed := time.Now().Sub(c.writerStart)
	c.cumulativeWriteUs += elapsed.Microseconds()
	c.writerStart = time.Time{}

	seconds := c.cumulativeWriteUs / 1_000_000
	if seconds > c.lastWarnedSeconds {
		c.lastWarnedSeconds = seconds
		c.logger.Warning("client %d has accumulated %ds of writer time", c.id, seconds)
	}
}

// rollbackClient invokes the Pager's rollback for a crashed client and
// scrubs that client's bits from every page-lock word, CAS-until-success
// per word. Called from Registry.Connect when a reused slot's word is
// non-zero, and from overcome when a live client proves a blocker dead.
func rollbackClient(h *hmaHandle, pager Pager, clientID int, logger Logger) error {
	if err := pager.RollbackJournal(clientID); err != nil {
		return newError(Error, "rollback journal", err)
	}

	for idx := firstPageWordIndex; idx < hmaFileWords; idx++ {
		word := h.hma.wordAt(idx)
		for {
			v := loadWord(word)
			if !hasReadBit(v, clientID) && writeHolderOf(v) != clientID {
				break
			}
			if casWord(word, v, clearClientBits(v, clientID)) {
				break
			}
		}
	}

	logger.Notice("rolled back crashed client %d", clientID)
	return nil
}
