package hma

// overcome resolves a conflict observed as v on word, identifying the
// single blocking client iBlock, and reports whether the caller should
// reload v and retry.
//
// Per §4.D's overcome(v): prefer the current write-holder if it exists
// and is not us; otherwise the lowest-numbered read-holder other than
// i. Everything past picking iBlock runs under the registry mutex, so
// the local-client-record check and the OS lock probe observe a
// consistent view of this process's own clients.
func (c *Client) overcome(v uint32, word *uint32, i int, blocking bool) (retry bool, err error) {
	iBlock := writeHolderOf(v)
	if iBlock == i {
		iBlock = -1
	}
	if iBlock == -1 {
		iBlock = lowestReadHolderExcept(v, i)
	}
	if iBlock == -1 {
		// The conflict already cleared; let the caller reload and retry
		// the CAS rather than treat this as unresolved.
		return true, nil
	}

	r := c.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	h := c.hmaHdl
	if h.clients[iBlock] != nil {
		// The blocker is local to this process: never block on our own
		// process. The caller's ordering discipline must prevent this;
		// report BusyDeadlock.
		return false, nil
	}

	ok, lockErr := tryLockWord(h.hma.file, clientWordIndex(iBlock), lockExclusive, false)
	if lockErr != nil {
		return false, newError(Error, "overcome: probe blocker slot", lockErr)
	}
	if ok {
		// The exclusive attempt succeeded: iBlock's process is dead.
		rbErr := rollbackClient(h, c.pager, iBlock, c.logger)
		unlockWord(h.hma.file, clientWordIndex(iBlock))
		if rbErr != nil {
			return false, rbErr
		}
		return true, nil
	}

	if !blocking {
		return false, nil
	}

	// The blocker is alive: wait on its client-slot lock, then drop it
	// and retry — the inter-process wait.
	result, waitErr := osLock(h.hma.file, clientWordIndex(iBlock), lockShared, true)
	if waitErr != nil {
		return false, newError(Error, "overcome: wait on blocker slot", waitErr)
	}
	if result == BusyDeadlock {
		return false, newError(BusyDeadlock, "overcome", nil)
	}
	unlockWord(h.hma.file, clientWordIndex(iBlock))
	return true, nil
}

// lowestReadHolderExcept returns the lowest-numbered client other than i
// with its read bit set in v, or -1 if none.
func lowestReadHolderExcept(v uint32, i int) int {
	for j := 0; j < NumClientSlots; j++ {
		if j == i {
			continue
		}
		if hasReadBit(v, j) {
			return j
		}
	}
	return -1
}
