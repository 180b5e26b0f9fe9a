package hma

import (
	"os"
	"unsafe"

	"github.com/pagelock/hma/internal/mmap"
)

// Fixed HMA parameters (§3). C tolerates up to 26 in the encoding (a
// 5-bit write field would hold up to 31, but 26 keeps one bit of
// headroom the way the original encoding does); P is the number of
// page-lock slots pages hash into via page_number mod P.
const (
	// NumClientSlots is C: the maximum concurrent connections per HMA.
	NumClientSlots = 16
	// NumPageSlots is P: the number of page-locking words.
	NumPageSlots = 262144

	// hmaSuffix is appended to the database path to name the HMA file.
	hmaSuffix = "-hma"

	wordSize = 4
	// dmsWordIndex is the dead-man-switch word, always index 0.
	dmsWordIndex = 0
	// firstClientWordIndex is where the C client slots begin.
	firstClientWordIndex = 1
	// firstPageWordIndex is where the P page-lock slots begin.
	firstPageWordIndex = firstClientWordIndex + NumClientSlots

	// hmaFileWords is the total word count: 1 DMS + C client + P page.
	hmaFileWords = firstPageWordIndex + NumPageSlots
	// HMAFileSize is the fixed total size of an HMA file in bytes.
	HMAFileSize = hmaFileWords * wordSize
)

// pageWordIndex maps a page number onto its page-lock slot index.
func pageWordIndex(page uint64) int {
	return firstPageWordIndex + int(page%NumPageSlots)
}

// clientWordIndex maps a client id onto its client-slot word index.
func clientWordIndex(clientID int) int {
	return firstClientWordIndex + clientID
}

// hmaFile is the per-process mapped handle onto one HMA file.
type hmaFile struct {
	path string
	file *os.File
	m    *mmap.Map
	// words aliases m.Data() as a slice of 32-bit little-endian words,
	// addressed by word index (DMS, client slots, page slots). Every
	// mutation past initialization happens via sync/atomic CAS.
	words []uint32

	dev, ino uint64
}

// openOrCreateHMA opens the HMA file for path's database, creating and
// initializing it if this is the first process to attach. It returns
// the mapped handle and whether this call performed first-time
// initialization (the DMS word was exclusively lockable).
//
// Per §4.A: stat the target; if missing, create it. The first client is
// whichever process successfully takes an exclusive OS lock on the DMS
// slot; that process resizes the file, zeroes the mapping, and invokes
// rollbackAllSlots once per client slot to clean debris from a previous
// cohort before downgrading to a shared DMS lock held for the handle's
// lifetime. Non-first clients map directly and take the shared DMS lock.
func openOrCreateHMA(dbPath string, rollbackAllSlots func(client int) error) (*hmaFile, error) {
	hmaPath := dbPath + hmaSuffix

	f, err := os.OpenFile(hmaPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, newError(CantOpen, "open HMA file", err)
	}

	ok, err := tryLockWord(f, dmsWordIndex, lockExclusive, false)
	if err != nil {
		f.Close()
		return nil, newError(CantOpen, "lock DMS word", err)
	}

	first := ok
	if first {
		if err := f.Truncate(HMAFileSize); err != nil {
			unlockWord(f, dmsWordIndex)
			f.Close()
			return nil, newError(CantOpen, "truncate HMA file", err)
		}
	} else {
		fi, statErr := f.Stat()
		if statErr != nil || fi.Size() < HMAFileSize {
			f.Close()
			return nil, newError(CantOpen, "HMA file wrong size", statErr)
		}
	}

	m, err := mmap.New(int(f.Fd()), HMAFileSize)
	if err != nil {
		if first {
			unlockWord(f, dmsWordIndex)
		}
		f.Close()
		return nil, newError(CantOpen, "mmap HMA file", err)
	}

	data := m.Data()
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), hmaFileWords)

	if first {
		for i := range words {
			words[i] = 0
		}
		for i := 0; i < NumClientSlots; i++ {
			if err := rollbackAllSlots(i); err != nil {
				m.Close()
				unlockWord(f, dmsWordIndex)
				f.Close()
				return nil, newError(Error, "clean stale client slots", err)
			}
		}
		// Downgrade to a blocking shared lock, held for the life of the
		// handle, so every later connect can tell "someone is here"
		// apart from "I am the initializer".
		if err := lockWord(f, dmsWordIndex, lockShared, true); err != nil {
			m.Close()
			f.Close()
			return nil, newError(CantOpen, "downgrade DMS lock", err)
		}
	} else {
		if err := lockWord(f, dmsWordIndex, lockShared, true); err != nil {
			m.Close()
			f.Close()
			return nil, newError(CantOpen, "acquire shared DMS lock", err)
		}
	}

	dev, ino, err := fileIdentity(f)
	if err != nil {
		m.Close()
		f.Close()
		return nil, newError(CantOpen, "stat HMA file identity", err)
	}

	return &hmaFile{path: hmaPath, file: f, m: m, words: words, dev: dev, ino: ino}, nil
}

// wordAt returns a pointer to the 32-bit word at index, for use with
// sync/atomic. Word 0 is the DMS word; 1..C are client slots; the rest
// are page-lock slots.
func (h *hmaFile) wordAt(index int) *uint32 {
	return &h.words[index]
}

// close unmaps and closes the HMA file. It does not unlink it; that is
// the registry's call, made only after the last local client detaches.
func (h *hmaFile) close() error {
	err1 := h.m.Close()
	err2 := h.file.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
