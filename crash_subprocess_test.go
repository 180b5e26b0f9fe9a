package hma

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagelock/hma/pager/fakepager"
)

// hmaCrashHelperEnv selects the re-exec'd child's role, following the
// self-exec pattern used throughout the pack's concurrency tests
// (spawn os.Args[0] under a distinguishing env var rather than building
// a separate binary).
const hmaCrashHelperEnv = "HMA_CRASH_HELPER_DB"

// TestCrossProcessCrashRecovery is the one genuine multi-process test:
// a child process connects, takes an exclusive lock on a page, and is
// killed without ever calling End or Disconnect. The parent then
// connects fresh — a real second OS process, not an in-process
// simulation. The helper held the only DMS lock, so the parent's connect
// initializes the HMA afresh: it invokes RollbackJournal once for every
// client slot, the crashed one included, reuses the crashed slot, and
// leaves no bits naming the crashed client on the page it held.
func TestCrossProcessCrashRecovery(t *testing.T) {
	if dbPath := os.Getenv(hmaCrashHelperEnv); dbPath != "" {
		runCrashHelper(dbPath)
		return
	}

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db.sqlite")

	cmd := exec.Command(os.Args[0], "-test.run=^TestCrossProcessCrashRecovery$")
	cmd.Env = append(os.Environ(), hmaCrashHelperEnv+"="+dbPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}

	reader := bufio.NewReader(stdout)
	line, err := reader.ReadString('\n')
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		t.Fatalf("read READY line: %v", err)
	}
	var childID int
	if _, err := fmt.Sscanf(line, "READY %d\n", &childID); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		t.Fatalf("parse READY line %q: %v", line, err)
	}

	if err := cmd.Process.Kill(); err != nil {
		t.Fatalf("kill helper: %v", err)
	}
	cmd.Wait() // ignore exit status: it was killed

	pager := fakepager.New(dbPath)
	reg := NewRegistry()
	client, id, err := reg.Connect(pager, NullLogger())
	if err != nil {
		t.Fatalf("connect after crash: %v", err)
	}
	defer reg.Disconnect(client)

	if id != childID {
		t.Fatalf("expected the crashed slot %d to be reused, got %d", childID, id)
	}
	if rb := pager.Rollbacks(); len(rb) != NumClientSlots || rb[childID] != childID {
		t.Fatalf("RollbackJournal calls = %v, want one call per client slot, including %d", rb, childID)
	}

	v := loadWord(client.hmaHdl.hma.wordAt(pageWordIndex(99)))
	if writeHolderOf(v) == childID || hasReadBit(v, childID) {
		t.Fatalf("page 99 still names the crashed client after recovery: %#x", v)
	}
}

// runCrashHelper is the child process body: connect, take an exclusive
// lock, announce readiness, then hang until killed.
func runCrashHelper(dbPath string) {
	pager := fakepager.New(dbPath)
	client, id, err := Default.Connect(pager, NullLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "helper connect: %v\n", err)
		os.Exit(1)
	}
	if err := client.Lock(99, true, true); err != nil {
		fmt.Fprintf(os.Stderr, "helper lock: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("READY %d\n", id)
	os.Stdout.Sync()

	time.Sleep(time.Minute)
}
