// Command hmaclient is a small demonstration and manual-testing tool
// for the hma package: it connects to a database's HMA, takes the
// requested lock, holds it for a duration, and reports what happened —
// grounded on superfly-sqlite3-restore's main()/run() split and its
// flag-driven, log.Printf-narrated CLI style.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pagelock/hma"
	"github.com/pagelock/hma/pager/boltpager"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	dbPath := flag.String("db", "", "path to the bbolt database to coordinate locks for")
	page := flag.Uint64("page", 0, "page number to lock")
	write := flag.Bool("write", false, "request an EXCLUSIVE lock instead of SHARED")
	blocking := flag.Bool("blocking", true, "block on contention instead of failing fast")
	hold := flag.Duration("hold", 2*time.Second, "how long to hold the lock before releasing it")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if !*verbose {
		log.SetOutput(io.Discard)
	}
	if *dbPath == "" {
		return fmt.Errorf("usage: hmaclient -db PATH [-page N] [-write] [-blocking=false] [-hold 2s]")
	}

	log.Printf("opening database: %s", *dbPath)
	pager, err := boltpager.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("open pager: %w", err)
	}
	defer pager.Close()

	log.Printf("connecting to HMA")
	client, id, err := hma.Default.Connect(pager, hma.DefaultLogger())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer hma.Default.Disconnect(client)
	log.Printf("connected as client %d", id)

	if err := client.Begin(); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer client.End()

	kind := "SHARED"
	if *write {
		kind = "EXCLUSIVE"
	}
	log.Printf("requesting %s lock on page %d (blocking=%v)", kind, *page, *blocking)

	if err := client.Lock(*page, *write, *blocking); err != nil {
		return fmt.Errorf("lock page %d: %w", *page, err)
	}

	fmt.Printf("client %d holds %s on page %d; holding for %s\n", id, kind, *page, *hold)
	time.Sleep(*hold)
	fmt.Println("releasing")

	return nil
}
