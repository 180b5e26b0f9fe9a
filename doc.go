// Package hma implements a multi-process page-level lock manager for
// embedders of an otherwise single-writer storage engine.
//
// Several independent OS processes, each embedding its own copy of a
// Pager (the storage engine collaborator), coordinate access to one
// on-disk database through a small memory-mapped auxiliary file called
// the heap-mapped area, or HMA. All participating processes map the
// same HMA file and mutate its bit-packed lock state lock-free via
// compare-and-swap, falling back to advisory OS byte-range locks only
// to tell a live client apart from a crashed one.
//
// Basic usage:
//
//	reg := hma.NewRegistry()
//	client, id, err := reg.Connect(pager, hma.DefaultLogger())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Disconnect(client)
//
//	if err := client.Begin(); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.End()
//
//	if err := client.Lock(42, true, true); err != nil {
//	    log.Fatal(err)
//	}
//
// The SQL parser, B-tree, pager cache, journal format, and VFS
// abstraction are all external collaborators and out of scope for this
// package; see the pager subpackage for adapters over concrete
// embeddable storage engines.
package hma
