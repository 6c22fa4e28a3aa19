package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"track_record/internal/audit"
	"track_record/internal/infra/storage"
)

// verify walks the local event journal and checks chain integrity:
// sequence continuity, prevHash linkage, and eventHash recomputation.
func main() {
	dbPath := flag.String("db", "", "path to the local audit database (default: OS data dir)")
	instanceID := flag.String("instance", "", "instance id (default: the stored chain head's)")
	flag.Parse()

	var store *storage.Storage
	var err error
	if *dbPath != "" {
		store, err = storage.Open(*dbPath, filepath.Join(filepath.Dir(*dbPath), "cache"), "verify")
	} else {
		store, err = storage.NewStorage("verify")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		os.Exit(1)
	}

	id := *instanceID
	if id == "" {
		stored, found, err := store.FirstInstanceID()
		if err != nil || !found {
			fmt.Fprintln(os.Stderr, "no chain head stored locally; pass -instance")
			os.Exit(1)
		}
		id = stored
	}

	entries, err := store.LoadJournal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load journal: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("journal is empty, nothing to verify")
		return
	}

	// A journal that starts mid-chain (e.g. after local-storage loss and
	// remote recovery) still verifies from its first entry's prevHash.
	firstPrev := entries[0].PrevHash

	if err := audit.VerifyChain(id, firstPrev, entries); err != nil {
		fmt.Fprintf(os.Stderr, "chain INVALID: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("chain OK: %d events, head seq %d, head hash %s\n",
		len(entries), entries[len(entries)-1].SeqNo, entries[len(entries)-1].EventHash)
}
