// Command demo is a thin CLI wrapper over the storage engine, exercising
// save/search/delete/compact/level_counts/memtable_keys/truncate against
// a data root on disk. It performs no CSV parsing or sensor-data
// generation of its own beyond what is needed to pass arguments through —
// those are the engine's out-of-scope external collaborators.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/sensorlsm/engine/internal/lsm"
)

func main() {
	var dataRoot = flag.String("data", "./data", "Data root directory")
	var help = flag.Bool("help", false, "Show help message")
	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	engine, err := lsm.Open(lsm.DefaultConfig(*dataRoot))
	if err != nil {
		log.Fatalf("Error opening engine: %v", err)
	}

	switch args[0] {
	case "save":
		if len(args) != 3 {
			fmt.Println("Usage: demo save <customer-id> <device,tempF,humidity>")
			os.Exit(1)
		}
		if err := engine.Save(args[1], args[2]); err != nil {
			log.Fatalf("Error saving: %v", err)
		}
		fmt.Printf("✅ Saved: %s\n", args[1])

	case "search":
		if len(args) != 2 {
			fmt.Println("Usage: demo search <key>")
			os.Exit(1)
		}
		value, source, found := engine.Search(args[1])
		if !found {
			fmt.Printf("not found (%s)\n", source)
			return
		}
		fmt.Printf("%v (%s)\n", value, source)

	case "del", "delete":
		if len(args) != 2 {
			fmt.Println("Usage: demo del <key>")
			os.Exit(1)
		}
		if err := engine.Delete(args[1]); err != nil {
			log.Fatalf("Error deleting: %v", err)
		}
		fmt.Printf("✅ Deleted: %s\n", args[1])

	case "compact":
		if err := engine.Compact(); err != nil {
			log.Fatalf("Error compacting: %v", err)
		}
		fmt.Println("✅ Compacted")

	case "level-counts":
		memtableOnly := len(args) > 1 && args[1] == "--memtable-only"
		mtCount, levels, err := engine.LevelCounts(memtableOnly)
		if err != nil {
			log.Fatalf("Error reading level counts: %v", err)
		}
		fmt.Printf("memtable: %d\n", mtCount)
		for _, lvl := range levels {
			fmt.Printf("L%d: %d\n", lvl.Level, lvl.Count)
		}

	case "memtable-keys":
		for _, k := range engine.MemtableKeys() {
			fmt.Println(k)
		}

	case "truncate":
		if len(args) != 2 {
			fmt.Println("Usage: demo truncate <Y>")
			os.Exit(1)
		}
		if err := engine.Truncate(args[1]); err != nil {
			log.Fatalf("Error truncating: %v", err)
		}
		fmt.Println("✅ Truncated")

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: demo [-data <dir>] <command> [args...]")
	fmt.Println("Commands:")
	fmt.Println("  save <customer-id> <device,tempF,humidity>")
	fmt.Println("  search <key>")
	fmt.Println("  del <key>")
	fmt.Println("  compact")
	fmt.Println("  level-counts [--memtable-only]")
	fmt.Println("  memtable-keys")
	fmt.Println("  truncate <Y>")
}
