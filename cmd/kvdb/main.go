// Command kvdb is a thin embedding demonstration for the storage core: it
// opens an engine rooted at a directory and applies put/get/delete
// operations read from the command line. It is not part of the storage
// core's interface surface.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/magnificentthinker/kvdb/engine"
)

func main() {
	dir := flag.String("dir", "./kvdb-data", "directory holding persisted files")
	cacheCapacity := flag.Int("cache-capacity", 10000, "LRU read cache capacity, in entries")
	flushThreshold := flag.Int64("flush-threshold", 1<<20, "soft mutable buffer flush threshold, in bytes")
	restartInterval := flag.Int("restart-interval", 4, "block restart group size")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatal("usage: kvdb [-dir=...] <put|get|delete> <key> [value]")
	}

	e, err := engine.Open(*dir,
		engine.WithCacheCapacity(*cacheCapacity),
		engine.WithFlushThreshold(*flushThreshold),
		engine.WithRestartInterval(*restartInterval),
	)
	if err != nil {
		log.Fatalf("opening engine: %v", err)
	}
	defer func() {
		if err := e.Shutdown(); err != nil {
			log.Fatalf("shutdown: %v", err)
		}
	}()

	cmd, key := args[0], []byte(args[1])
	switch cmd {
	case "put":
		if len(args) < 3 {
			log.Fatal("usage: kvdb put <key> <value>")
		}
		if err := e.Insert(key, []byte(args[2])); err != nil {
			log.Fatalf("put: %v", err)
		}
	case "get":
		value, ok, err := e.Get(key)
		if err != nil {
			log.Fatalf("get: %v", err)
		}
		if !ok {
			fmt.Println("(not found)")
			os.Exit(1)
		}
		fmt.Println(string(value))
	case "delete":
		if err := e.Remove(key); err != nil {
			log.Fatalf("delete: %v", err)
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
}
