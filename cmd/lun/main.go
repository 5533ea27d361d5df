// lun — a cache-accelerated driver for external linters and formatters.
//
// Usage:
//
//	lun                      Run the configured tools (default command)
//	lun run --fix            Run in fix mode
//	lun cache gc --size N    Evict the cache down to a byte budget
//	lun cache rm             Delete the cache file
//	lun cache stats          Print cache introspection stats
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}
