// Command exportq is the reference deployment of the exportq engine: a
// download-preparation queue over a SQLite store with either an
// in-process or a Redis-backed work queue.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
