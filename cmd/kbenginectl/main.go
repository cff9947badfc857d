// kbenginectl is a thin command-line wrapper around the engine
// library: register collections, index them, search, and inspect
// status. All business logic lives in internal packages.
package main

import (
	"fmt"
	"os"

	"github.com/localkb/engine/cmd/kbenginectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
