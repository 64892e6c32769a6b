// Command squadrats-grid builds squadrats tile grids for country and
// subdivision boundaries and serves them over HTTP.
package main

import (
	"fmt"
	"os"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
