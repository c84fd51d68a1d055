// Command tmplctl works with email templates from the command line: it
// extracts and renders placeholders locally and moves template bundles in
// and out of the database.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
