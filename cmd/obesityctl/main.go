// Command obesityctl talks to a running prediction service and encodes records
// offline against a model artifact.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
