// =============================================================================
// GOQUEUE-TXNCTL - TRANSACTION ADMIN CLI
// =============================================================================
//
// A CLI for operating on a running txncore broker's admin HTTP surface:
// listing and describing transactions, force-aborting a stuck one, and the
// handful of topic/health commands an operator needs alongside them.
// Mirrors what kafka-transactions.sh gives you against a real cluster.
//
// =============================================================================

package main

import (
	"fmt"
	"os"

	"txncore/cmd/goqueue-txnctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
