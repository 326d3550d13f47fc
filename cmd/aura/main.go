// Command aura is the operator CLI: analyze simulation traces into failure
// reports, verify receipt chains, and run in-process multi-node
// simulations.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(os.Args[2:])
	case "verify-receipts":
		err = runVerifyReceipts(os.Args[2:])
	case "sim":
		err = runSim(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: aura <command> [flags]

commands:
  analyze          analyze a recorded trace into a failure report
  verify-receipts  verify a receipt-chain database
  sim              run an in-process multi-node simulation`)
}
