// Command ledger runs the paper trading ledger.
package main

import (
	"fmt"
	"os"

	"paper-ledger/internal/cli"
	"paper-ledger/internal/logging"
)

func main() {
	logger := logging.NewLoggerWithConfig(logging.LogConfig{Level: "info", Console: true})

	if err := cli.NewRootCmd(logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
