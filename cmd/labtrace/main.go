// Command labtrace runs the lab-report ingestion API and its companion
// migration tooling.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
