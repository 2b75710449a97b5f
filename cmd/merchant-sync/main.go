// Command merchant-sync keeps a local merchant store in sync with Privvy.
//
// Usage:
//
//	merchant-sync serve [--port 8080] [--config config.yaml] [--verbose]
//	merchant-sync sync [--config config.yaml] [--verbose] [--fail-fast]
//	merchant-sync migrate [--config config.yaml]
package main

import (
	"context"
	"os"

	"github.com/eshaffer321/merchant-sync-backend/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
