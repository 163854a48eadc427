// Command healthcheck exits 0 when the configured database accepts a connection and 1 otherwise.
// It is meant for container HEALTHCHECK directives and runs no checks beyond connecting.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/onnwee/db-health-probe/config"
	"github.com/onnwee/db-health-probe/db"
	"github.com/onnwee/db-health-probe/logging"
)

func main() {
	os.Exit(run(os.Stdout))
}

// run makes one connection attempt and logs only on failure.
func run(w io.Writer) int {
	lvl, _ := logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := logging.New(w, os.Getenv("LOG_FORMAT"), lvl)

	cfg, err := config.Load(os.Getenv("PROBE_CONFIG_FILE"))
	if err != nil {
		logger.Error(fmt.Sprintf("Invalid configuration: %v", err))
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.NewConnector(cfg).WithTimeout(cfg.ConnectTimeout).Ping(ctx); err != nil {
		logger.Error(fmt.Sprintf("Database error: %v", err))
		return 1
	}
	return 0
}
