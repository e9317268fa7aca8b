// coordctl is a command-line client exercising coordkit's primitives
// against a configured backend.
//
// Usage:
//
//	coordctl [global options] <command> <subcommand> [args]
//
// Global options:
//
//	-c, --config   path to a YAML/JSON config file (default: in-memory backend)
//
// The config file's "backend" field selects memory/redis/sql per primitive;
// "cache" additionally accepts "mongo" (requires mongo_uri and mongo_db).
//
// Commands:
//
//	lock acquire <key> <owner> [--ttl DURATION]
//	lock release <key> <owner>
//	semaphore acquire <resource> [--capacity N] [--ttl DURATION]
//	breaker status <key>
//	cache get <key>
//	cache put <key> <value> [--ttl DURATION]
//	migrate up
//	migrate down
//
// Example:
//
//	coordctl lock acquire orders:42 worker-1
//	coordctl -c coordctl.yaml semaphore acquire ingest --capacity 10
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

// configPath is set by the root command's Before hook so that deeply
// nested subcommand actions (e.g. "lock acquire") can read the global
// --config flag without depending on urfave/cli's flag-inheritance lookup
// rules, which differ by nesting depth.
var configPath string

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "coordctl",
		Usage:   "coordkit primitives command-line client",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML/JSON config file",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			configPath = cmd.String("config")
			return ctx, nil
		},
		Commands: createCommands(),
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()
	ctx := context.Background()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
