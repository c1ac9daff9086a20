// Package main provides the brightsky command: the DWD open-data ingest
// pipeline and its query front ends behind one binary with subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dwdopendata/brightsky/internal/config"
	"github.com/dwdopendata/brightsky/internal/log"
	"github.com/dwdopendata/brightsky/internal/migrate"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: brightsky [--migrate] [--debug] COMMAND [ARGS]

Commands:
  migrate                          apply database migrations
  parse --path P | --url U         parse one file, printing records as JSON
  poll [--enqueue]                 list changed remote files, or enqueue them
  clean                            delete expired forecast and current records
  work                             run the worker loop
  serve --bind HOST:PORT           run the HTTP API
  query DATE [LAT LON [LAST_DATE]] point-in-time weather query
  sources [LAT LON]                look up sources

Global flags:
  --migrate                        apply migrations before the command
  --debug                          enable debug logging
`)
}

func run(args []string) int {
	global := flag.NewFlagSet("brightsky", flag.ContinueOnError)
	global.Usage = usage
	migrateFirst := global.Bool("migrate", false, "apply database migrations before the command")
	debug := global.Bool("debug", false, "enable debug logging")
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	rest := global.Args()
	if len(rest) == 0 {
		usage()
		return exitUsage
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return exitRuntime
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Errorf("%v", err)
		return exitRuntime
	}

	if *migrateFirst || rest[0] == "migrate" {
		if err := runMigrations(cfg); err != nil {
			log.Errorf("%v", err)
			return exitRuntime
		}
		if rest[0] == "migrate" {
			return exitOK
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, commandArgs := rest[0], rest[1:]
	switch command {
	case "parse":
		return cmdParse(ctx, cfg, commandArgs)
	case "poll":
		return cmdPoll(ctx, cfg, commandArgs)
	case "clean":
		return cmdClean(ctx, cfg, commandArgs)
	case "work":
		return cmdWork(ctx, cfg, commandArgs)
	case "serve":
		return cmdServe(ctx, cfg, commandArgs)
	case "query":
		return cmdQuery(ctx, cfg, commandArgs)
	case "sources":
		return cmdSources(ctx, cfg, commandArgs)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage()
		return exitUsage
	}
}

func runMigrations(cfg *config.Config) error {
	db, err := migrate.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrate.Up(db)
}

// splitPositionals separates leading positional arguments from the flags
// that follow them, so "query DATE LAT LON --max-dist 2000" parses the way
// the synopsis reads.
func splitPositionals(args []string) (positionals, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return args[:i], args[i:]
		}
	}
	return args, nil
}
