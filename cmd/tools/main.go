package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"stationlog/internal/actionlog"
	"stationlog/internal/config"
	"stationlog/internal/db"
	"stationlog/internal/export"
	"stationlog/internal/logging"
	"stationlog/internal/migrate"
	"stationlog/internal/modules/measurements/repository"
	"stationlog/internal/modules/measurements/types"
)

const appName = "stationlog-tools"

var version = "dev"

const usage = `usage: %s <command>
  migrate                       apply pending schema migrations
  export <start> <end> [file]   write every measurement of [start, end] (YYYY-MM-DD) as CSV
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	conn, err := db.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}
	code := run(context.Background(), cfg, logger, conn, os.Args[1:])
	if closeErr := db.Close(conn); closeErr != nil {
		slog.Error("db close", "err", closeErr)
	}
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, conn *sql.DB, args []string) int {
	switch args[0] {
	case "migrate":
		applied, err := migrate.Run(ctx, conn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			return 1
		}
		fmt.Printf("migrations applied: %d\n", len(applied))
		return 0
	case "export":
		if len(args) < 3 || len(args) > 4 {
			fmt.Fprintf(os.Stderr, usage, os.Args[0])
			return 1
		}
		start, err := types.ParseDate(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid start %q (expected YYYY-MM-DD)\n", args[1])
			return 1
		}
		end, err := types.ParseDate(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid end %q (expected YYYY-MM-DD)\n", args[2])
			return 1
		}
		path := filepath.Join(cfg.ExportDir, fmt.Sprintf("export_%s_%s.csv", start.Format("20060102"), end.Format("20060102")))
		if len(args) == 4 {
			path = args[3]
		}
		exporter := export.NewService(repository.NewRepository(conn), actionlog.New(cfg.LogDir), nil, logger)
		res, err := exporter.Export(ctx, start, end, export.FileSink{Path: path})
		if err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			return 1
		}
		fmt.Printf("exported %d rows to %s\n", res.Rows, res.Destination)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		return 1
	}
}
