package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stationlog/internal/actionlog"
	"stationlog/internal/config"
	"stationlog/internal/db"
	"stationlog/internal/export"
	"stationlog/internal/logging"
	"stationlog/internal/migrate"
	"stationlog/internal/modules/measurements/repository"
	"stationlog/internal/navigation"
)

const appName = "stationlog-viewer"

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("viewer failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	conn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()
	if _, err := migrate.Run(ctx, conn); err != nil {
		return err
	}

	repo := repository.NewRepository(conn)
	exporter := export.NewService(repo, actionlog.New(cfg.LogDir), nil, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loop := navigation.NewLoop()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	v := newViewer(repo, loop, exporter, cfg.Stations, cfg.ExportDir, os.Stdout, navigation.WithLogger(logger))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmt.Print(help)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-loopDone:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			var cmdErr error
			if err := loop.Do(ctx, func() { cmdErr = v.exec(ctx, line) }); err != nil {
				return err
			}
			if errors.Is(cmdErr, errQuit) {
				return nil
			}
			if cmdErr != nil {
				fmt.Fprintf(os.Stdout, "error: %v\n", cmdErr)
			}
		}
	}
}
