package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"

	"stationlog/internal/config"
	"stationlog/internal/logging"
	"stationlog/internal/mqtt"
	"stationlog/internal/simulator"
)

const appName = "stationlog-simulator"

var version = "dev"

const usage = `usage: %s [once|run]
  once  send one batch and exit
  run   send a batch every SIM_INTERVAL until interrupted
without a command, SIM_PERIODIC selects the mode
`

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	periodic := cfg.Simulator.Periodic
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "once":
			periodic = false
		case "run":
			periodic = true
		default:
			fmt.Fprintf(os.Stderr, usage, os.Args[0])
			os.Exit(2)
		}
	}
	if !slices.Contains(simulator.Stations, cfg.Simulator.Station) {
		slog.Warn("station is not one of the simulated stations", "station", cfg.Simulator.Station, "known", simulator.Stations)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, periodic); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("simulator failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, periodic bool) error {
	sender, closeSender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	sim := simulator.New(cfg.Simulator, sender, logger)
	if !periodic {
		n, err := sim.SendOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("sent %d measurements (%s)\n", n, sender.Transport())
		return nil
	}

	go func() {
		for st := range sim.Status() {
			fmt.Println(st)
		}
	}()
	return sim.Run(ctx)
}

func newSender(ctx context.Context, cfg config.Config, logger *slog.Logger) (simulator.Sender, func(), error) {
	if cfg.Simulator.Transport != "mqtt" {
		return simulator.NewHTTPSender(cfg.Simulator.ServerURL), func() {}, nil
	}

	opts := mqtt.OptionsFromConfig(cfg)
	// Each simulator run gets its own session so several can publish side by side.
	opts.ClientID = "stationlog-sim-" + uuid.NewString()
	pub, err := mqtt.NewPublisher(opts, logger)
	if err != nil {
		return nil, nil, err
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pub.Connect(connectCtx); err != nil {
		return nil, nil, err
	}
	return &simulator.MQTTSender{Publisher: pub}, pub.Disconnect, nil
}
