package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"stationlog/internal/config"
	"stationlog/internal/db"
	"stationlog/internal/httpapi"
	"stationlog/internal/metrics"
	"stationlog/internal/migrate"
	"stationlog/internal/modules/measurements"
	"stationlog/internal/modules/measurements/views"
	"stationlog/internal/mqtt"
)

// Run serves the measurement API until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"stations", cfg.Stations,
		"logDir", cfg.LogDir,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)
	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			logger.Error("db close", "error", closeErr)
		}
	}()

	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "versions", applied)
	}

	var ok int
	if err := dbConn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	logger.Info("database connection successful")

	if err := views.LoadTemplates(); err != nil {
		return err
	}

	m := metrics.New()
	mux := httpapi.NewMux(dbConn, m)

	// The handler is set before Connect so the subscription made on CONNACK already
	// delivers queued batches to ingestion.
	var subscriber *mqtt.Subscriber
	if cfg.MQTTBroker != "" {
		subscriber, err = mqtt.NewSubscriber(mqtt.OptionsFromConfig(cfg), logger)
		if err != nil {
			return err
		}
		measurements.RegisterFeature(mux, dbConn, cfg, m, subscriber, logger)
	} else {
		logger.Info("mqtt disabled (MQTT_BROKER not set)")
		measurements.RegisterFeature(mux, dbConn, cfg, m, nil, logger)
	}

	if subscriber != nil {
		// Short timeout so a missing broker does not block startup.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux, m)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		logger.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	logger.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
