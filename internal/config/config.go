package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultStations are used when STATIONS is not set.
var DefaultStations = []string{"abricot", "pêche", "prune"}

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	// SQLiteLogSQL routes every statement through the logging connector (debug level).
	SQLiteLogSQL bool

	// Stations lists the known station names; devices are "<station>_BME1" and "<station>_BME2".
	Stations []string

	// LogDir holds the daily action log files (log-YYYY-MM-DD.txt).
	LogDir string
	// ExportDir is where the viewer and tools write CSV exports.
	ExportDir string

	// MQTTBroker empty disables the MQTT batch subscriber.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	Simulator Simulator
}

type Simulator struct {
	ServerURL string
	// Transport is "http" or "mqtt".
	Transport string
	Station   string
	// Start zero means "current hour" at send time.
	Start    time.Time
	Count    int
	Step     time.Duration
	Interval time.Duration
	Periodic bool
}

// LoadFromEnv reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables win.
func LoadFromEnv() (Config, error) {
	_ = godotenv.Load()

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}
	logSQL, err := envBool("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}

	sim, err := loadSimulator()
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		HTTPAddr:              envOr("HTTP_ADDR", ":5000"),
		SQLiteDriver:          envOr("DB_DRIVER", "sqlite3"),
		SQLiteDSN:             strings.TrimSpace(os.Getenv("DB_DSN")),
		SQLitePath:            envOr("SQLITE_PATH", "data/mesures_bme280.db"),
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		SQLiteLogSQL:          logSQL,
		Stations:              parseList(os.Getenv("STATIONS"), DefaultStations),
		LogDir:                envOr("LOG_DIR", "logs"),
		ExportDir:             envOr("EXPORT_DIR", "exports"),
		MQTTBroker:            strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:              mqttPort,
		MQTTClientID:          envOr("MQTT_CLIENT_ID", "stationlog-server"),
		MQTTTopic:             envOr("MQTT_TOPIC", "stations/+/batch"),
		Simulator:             sim,
	}, nil
}

func loadSimulator() (Simulator, error) {
	transport := strings.ToLower(envOr("SIM_TRANSPORT", "http"))
	switch transport {
	case "http", "mqtt":
	default:
		return Simulator{}, fmt.Errorf("invalid SIM_TRANSPORT %q (allowed: http, mqtt)", transport)
	}

	var start time.Time
	if s := strings.TrimSpace(os.Getenv("SIM_START")); s != "" {
		t, err := time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return Simulator{}, fmt.Errorf("invalid SIM_START %q (expected YYYY-MM-DD HH:MM:SS): %w", s, err)
		}
		start = t
	}

	count, err := envInt("SIM_COUNT", 24)
	if err != nil {
		return Simulator{}, err
	}
	if count <= 0 {
		return Simulator{}, fmt.Errorf("SIM_COUNT must be positive, got %d", count)
	}
	step, err := envDuration("SIM_STEP", 5*time.Minute)
	if err != nil {
		return Simulator{}, err
	}
	interval, err := envDuration("SIM_INTERVAL", time.Minute)
	if err != nil {
		return Simulator{}, err
	}
	if interval <= 0 {
		return Simulator{}, fmt.Errorf("SIM_INTERVAL must be positive, got %v", interval)
	}
	periodic, err := envBool("SIM_PERIODIC", false)
	if err != nil {
		return Simulator{}, err
	}

	return Simulator{
		ServerURL: envOr("SIM_SERVER_URL", "http://localhost:5000/receive_batch"),
		Transport: transport,
		Station:   envOr("SIM_STATION", "mangue"),
		Start:     start,
		Count:     count,
		Step:      step,
		Interval:  interval,
		Periodic:  periodic,
	}, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

// parseList splits a comma-separated list, dropping blanks. An empty result yields def.
func parseList(s string, def []string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
