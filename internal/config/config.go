package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"health-service/internal/health"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Store string // postgres or memory
	DB    struct {
		DSN string
	}
	Kafka struct {
		Broker         string
		TelemetryTopic string
		AlertTopic     string
		GroupID        string
	}
	Telegram struct {
		BotToken    string
		ChatID      int64
		MinSeverity string
		RateLimit   int
	}
	API struct {
		Port     string
		BasePath string
		Key      string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Alerting struct {
		Thresholds     health.Thresholds
		StaleAfter     time.Duration
		SuppressWindow time.Duration
		ThresholdsFile string
	}
	Retention struct {
		DetailedDays    int
		AggregatedYears int
	}
	EncryptionKey string
}

// Load reads .env and environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return loadFrom(os.Getenv)
}

func loadFrom(getenv func(string) string) (Config, error) {
	var cfg Config
	var bad []string

	cfg.Store = strings.ToLower(getenv("STORE"))

	cfg.DB.DSN = getenv("DB_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.DSN = normalizeDSN(getenv("DATABASE_URL"))
	}

	// Kafka settings
	cfg.Kafka.Broker = getenv("KAFKA_BROKER")
	cfg.Kafka.TelemetryTopic = getenv("KAFKA_TELEMETRY_TOPIC")
	cfg.Kafka.AlertTopic = getenv("KAFKA_ALERT_TOPIC")
	cfg.Kafka.GroupID = getenv("KAFKA_GROUP_ID")

	// Telegram settings
	cfg.Telegram.BotToken = getenv("TELEGRAM_BOT_TOKEN")
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			bad = append(bad, "TELEGRAM_CHAT_ID")
		}
		cfg.Telegram.ChatID = id
	}
	cfg.Telegram.MinSeverity = getenv("TELEGRAM_MIN_SEVERITY")
	cfg.Telegram.RateLimit = intEnv(getenv, "TELEGRAM_RATE_LIMIT", &bad)

	// API settings
	cfg.API.Port = getenv("API_PORT")
	cfg.API.BasePath = getenv("API_BASE_PATH")
	cfg.API.Key = getenv("API_KEY")

	cfg.Logging.Dir = getenv("LOG_DIR")
	cfg.Logging.Level = getenv("LOG_LEVEL")

	// Notification worker settings
	cfg.Notification.QueueSize = intEnv(getenv, "QUEUE_SIZE", &bad)
	cfg.Notification.MaxWorkers = intEnv(getenv, "MAX_WORKERS", &bad)

	cfg.Retention.DetailedDays = intEnv(getenv, "DETAILED_RETENTION_DAYS", &bad)
	cfg.Retention.AggregatedYears = intEnv(getenv, "AGGREGATED_RETENTION_YEARS", &bad)

	cfg.EncryptionKey = getenv("ENCRYPTION_KEY")

	// Thresholds: defaults, then the optional YAML file, then env
	cfg.Alerting.Thresholds = health.DefaultThresholds()
	cfg.Alerting.ThresholdsFile = getenv("THRESHOLDS_FILE")
	if cfg.Alerting.ThresholdsFile != "" {
		if err := readThresholdsFile(cfg.Alerting.ThresholdsFile, &cfg.Alerting.Thresholds); err != nil {
			return Config{}, err
		}
	}
	th := &cfg.Alerting.Thresholds
	floatEnv(getenv, "CPU_CRITICAL", &th.CPUCritical, &bad)
	floatEnv(getenv, "CPU_WARNING", &th.CPUWarning, &bad)
	floatEnv(getenv, "MEMORY_CRITICAL", &th.MemoryCritical, &bad)
	floatEnv(getenv, "MEMORY_WARNING", &th.MemoryWarning, &bad)
	floatEnv(getenv, "DISK_CRITICAL", &th.DiskCritical, &bad)
	floatEnv(getenv, "DISK_WARNING", &th.DiskWarning, &bad)
	floatEnv(getenv, "BATTERY_CRITICAL", &th.BatteryCritical, &bad)
	if v := getenv("THREAT_CRITICAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			bad = append(bad, "THREAT_CRITICAL")
		}
		th.ThreatCritical = n
	}
	cfg.Alerting.StaleAfter = durationEnv(getenv, "STALE_AFTER", &bad)
	cfg.Alerting.SuppressWindow = durationEnv(getenv, "SUPPRESS_WINDOW", &bad)

	if len(bad) > 0 {
		return Config{}, fmt.Errorf("%w: malformed configuration values: %v", health.ErrConfiguration, bad)
	}

	// Validate required settings
	if cfg.Store == "" {
		cfg.Store = "postgres"
	}
	missing := []string{}
	switch cfg.Store {
	case "postgres":
		if cfg.DB.DSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case "memory":
	default:
		return Config{}, fmt.Errorf("%w: unsupported STORE %q", health.ErrConfiguration, cfg.Store)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing required configurations: %v", health.ErrConfiguration, missing)
	}
	if err := cfg.Alerting.Thresholds.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Alerting.StaleAfter < 0 || cfg.Alerting.SuppressWindow < 0 {
		return Config{}, fmt.Errorf("%w: durations must not be negative", health.ErrConfiguration)
	}

	// Apply defaults
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if !strings.HasPrefix(cfg.API.Port, ":") && !strings.Contains(cfg.API.Port, ":") {
		cfg.API.Port = ":" + cfg.API.Port
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v1"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Kafka.TelemetryTopic == "" {
		cfg.Kafka.TelemetryTopic = "device_telemetry"
	}
	if cfg.Kafka.AlertTopic == "" {
		cfg.Kafka.AlertTopic = "device_alerts"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "health-service"
	}
	if cfg.Telegram.MinSeverity == "" {
		cfg.Telegram.MinSeverity = "critical"
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 20
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 500
	}
	if cfg.Notification.MaxWorkers == 0 {
		cfg.Notification.MaxWorkers = 10
	}
	if cfg.Alerting.StaleAfter == 0 {
		cfg.Alerting.StaleAfter = health.DefaultStaleAfter
	}
	if cfg.Retention.DetailedDays == 0 {
		cfg.Retention.DetailedDays = 90
	}
	if cfg.Retention.AggregatedYears == 0 {
		cfg.Retention.AggregatedYears = 2
	}

	return cfg, nil
}

// readThresholdsFile overlays thresholds from a YAML file onto t.
func readThresholdsFile(path string, t *health.Thresholds) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read thresholds file: %v", health.ErrConfiguration, err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("%w: failed to parse thresholds file %s: %v", health.ErrConfiguration, path, err)
	}
	return nil
}

// normalizeDSN rewrites the postgres:// scheme some hosts hand out.
func normalizeDSN(url string) string {
	if strings.HasPrefix(url, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(url, "postgres://")
	}
	return url
}

func intEnv(getenv func(string) string, key string, bad *[]string) int {
	v := getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*bad = append(*bad, key)
		return 0
	}
	return n
}

func floatEnv(getenv func(string) string, key string, dst *float64, bad *[]string) {
	v := getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*bad = append(*bad, key)
		return
	}
	*dst = f
}

func durationEnv(getenv func(string) string, key string, bad *[]string) time.Duration {
	v := getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*bad = append(*bad, key)
		return 0
	}
	return d
}
