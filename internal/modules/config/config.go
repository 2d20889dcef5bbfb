package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	redisAddrENV      = "REDIS_ADDR"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB    string `yaml:"db_dsn"`
	Redis struct {
		Addr        string        `yaml:"addr"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
	} `yaml:"redis"`
	Service struct {
		Host       string `yaml:"host"`
		HealthAddr string `yaml:"health_addr"`
	} `yaml:"service"`
	Tracing struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"tracing"`

	Broker struct {
		// Poll pause between consumer-loop iterations, not a busy spin.
		PollInterval time.Duration `yaml:"poll_interval"`
		Durable      bool          `yaml:"durable"` // postgres-backed queue instead of in-memory
	} `yaml:"broker"`

	Feed struct {
		WSURL        string        `yaml:"ws_url"`
		Watchlist    []string      `yaml:"watchlist"`
		Intervals    []string      `yaml:"intervals"`
		PingInterval time.Duration `yaml:"ping_interval"`
		MaxBackoff   time.Duration `yaml:"max_backoff"`
	} `yaml:"feed"`

	Execution struct {
		MaxRetries        int           `yaml:"max_retries"`
		RetryDelay        time.Duration `yaml:"retry_delay"`
		MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`
		ReconcileAfter    time.Duration `yaml:"reconcile_after"`    // first sweep delay after startup
		ReconcileInterval time.Duration `yaml:"reconcile_interval"` // period between sweeps
	} `yaml:"execution"`

	// Strategy defaults applied when a definition leaves a field unset.
	DefaultPositionQuote float64 `yaml:"position_quote"` // order size in quote currency
	DefaultStopPct       float64 `yaml:"stop_pct"`       // SL distance from entry, e.g. 0.5 => 0.5%
	DefaultTakeProfitRR  float64 `yaml:"take_profit_rr"` // e.g. 3.0 => TP = 3R

	DefaultTimeframe     string
	DefaultEMAShort      int
	DefaultEMALong       int
	DefaultRSIPeriod     int
	DefaultRSIOverbought float64
	DefaultRSIOSold      float64

	DefaultDonchianPeriod int // channel period, N candles (usually 20)
	DefaultTrendEmaPeriod int // EMA trend filter (usually 50)
	DefaultStrategy       string
}

func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		DefaultPositionQuote:  floatFromEnv("POSITION_QUOTE", 100),
		DefaultStopPct:        floatFromEnv("STOP_PCT", 0.5),
		DefaultTakeProfitRR:   floatFromEnv("TAKE_PROFIT_RR", 3.0),
		DefaultDonchianPeriod: intFromEnv("DONCHIAN_PERIOD", 20),
		DefaultTrendEmaPeriod: intFromEnv("TREND_EMA_PERIOD", 50),
		DefaultStrategy:       getenvDefault("DEFAULT_STRATEGY", "emarsi"),

		DefaultTimeframe:     getenvDefault("TIMEFRAME", "1h"),
		DefaultEMAShort:      intFromEnv("EMA_SHORT", 9),
		DefaultEMALong:       intFromEnv("EMA_LONG", 21),
		DefaultRSIPeriod:     intFromEnv("RSI_PERIOD", 14),
		DefaultRSIOverbought: floatFromEnv("RSI_OVERBOUGHT", 70),
		DefaultRSIOSold:      floatFromEnv("RSI_OVERSOLD", 30),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if addr := os.Getenv(redisAddrENV); addr != "" {
		config.Redis.Addr = addr
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Broker.PollInterval <= 0 {
		c.Broker.PollInterval = 100 * time.Millisecond
	}
	if c.Execution.MaxRetries <= 0 {
		c.Execution.MaxRetries = 3
	}
	if c.Execution.RetryDelay <= 0 {
		c.Execution.RetryDelay = durationFromEnv("RETRY_DELAY", "1s")
	}
	if c.Execution.ReconcileAfter <= 0 {
		c.Execution.ReconcileAfter = 30 * time.Second
	}
	if c.Execution.ReconcileInterval <= 0 {
		c.Execution.ReconcileInterval = 5 * time.Minute
	}
	if c.Feed.PingInterval <= 0 {
		c.Feed.PingInterval = 20 * time.Second
	}
	if c.Feed.MaxBackoff <= 0 {
		c.Feed.MaxBackoff = time.Minute
	}
	if c.Redis.SnapshotTTL <= 0 {
		c.Redis.SnapshotTTL = 24 * time.Hour
	}
	if c.Service.HealthAddr == "" {
		c.Service.HealthAddr = ":8080"
	}
}

func getenvRequired(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("env %s is required", key))
	}
	return v
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
