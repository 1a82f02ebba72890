package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentConfig captures all tunable parameters for the driver-agent
// process. Values are primarily loaded from environment variables with
// sane defaults so the binary can run locally without excessive setup.
type AgentConfig struct {
	ChannelURL string
	APIBaseURL string
	OSRMURL    string

	AdminAddr       string
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	SessionKey    string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	StripeAPIKey string
	FareCurrency string

	AckTimeout          time.Duration
	UserDataDelay       time.Duration
	AcceptRetryAttempts int
	AcceptRetryBackoff  time.Duration
	TruncateInterval    time.Duration
	PollInterval        time.Duration
	DebounceInterval    time.Duration
	PersistEvery        int

	InitialFixAttempts int
	InitialFixDelay    time.Duration

	LogLevel string
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		ChannelURL:          "ws://localhost:8080/ws/driver",
		AdminAddr:           ":9090",
		ShutdownTimeout:     15 * time.Second,
		SessionKey:          "driver:session",
		KafkaTopic:          "driver-locations",
		FareCurrency:        "inr",
		AckTimeout:          10 * time.Second,
		UserDataDelay:       time.Second,
		AcceptRetryAttempts: 5,
		AcceptRetryBackoff:  2 * time.Second,
		TruncateInterval:    5 * time.Second,
		PollInterval:        10 * time.Second,
		DebounceInterval:    500 * time.Millisecond,
		PersistEvery:        5,
		InitialFixAttempts:  3,
		InitialFixDelay:     2 * time.Second,
		LogLevel:            "info",
	}
}

func LoadAgentConfig() (AgentConfig, error) {
	cfg := defaultAgentConfig()
	var errs []error

	setStringFromEnv(&cfg.ChannelURL, "CHANNEL_URL")
	setStringFromEnv(&cfg.APIBaseURL, "API_BASE_URL")
	setStringFromEnv(&cfg.OSRMURL, "OSRM_URL")
	setStringFromEnv(&cfg.AdminAddr, "ADMIN_ADDR")
	setDurationFromEnv(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.SessionKey, "SESSION_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")
	setStringFromEnv(&cfg.FareCurrency, "FARE_CURRENCY")

	setDurationFromEnv(&cfg.AckTimeout, "ACK_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.UserDataDelay, "USER_DATA_DELAY", &errs)
	setIntFromEnv(&cfg.AcceptRetryAttempts, "ACCEPT_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.AcceptRetryBackoff, "ACCEPT_RETRY_BACKOFF", &errs)
	setDurationFromEnv(&cfg.TruncateInterval, "TRUNCATE_INTERVAL", &errs)
	setDurationFromEnv(&cfg.PollInterval, "POLL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.DebounceInterval, "DEBOUNCE_INTERVAL", &errs)
	setIntFromEnv(&cfg.PersistEvery, "PERSIST_EVERY", &errs)
	setIntFromEnv(&cfg.InitialFixAttempts, "INITIAL_FIX_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.InitialFixDelay, "INITIAL_FIX_DELAY", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.PersistEvery <= 0 {
		errs = append(errs, fmt.Errorf("PERSIST_EVERY must be > 0"))
	}
	if cfg.AcceptRetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("ACCEPT_RETRY_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
