// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Session identifies the signed-in user for the remote-call layer. It is
// passed explicitly into constructors; the core never reads ambient session
// state.
type Session struct {
	UserID string
	Token  string
}

type Config struct {
	BaseURL       string
	FeedURL       string
	LogLevel      string
	CallTimeout   time.Duration
	PollInterval  time.Duration
	DebounceQuiet time.Duration
	MinQueryLen   int
}

const (
	defaultCallTimeout   = 10 * time.Second
	defaultPollInterval  = 30 * time.Second
	defaultDebounceQuiet = 300 * time.Millisecond
	defaultMinQueryLen   = 2
)

// Load reads .env when present, then the process environment. Missing
// optional values fall back to defaults; a missing base URL is an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		BaseURL:       os.Getenv("ESPORTAPP_API_URL"),
		FeedURL:       os.Getenv("ESPORTAPP_FEED_URL"),
		LogLevel:      getEnv("ESPORTAPP_LOG_LEVEL", "info"),
		CallTimeout:   defaultCallTimeout,
		PollInterval:  defaultPollInterval,
		DebounceQuiet: defaultDebounceQuiet,
		MinQueryLen:   defaultMinQueryLen,
	}

	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("ESPORTAPP_API_URL is required")
	}

	var err error
	if cfg.CallTimeout, err = getDuration("ESPORTAPP_CALL_TIMEOUT", cfg.CallTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = getDuration("ESPORTAPP_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.DebounceQuiet, err = getDuration("ESPORTAPP_DEBOUNCE_QUIET", cfg.DebounceQuiet); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("ESPORTAPP_MIN_QUERY_LEN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ESPORTAPP_MIN_QUERY_LEN: %w", err)
		}
		cfg.MinQueryLen = n
	}

	return cfg, nil
}

// SessionFromEnv builds the explicit session object the api client takes.
func SessionFromEnv() (Session, error) {
	s := Session{
		UserID: os.Getenv("ESPORTAPP_USER_ID"),
		Token:  os.Getenv("ESPORTAPP_TOKEN"),
	}
	if s.Token == "" {
		return Session{}, fmt.Errorf("ESPORTAPP_TOKEN is required")
	}
	return s, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
