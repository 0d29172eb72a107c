package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeRelease Mode = "release"
	ModeDebug   Mode = "debug"
)

type KVDriver string

const (
	KVMemory   KVDriver = "memory"
	KVSQLite   KVDriver = "sqlite"
	KVPostgres KVDriver = "postgres"
	KVRedis    KVDriver = "redis"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	// Question data is read from DataBaseURL when set, else from DataDir.
	DataDir      string
	DataBaseURL  string
	FetchTimeout time.Duration

	KVDriver  KVDriver
	DBDSN     string
	RedisURL  string
	KeyPrefix string // redis only

	BlobBasePath string // exported transcripts

	CORSOrigins []string

	BlockSize    int
	HistoryLimit int

	LogFile  string
	LogLevel string
}

var defaults = map[string]any{
	"MODE":           string(ModeRelease),
	"HTTP_ADDR":      ":8080",
	"DATA_DIR":       "./public",
	"DATA_BASE_URL":  "",
	"FETCH_TIMEOUT":  "10s",
	"KV_DRIVER":      string(KVSQLite),
	"DB_DSN":         "",
	"REDIS_URL":      "redis://localhost:6379/0",
	"KEY_PREFIX":     "",
	"BLOB_BASE_PATH": "./data/transcripts",
	"CORS_ORIGINS":   "http://localhost:3000,http://localhost:5173",
	"BLOCK_SIZE":     30,
	"HISTORY_LIMIT":  50,
	"LOG_FILE":       "",
	"LOG_LEVEL":      "",
}

// FromEnv reads the configuration from environment variables only.
func FromEnv() Config {
	cfg, _ := build(newViper())
	return cfg
}

// Load reads an optional quizd.{yaml,json,toml} from the given directories,
// with environment variables taking precedence.
func Load(paths ...string) (Config, error) {
	v := newViper()
	v.SetConfigName("quizd")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if len(paths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

func build(v *viper.Viper) (Config, error) {
	cfg := Config{
		Mode:         Mode(strings.ToLower(v.GetString("MODE"))),
		HTTPAddr:     v.GetString("HTTP_ADDR"),
		DataDir:      v.GetString("DATA_DIR"),
		DataBaseURL:  v.GetString("DATA_BASE_URL"),
		FetchTimeout: v.GetDuration("FETCH_TIMEOUT"),
		KVDriver:     KVDriver(strings.ToLower(v.GetString("KV_DRIVER"))),
		DBDSN:        v.GetString("DB_DSN"),
		RedisURL:     v.GetString("REDIS_URL"),
		KeyPrefix:    v.GetString("KEY_PREFIX"),
		BlobBasePath: v.GetString("BLOB_BASE_PATH"),
		CORSOrigins:  csv(v.GetString("CORS_ORIGINS")),
		BlockSize:    v.GetInt("BLOCK_SIZE"),
		HistoryLimit: v.GetInt("HISTORY_LIMIT"),
		LogFile:      v.GetString("LOG_FILE"),
		LogLevel:     v.GetString("LOG_LEVEL"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeRelease, ModeDebug:
	default:
		return fmt.Errorf("unknown MODE %q", c.Mode)
	}
	switch c.KVDriver {
	case KVMemory, KVSQLite, KVPostgres, KVRedis:
	default:
		return fmt.Errorf("unknown KV_DRIVER %q", c.KVDriver)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("BLOCK_SIZE must be positive, got %d", c.BlockSize)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
