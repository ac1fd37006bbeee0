package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	StoreBackendJSON   = "json"
	StoreBackendSQLite = "sqlite"
	AssetBackendLocal  = "local"
	AssetBackendS3     = "s3"
)

// DefaultUnlockSecret is only accepted outside production.
const DefaultUnlockSecret = "change-me"

var DefaultExpiration = time.Date(2027, time.December, 31, 23, 59, 59, 0, time.UTC)

type Config struct {
	Port    string
	BaseURL string
	DataDir string
	AppEnv  string

	StoreBackend string
	AssetBackend string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string

	MaxUploadBytes   int64
	MaxPlays         int
	MaxAudioDuration time.Duration
	ExpirationDate   time.Time

	DemoCode       string
	DemoAudioURL   string
	AutoSiblings   int
	BulkQuantities []int
	UnlockSecret   string
	UnlockTTL      time.Duration
	AdminToken     string
	RedisURL       string
	PinMaxAttempts int
	PinWindow      time.Duration
	LogLevel       string
	FFmpegPath     string
	FFprobePath    string
	AllowedOrigins []string
}

// fileConfig mirrors the TOML layout; nil fields leave defaults untouched.
type fileConfig struct {
	Port             *string  `toml:"port"`
	BaseURL          *string  `toml:"base_url"`
	DataDir          *string  `toml:"data_dir"`
	AppEnv           *string  `toml:"app_env"`
	StoreBackend     *string  `toml:"store_backend"`
	AssetBackend     *string  `toml:"asset_backend"`
	MaxUploadMB      *int64   `toml:"max_upload_mb"`
	MaxPlays         *int     `toml:"max_plays"`
	MaxAudioSeconds  *int64   `toml:"max_audio_seconds"`
	PageExpiration   *string  `toml:"page_expiration"`
	DemoCode         *string  `toml:"demo_code"`
	DemoAudioURL     *string  `toml:"demo_audio_url"`
	AutoSiblings     *int     `toml:"auto_siblings"`
	BulkQuantities   []int    `toml:"bulk_quantities"`
	UnlockTTLSeconds *int64   `toml:"unlock_ttl_seconds"`
	RedisURL         *string  `toml:"redis_url"`
	PinMaxAttempts   *int     `toml:"pin_max_attempts"`
	PinWindowSeconds *int64   `toml:"pin_window_seconds"`
	LogLevel         *string  `toml:"log_level"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	S3               struct {
		Bucket    *string `toml:"bucket"`
		Region    *string `toml:"region"`
		Endpoint  *string `toml:"endpoint"`
		PublicURL *string `toml:"public_url"`
	} `toml:"s3"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		DataDir:          "data",
		AppEnv:           "development",
		StoreBackend:     StoreBackendJSON,
		AssetBackend:     AssetBackendLocal,
		S3Region:         "us-east-1",
		MaxUploadBytes:   25 * 1024 * 1024,
		MaxPlays:         5,
		MaxAudioDuration: 60 * time.Second,
		ExpirationDate:   DefaultExpiration,
		DemoCode:         "demo",
		DemoAudioURL:     "/static/demo.mp3",
		AutoSiblings:     2,
		BulkQuantities:   []int{1, 5, 10, 25, 50, 100},
		UnlockSecret:     DefaultUnlockSecret,
		UnlockTTL:        12 * time.Hour,
		PinMaxAttempts:   5,
		PinWindow:        15 * time.Minute,
		LogLevel:         "info",
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// LoadConfig layers defaults, the optional TOML file at path (or CONFIG_FILE)
// and the environment, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendJSON, StoreBackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	switch c.AssetBackend {
	case AssetBackendLocal:
	case AssetBackendS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 asset backend")
		}
	default:
		return fmt.Errorf("unknown asset backend %q", c.AssetBackend)
	}
	if c.MaxPlays < 1 {
		return errors.New("max plays must be at least 1")
	}
	if c.AutoSiblings < 0 {
		return errors.New("auto siblings must not be negative")
	}
	if len(c.BulkQuantities) == 0 {
		return errors.New("at least one bulk quantity is required")
	}
	if strings.TrimSpace(c.DemoCode) == "" {
		return errors.New("demo code must not be empty")
	}
	if c.IsProduction() {
		secret := strings.TrimSpace(c.UnlockSecret)
		if secret == "" || secret == DefaultUnlockSecret {
			return errors.New("UNLOCK_SECRET must be set to a non-default value in production")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func (c *Config) applyFile(path string) error {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file %s not found", path)
	}
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	if err := toml.NewDecoder(file).Decode(&fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	setString(&c.Port, fc.Port)
	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.DataDir, fc.DataDir)
	setString(&c.AppEnv, fc.AppEnv)
	setString(&c.StoreBackend, fc.StoreBackend)
	setString(&c.AssetBackend, fc.AssetBackend)
	setString(&c.DemoCode, fc.DemoCode)
	setString(&c.DemoAudioURL, fc.DemoAudioURL)
	setString(&c.RedisURL, fc.RedisURL)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.S3Bucket, fc.S3.Bucket)
	setString(&c.S3Region, fc.S3.Region)
	setString(&c.S3Endpoint, fc.S3.Endpoint)
	setString(&c.S3PublicURL, fc.S3.PublicURL)

	if fc.MaxUploadMB != nil {
		c.MaxUploadBytes = *fc.MaxUploadMB * 1024 * 1024
	}
	if fc.MaxPlays != nil {
		c.MaxPlays = *fc.MaxPlays
	}
	if fc.MaxAudioSeconds != nil {
		c.MaxAudioDuration = time.Duration(*fc.MaxAudioSeconds) * time.Second
	}
	if fc.PageExpiration != nil {
		ts, err := time.Parse(time.RFC3339, *fc.PageExpiration)
		if err != nil {
			return fmt.Errorf("parse page_expiration: %w", err)
		}
		c.ExpirationDate = ts
	}
	if fc.AutoSiblings != nil {
		c.AutoSiblings = *fc.AutoSiblings
	}
	if len(fc.BulkQuantities) > 0 {
		c.BulkQuantities = fc.BulkQuantities
	}
	if fc.UnlockTTLSeconds != nil {
		c.UnlockTTL = time.Duration(*fc.UnlockTTLSeconds) * time.Second
	}
	if fc.PinMaxAttempts != nil {
		c.PinMaxAttempts = *fc.PinMaxAttempts
	}
	if fc.PinWindowSeconds != nil {
		c.PinWindow = time.Duration(*fc.PinWindowSeconds) * time.Second
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = envOrDefault("PORT", c.Port)
	c.BaseURL = envOrDefault("BASE_URL", c.BaseURL)
	c.DataDir = envOrDefault("DATA_DIR", c.DataDir)
	c.AppEnv = envOrDefault("APP_ENV", c.AppEnv)
	c.StoreBackend = envOrDefault("STORE_BACKEND", c.StoreBackend)
	c.AssetBackend = envOrDefault("ASSET_BACKEND", c.AssetBackend)
	c.S3Bucket = envOrDefault("S3_BUCKET", c.S3Bucket)
	c.S3Region = envOrDefault("S3_REGION", c.S3Region)
	c.S3Endpoint = envOrDefault("S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = envOrDefault("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = envOrDefault("S3_SECRET_KEY", c.S3SecretKey)
	c.S3PublicURL = envOrDefault("S3_PUBLIC_URL", c.S3PublicURL)
	c.DemoCode = envOrDefault("DEMO_CODE", c.DemoCode)
	c.DemoAudioURL = envOrDefault("DEMO_AUDIO_URL", c.DemoAudioURL)
	c.UnlockSecret = envOrDefault("UNLOCK_SECRET", c.UnlockSecret)
	c.AdminToken = envOrDefault("ADMIN_TOKEN", c.AdminToken)
	c.RedisURL = envOrDefault("REDIS_URL", c.RedisURL)
	c.LogLevel = envOrDefault("LOG_LEVEL", c.LogLevel)
	c.FFmpegPath = envOrDefault("FFMPEG_PATH", c.FFmpegPath)
	c.FFprobePath = envOrDefault("FFPROBE_PATH", c.FFprobePath)

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", c.MaxUploadBytes/(1024*1024))
	if err != nil {
		return fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	c.MaxUploadBytes = maxUploadMB * 1024 * 1024

	maxPlays, err := parseIntEnv("MAX_PLAYS", int64(c.MaxPlays))
	if err != nil {
		return fmt.Errorf("parse MAX_PLAYS: %w", err)
	}
	c.MaxPlays = int(maxPlays)

	maxAudio, err := parseIntEnv("MAX_AUDIO_SECONDS", int64(c.MaxAudioDuration/time.Second))
	if err != nil {
		return fmt.Errorf("parse MAX_AUDIO_SECONDS: %w", err)
	}
	c.MaxAudioDuration = time.Duration(maxAudio) * time.Second

	siblings, err := parseIntEnv("AUTO_SIBLINGS", int64(c.AutoSiblings))
	if err != nil {
		return fmt.Errorf("parse AUTO_SIBLINGS: %w", err)
	}
	c.AutoSiblings = int(siblings)

	unlockTTL, err := parseIntEnv("UNLOCK_TTL_SECONDS", int64(c.UnlockTTL/time.Second))
	if err != nil {
		return fmt.Errorf("parse UNLOCK_TTL_SECONDS: %w", err)
	}
	c.UnlockTTL = time.Duration(unlockTTL) * time.Second

	attempts, err := parseIntEnv("PIN_MAX_ATTEMPTS", int64(c.PinMaxAttempts))
	if err != nil {
		return fmt.Errorf("parse PIN_MAX_ATTEMPTS: %w", err)
	}
	c.PinMaxAttempts = int(attempts)

	window, err := parseIntEnv("PIN_WINDOW_SECONDS", int64(c.PinWindow/time.Second))
	if err != nil {
		return fmt.Errorf("parse PIN_WINDOW_SECONDS: %w", err)
	}
	c.PinWindow = time.Duration(window) * time.Second

	if raw := envOrDefault("PAGE_EXPIRATION", ""); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("parse PAGE_EXPIRATION: %w", err)
		}
		c.ExpirationDate = ts
	}

	if raw := envOrDefault("BULK_QUANTITIES", ""); raw != "" {
		quantities, err := parseIntList(raw)
		if err != nil {
			return fmt.Errorf("parse BULK_QUANTITIES: %w", err)
		}
		c.BulkQuantities = quantities
	}

	if raw := envOrDefault("ALLOWED_ORIGINS", ""); raw != "" {
		c.AllowedOrigins = splitList(raw)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}

func parseIntList(raw string) ([]int, error) {
	parts := splitList(raw)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
