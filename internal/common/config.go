package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	KIS         KISConfig       `toml:"kis"`
	News        NewsConfig      `toml:"news"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	Poller      PollerConfig    `toml:"poller"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port        int      `toml:"port"`
	Host        string   `toml:"host"`
	CORSOrigins []string `toml:"cors_origins"` // Allowed CORS origins; empty allows all
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig represents embedded database configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path (WAL sidecars live alongside)
	WALMode       bool   `toml:"wal_mode"`        // Enable WAL journal mode
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // PRAGMA busy_timeout in milliseconds
	CacheSizeMB   int    `toml:"cache_size_mb"`   // PRAGMA cache_size
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	Path       string   `toml:"path"`        // Log file path when "file" output is enabled
	TimeFormat string   `toml:"time_format"` // Time format for log lines
}

// KISConfig contains Korea Investment & Securities open-API configuration
type KISConfig struct {
	AppKey         string `toml:"app_key"`
	AppSecret      string `toml:"app_secret"`
	BaseURL        string `toml:"base_url"`
	WSURL          string `toml:"ws_url"`          // Realtime websocket endpoint (secondary to REST polling)
	RatePerSec     int    `toml:"rate_per_sec"`    // Multi-quote call budget (vendor cap: 2/s)
	BatchSize      int    `toml:"batch_size"`      // Tickers per multi-quote call (vendor cap: 30)
	RequestTimeout string `toml:"request_timeout"` // HTTP timeout as duration string
}

// NewsConfig contains news crawling configuration
type NewsConfig struct {
	PortalBaseURL  string `toml:"portal_base_url"` // Finance portal (HTML item pages)
	RSSBaseURL     string `toml:"rss_base_url"`    // News RSS endpoint
	UserAgent      string `toml:"user_agent"`
	RequestTimeout string `toml:"request_timeout"`
	RequestDelay   string `toml:"request_delay"` // Minimum delay between portal requests
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains provider selection and shared limits
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "gemini" or "claude"
	RequestsPerMin  int         `toml:"requests_per_min"` // Sliding-window request budget
	MaxRetries      int         `toml:"max_retries"`      // Retry attempts on 429/503/overloaded
}

// EmbeddingConfig contains the sentence-embedding server used for news dedup.
// When ServerURL is empty dedup degrades to identity (no dedup).
type EmbeddingConfig struct {
	ServerURL      string  `toml:"server_url"`
	Model          string  `toml:"model"` // e.g. "jhgan/ko-sbert-sts"
	SimThreshold   float64 `toml:"sim_threshold"`
	RequestTimeout string  `toml:"request_timeout"`
}

// PollerConfig contains the realtime poller settings
type PollerConfig struct {
	Enabled         bool   `toml:"enabled"`
	InterBatchDelay string `toml:"inter_batch_delay"` // Sleep between multi-quote batches
}

// SchedulerConfig contains cron job settings and time overrides (HH:MM)
type SchedulerConfig struct {
	Enabled            bool   `toml:"enabled"`
	FinancialBatchTime string `toml:"financial_batch_time"`
	MorningReportTime  string `toml:"morning_report_time"`
	MorningTriggerTime string `toml:"morning_trigger_time"`
	AfternoonTrigTime  string `toml:"afternoon_trigger_time"`
	AfternoonRepTime   string `toml:"afternoon_report_time"`
}

// NewDefaultConfig creates a configuration with default values.
// Vendor caps (30 tickers/call, 2 calls/sec) are hardcoded defaults here;
// only deployment-facing settings belong in specula.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:        8080,
			Host:        "localhost",
			CORSOrigins: []string{},
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/specula.db",
				WALMode:       true,
				BusyTimeoutMS: 30000,
				CacheSizeMB:   64,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			Path:       "",
			TimeFormat: "15:04:05",
		},
		KIS: KISConfig{
			BaseURL:        "https://openapi.koreainvestment.com:9443",
			WSURL:          "ws://ops.koreainvestment.com:21000",
			RatePerSec:     2,
			BatchSize:      30,
			RequestTimeout: "10s",
		},
		News: NewsConfig{
			PortalBaseURL:  "https://finance.naver.com",
			RSSBaseURL:     "https://news.google.com/rss/search",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: "15s",
			RequestDelay:   "300ms",
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-2.0-flash",
			Timeout:     "5m",
			Temperature: 0.3,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.3,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			RequestsPerMin:  60,
			MaxRetries:      5,
		},
		Embedding: EmbeddingConfig{
			ServerURL:      "",
			Model:          "jhgan/ko-sbert-sts",
			SimThreshold:   0.66,
			RequestTimeout: "30s",
		},
		Poller: PollerConfig{
			Enabled:         true,
			InterBatchDelay: "500ms",
		},
		Scheduler: SchedulerConfig{
			Enabled:            true,
			FinancialBatchTime: "00:00",
			MorningReportTime:  "08:00",
			MorningTriggerTime: "09:10",
			AfternoonTrigTime:  "15:30",
			AfternoonRepTime:   "15:40",
		},
	}
}

// LoadFromFiles loads configuration from files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies SPECULA_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SPECULA_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("SPECULA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SPECULA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if origins := os.Getenv("SPECULA_CORS_ORIGINS"); origins != "" {
		parts := []string{}
		for _, o := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		config.Server.CORSOrigins = parts
	}

	if path := os.Getenv("SPECULA_DB_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}

	if level := os.Getenv("SPECULA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("SPECULA_LOG_PATH"); path != "" {
		config.Logging.Path = path
	}

	if appKey := os.Getenv("SPECULA_KIS_APP_KEY"); appKey != "" {
		config.KIS.AppKey = appKey
	}
	if appSecret := os.Getenv("SPECULA_KIS_APP_SECRET"); appSecret != "" {
		config.KIS.AppSecret = appSecret
	}
	if baseURL := os.Getenv("SPECULA_KIS_BASE_URL"); baseURL != "" {
		config.KIS.BaseURL = baseURL
	}

	if apiKey := os.Getenv("SPECULA_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("SPECULA_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("SPECULA_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // SPECULA_ prefix takes priority
	}
	if model := os.Getenv("SPECULA_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if provider := os.Getenv("SPECULA_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	if serverURL := os.Getenv("SPECULA_EMBEDDING_SERVER_URL"); serverURL != "" {
		config.Embedding.ServerURL = serverURL
	}

	if enabled := os.Getenv("SPECULA_POLLER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Poller.Enabled = e
		}
	}
	if enabled := os.Getenv("SPECULA_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if t := os.Getenv("SPECULA_MORNING_TRIGGER_TIME"); t != "" {
		config.Scheduler.MorningTriggerTime = t
	}
	if t := os.Getenv("SPECULA_AFTERNOON_TRIGGER_TIME"); t != "" {
		config.Scheduler.AfternoonTrigTime = t
	}
	if t := os.Getenv("SPECULA_MORNING_REPORT_TIME"); t != "" {
		config.Scheduler.MorningReportTime = t
	}
	if t := os.Getenv("SPECULA_AFTERNOON_REPORT_TIME"); t != "" {
		config.Scheduler.AfternoonRepTime = t
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks ranges that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.KIS.BatchSize <= 0 || c.KIS.BatchSize > 30 {
		return fmt.Errorf("kis batch_size must be 1-30, got %d", c.KIS.BatchSize)
	}
	if c.KIS.RatePerSec <= 0 || c.KIS.RatePerSec > 2 {
		return fmt.Errorf("kis rate_per_sec must be 1-2, got %d", c.KIS.RatePerSec)
	}
	if c.LLM.RequestsPerMin <= 0 {
		return fmt.Errorf("llm requests_per_min must be positive, got %d", c.LLM.RequestsPerMin)
	}
	if c.Embedding.SimThreshold <= 0 || c.Embedding.SimThreshold >= 1 {
		return fmt.Errorf("embedding sim_threshold must be in (0,1), got %f", c.Embedding.SimThreshold)
	}
	for name, v := range map[string]string{
		"financial_batch_time":   c.Scheduler.FinancialBatchTime,
		"morning_report_time":    c.Scheduler.MorningReportTime,
		"morning_trigger_time":   c.Scheduler.MorningTriggerTime,
		"afternoon_trigger_time": c.Scheduler.AfternoonTrigTime,
		"afternoon_report_time":  c.Scheduler.AfternoonRepTime,
	} {
		if _, _, err := ParseClock(v); err != nil {
			return fmt.Errorf("scheduler %s: %w", name, err)
		}
	}
	return nil
}

// ParseClock parses an "HH:MM" wall-clock string
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid HH:MM time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// DurationOr parses a duration string, falling back to def when the
// value is empty or malformed
func DurationOr(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
