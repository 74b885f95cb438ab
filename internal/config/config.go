package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Insights  InsightsConfig  `yaml:"insights"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	AI        AIConfig        `yaml:"ai"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Env string `yaml:"env"` // "development", "test", "production"
}

// IsProduction reports whether internal details must be hidden from clients.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port for the listener.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// AuthConfig holds the shared-secret API key checked on /api routes
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// DatabaseConfig holds the telemetry warehouse connection
type DatabaseConfig struct {
	URL                   string `yaml:"url"`
	MaxOpenConns          int    `yaml:"max_open_conns"`
	MaxIdleConns          int    `yaml:"max_idle_conns"`
	ConnMaxIdleSeconds    int    `yaml:"conn_max_idle_seconds"`
	StatementTimeoutMS    int    `yaml:"statement_timeout_ms"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
}

// ConnMaxIdleTime returns the idle timeout as a duration
func (c DatabaseConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(c.ConnMaxIdleSeconds) * time.Second
}

// RedisConfig holds the optional shared store for rate buckets and cache
type RedisConfig struct {
	URL string `yaml:"url"`
}

// InsightsConfig bounds the insights dataset
type InsightsConfig struct {
	MaxRangeDays    int `yaml:"max_range_days"`
	MaxDailyRows    int `yaml:"max_daily_rows"`
	MaxPayloadBytes int `yaml:"max_payload_bytes"`
}

// LimiterConfig is one fixed-window limiter
type LimiterConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	Max           int `yaml:"max"`
	MaxBuckets    int `yaml:"max_buckets"`
}

// Window returns the window length as a duration
func (c LimiterConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// RateLimitConfig holds both limiters and their backing store
type RateLimitConfig struct {
	Backend  string        `yaml:"backend"` // "memory" or "redis"
	Global   LimiterConfig `yaml:"global"`
	Insights LimiterConfig `yaml:"insights"`
}

// AIConfig holds the generative model settings
type AIConfig struct {
	Provider        string  `yaml:"provider"` // "gemini" or "bedrock"
	Model           string  `yaml:"model"`
	APIKey          string  `yaml:"api_key"`
	BaseURL         string  `yaml:"base_url"`
	Region          string  `yaml:"region"`
	AccessKeyID     string  `yaml:"access_key_id"`
	SecretAccessKey string  `yaml:"secret_access_key"`
	TimeoutMS       int     `yaml:"timeout_ms"`
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// Timeout returns the model call deadline as a duration
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// CacheConfig holds the metadata cache settings
type CacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxEntries int `yaml:"max_entries"`
}

// TTL returns the cache entry lifetime as a duration
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Defaults returns a configuration with every default applied.
func Defaults() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxIdleSeconds == 0 {
		cfg.Database.ConnMaxIdleSeconds = 30
	}
	if cfg.Database.StatementTimeoutMS == 0 {
		cfg.Database.StatementTimeoutMS = 120000
	}
	if cfg.Database.ConnectTimeoutSeconds == 0 {
		cfg.Database.ConnectTimeoutSeconds = 30
	}
	if cfg.Insights.MaxRangeDays == 0 {
		cfg.Insights.MaxRangeDays = 366
	}
	if cfg.Insights.MaxDailyRows == 0 {
		cfg.Insights.MaxDailyRows = 1500
	}
	if cfg.Insights.MaxPayloadBytes == 0 {
		cfg.Insights.MaxPayloadBytes = 14000
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.Global.WindowSeconds == 0 {
		cfg.RateLimit.Global.WindowSeconds = 15 * 60
	}
	if cfg.RateLimit.Global.Max == 0 {
		cfg.RateLimit.Global.Max = 200
	}
	if cfg.RateLimit.Global.MaxBuckets == 0 {
		cfg.RateLimit.Global.MaxBuckets = 1000
	}
	if cfg.RateLimit.Insights.WindowSeconds == 0 {
		cfg.RateLimit.Insights.WindowSeconds = 60
	}
	if cfg.RateLimit.Insights.Max == 0 {
		cfg.RateLimit.Insights.Max = 10
	}
	if cfg.RateLimit.Insights.MaxBuckets == 0 {
		cfg.RateLimit.Insights.MaxBuckets = 500
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = defaultModel(cfg.AI.Provider)
	}
	if cfg.AI.Region == "" {
		cfg.AI.Region = "us-east-1"
	}
	if cfg.AI.TimeoutMS == 0 {
		cfg.AI.TimeoutMS = 20000
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = 0.4
	}
	if cfg.AI.MaxOutputTokens == 0 {
		cfg.AI.MaxOutputTokens = 800
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 5 * 60
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 256
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads the optional YAML file, then the .env file, then
// applies environment overrides. A missing YAML file is not an error.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Defaults(), nil
	}
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := envInt("PORT"); v > 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.Server.CORSOrigins = origins
		}
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	if v := envInt("INSIGHTS_MAX_RANGE_DAYS"); v > 0 {
		cfg.Insights.MaxRangeDays = v
	}
	if v := envInt("INSIGHTS_MAX_DAILY_ROWS"); v > 0 {
		cfg.Insights.MaxDailyRows = v
	}
	if v := envInt("INSIGHTS_MAX_PAYLOAD_BYTES"); v > 0 {
		cfg.Insights.MaxPayloadBytes = v
	}

	if v := os.Getenv("RATE_LIMIT_BACKEND"); v != "" {
		cfg.RateLimit.Backend = v
	}
	if v := envInt("RATE_LIMIT_WINDOW_MS"); v > 0 {
		cfg.RateLimit.Global.WindowSeconds = max(v/1000, 1)
	}
	if v := envInt("RATE_LIMIT_MAX"); v > 0 {
		cfg.RateLimit.Global.Max = v
	}
	if v := envInt("INSIGHTS_RATE_LIMIT_PER_MIN"); v > 0 {
		cfg.RateLimit.Insights.Max = v
	}

	if v := os.Getenv("AI_PROVIDER"); v != "" && v != cfg.AI.Provider {
		// A defaulted model belongs to the previous provider.
		if cfg.AI.Model == defaultModel(cfg.AI.Provider) {
			cfg.AI.Model = defaultModel(v)
		}
		cfg.AI.Provider = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" && cfg.AI.Provider == "gemini" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" && cfg.AI.Provider == "bedrock" {
		cfg.AI.Model = v
	}
	// GOOGLE_API_KEY is the older variable name, still honored.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AI.Region = v
	}
	if v := envInt("INSIGHTS_MODEL_TIMEOUT_MS"); v > 0 {
		cfg.AI.TimeoutMS = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func defaultModel(provider string) string {
	if provider == "bedrock" {
		return "anthropic.claude-3-haiku-20240307-v1:0"
	}
	return "gemini-2.0-flash"
}

func envInt(name string) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
