package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "SPEAK2SQL_"

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
)

const (
	HistoryBackendFile = "file"
	HistoryBackendS3   = "s3"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	History       HistoryConfig
	Schema        SchemaConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig either carries a full DSN or the discrete connection
// fields the DSN is built from. A zero Port selects the driver's default.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type HistoryConfig struct {
	Path             string
	MaxEntries       int
	Backend          string
	ObjectKey        string
	AutosaveInterval time.Duration
}

type SchemaConfig struct {
	SampleRows int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

// Load builds a Config from profile defaults, then the optional file named by
// SPEAK2SQL_CONFIG_FILE, then environment overrides.
func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if raw, ok := lookup(envPrefix + "CONFIG_FILE"); ok && strings.TrimSpace(raw) != "" {
		if err := applyFile(strings.TrimSpace(raw), &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(lookup, &cfg); err != nil {
		return Config{}, err
	}

	applyProviderDefaults(&cfg.AI)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	cfg.History.Backend = strings.ToLower(cfg.History.Backend)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(lookup LookupFunc, cfg *Config) error {
	if err := applyString(lookup, envPrefix+"SERVICE_NAME", &cfg.Service.Name); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_DRIVER", &cfg.Database.Driver); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_DSN", &cfg.Database.DSN); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_HOST", &cfg.Database.Host); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"DB_PORT", &cfg.Database.Port); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_USER", &cfg.Database.User); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_PASSWORD", &cfg.Database.Password); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"DB_NAME", &cfg.Database.Name); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"DB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"AI_PROVIDER", &cfg.AI.Provider); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"AI_BASE_URL", &cfg.AI.BaseURL); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"AI_API_KEY", &cfg.AI.APIKey); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"AI_MODEL", &cfg.AI.Model); err != nil {
		return err
	}
	if err := applyFloat(lookup, envPrefix+"AI_TEMPERATURE", &cfg.AI.Temperature); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"AI_MAX_TOKENS", &cfg.AI.MaxTokens); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"AI_TIMEOUT", &cfg.AI.Timeout); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"HISTORY_PATH", &cfg.History.Path); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"HISTORY_MAX_ENTRIES", &cfg.History.MaxEntries); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"HISTORY_BACKEND", &cfg.History.Backend); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"HISTORY_OBJECT_KEY", &cfg.History.ObjectKey); err != nil {
		return err
	}
	if err := applyDuration(lookup, envPrefix+"HISTORY_AUTOSAVE_INTERVAL", &cfg.History.AutosaveInterval); err != nil {
		return err
	}
	if err := applyInt(lookup, envPrefix+"SCHEMA_SAMPLE_ROWS", &cfg.Schema.SampleRows); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return err
	}
	if err := applyString(lookup, envPrefix+"OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return err
	}
	if err := applyLogLevel(lookup, envPrefix+"LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return err
	}
	if err := applyBool(lookup, envPrefix+"AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return err
	}
	return applyString(lookup, envPrefix+"AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys)
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported ai provider %q", c.AI.Provider)
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("ai max tokens must be positive")
	}
	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history max entries must be positive")
	}
	switch c.History.Backend {
	case HistoryBackendFile:
		if c.History.Path == "" {
			return fmt.Errorf("history path is required for the file backend")
		}
	case HistoryBackendS3:
		if c.History.ObjectKey == "" {
			return fmt.Errorf("history object key is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported history backend %q", c.History.Backend)
	}
	if c.Schema.SampleRows < 0 {
		return fmt.Errorf("schema sample rows must not be negative")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "speak2sql"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "mysql",
			Host:            "localhost",
			User:            "root",
			MaxOpenConns:    4,
			MaxIdleConns:    4,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			Temperature: 0.1,
			MaxTokens:   1000,
			Timeout:     60 * time.Second,
		},
		History: HistoryConfig{
			Path:             "operation_history.json",
			MaxEntries:       100,
			Backend:          HistoryBackendFile,
			ObjectKey:        "history/operation_history.json",
			AutosaveInterval: time.Minute,
		},
		Schema: SchemaConfig{
			SampleRows: 5,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "speak2sql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

// applyProviderDefaults fills the endpoint and model a provider ships with
// when neither was configured.
func applyProviderDefaults(ai *AIConfig) {
	ai.Provider = strings.ToLower(strings.TrimSpace(ai.Provider))
	var baseURL, model string
	switch ai.Provider {
	case ProviderOpenAI:
		baseURL, model = "https://api.openai.com/v1", "gpt-4o-mini"
	case ProviderOllama:
		baseURL, model = "http://localhost:11434", "llama3"
	case ProviderAnthropic:
		baseURL, model = "https://api.anthropic.com", "claude-3-5-haiku-latest"
	default:
		return
	}
	if ai.BaseURL == "" {
		ai.BaseURL = baseURL
	}
	if ai.Model == "" {
		ai.Model = model
	}
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level, err := parseLogLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = level
	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}
