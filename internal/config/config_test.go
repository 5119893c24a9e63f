package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("speak2sql", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.Port != 0 {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.BaseURL != "https://api.openai.com/v1" || cfg.AI.Model != "gpt-4o-mini" {
		t.Fatalf("AI base/model = %q/%q", cfg.AI.BaseURL, cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.1 || cfg.AI.MaxTokens != 1000 {
		t.Fatalf("AI temperature/max tokens = %v/%d", cfg.AI.Temperature, cfg.AI.MaxTokens)
	}
	if cfg.History.MaxEntries != 100 || cfg.History.Path != "operation_history.json" {
		t.Fatalf("History = %+v", cfg.History)
	}
	if cfg.History.Backend != HistoryBackendFile {
		t.Fatalf("History.Backend = %q", cfg.History.Backend)
	}
	if cfg.Schema.SampleRows != 5 {
		t.Fatalf("Schema.SampleRows = %d", cfg.Schema.SampleRows)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("speak2sql-api", mapLookup(map[string]string{"SPEAK2SQL_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo || !cfg.Observability.LogJSON {
		t.Fatalf("Observability = %+v", cfg.Observability)
	}
	if !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"SPEAK2SQL_PROFILE":                   "test",
		"SPEAK2SQL_SERVICE_NAME":              "speak2sql-custom",
		"SPEAK2SQL_HTTP_ADDR":                 ":9999",
		"SPEAK2SQL_HTTP_READ_TIMEOUT":         "2s",
		"SPEAK2SQL_LOG_LEVEL":                 "error",
		"SPEAK2SQL_AUTH_REQUIRED":             "true",
		"SPEAK2SQL_AUTH_STATIC_KEYS":          "k1:alice:query_reader",
		"SPEAK2SQL_DB_DRIVER":                 "Postgres",
		"SPEAK2SQL_DB_DSN":                    "postgres://example",
		"SPEAK2SQL_DB_MAX_OPEN_CONNS":         "9",
		"SPEAK2SQL_DB_QUERY_TIMEOUT":          "7s",
		"SPEAK2SQL_AI_PROVIDER":               "ollama",
		"SPEAK2SQL_AI_MODEL":                  "qwen2.5-coder",
		"SPEAK2SQL_AI_TEMPERATURE":            "0.3",
		"SPEAK2SQL_AI_MAX_TOKENS":             "512",
		"SPEAK2SQL_AI_TIMEOUT":                "21s",
		"SPEAK2SQL_HISTORY_MAX_ENTRIES":       "25",
		"SPEAK2SQL_HISTORY_BACKEND":           "s3",
		"SPEAK2SQL_HISTORY_OBJECT_KEY":        "team/history.json",
		"SPEAK2SQL_HISTORY_AUTOSAVE_INTERVAL": "30s",
		"SPEAK2SQL_SCHEMA_SAMPLE_ROWS":        "2",
		"SPEAK2SQL_OBJECTSTORE_BUCKET":        "speak2sql-prod",
		"SPEAK2SQL_OBJECTSTORE_USE_SSL":       "true",
	})
	cfg, err := Load("speak2sql", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "speak2sql-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:alice:query_reader" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://example" {
		t.Fatalf("Database driver/dsn = %q/%q", cfg.Database.Driver, cfg.Database.DSN)
	}
	if cfg.Database.MaxOpenConns != 9 || cfg.Database.QueryTimeout != 7*time.Second {
		t.Fatalf("Database pool = %+v", cfg.Database)
	}
	if cfg.AI.Provider != ProviderOllama || cfg.AI.BaseURL != "http://localhost:11434" {
		t.Fatalf("AI provider/base = %q/%q", cfg.AI.Provider, cfg.AI.BaseURL)
	}
	if cfg.AI.Model != "qwen2.5-coder" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.3 || cfg.AI.MaxTokens != 512 || cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.History.MaxEntries != 25 || cfg.History.Backend != HistoryBackendS3 || cfg.History.ObjectKey != "team/history.json" {
		t.Fatalf("History = %+v", cfg.History)
	}
	if cfg.History.AutosaveInterval != 30*time.Second {
		t.Fatalf("History.AutosaveInterval = %s", cfg.History.AutosaveInterval)
	}
	if cfg.Schema.SampleRows != 2 {
		t.Fatalf("Schema.SampleRows = %d", cfg.Schema.SampleRows)
	}
	if cfg.ObjectStore.Bucket != "speak2sql-prod" || !cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
}

func TestLoadAnthropicDefaults(t *testing.T) {
	cfg, err := Load("speak2sql", mapLookup(map[string]string{"SPEAK2SQL_AI_PROVIDER": "anthropic"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.BaseURL != "https://api.anthropic.com" || cfg.AI.Model == "" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
}

func TestLoadFromTOMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speak2sql.toml")
	content := `
[database]
driver = "sqlite"
dsn = "file:app.db"

[ai]
provider = "ollama"
model = "llama3.1"
temperature = 0.2
timeout = "45s"

[history]
path = "/var/lib/speak2sql/history.json"
max_entries = 50

[observability]
log_level = "warn"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg, err := Load("speak2sql", mapLookup(map[string]string{
		"SPEAK2SQL_CONFIG_FILE": path,
		"SPEAK2SQL_AI_MODEL":    "llama3.2",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "file:app.db" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.AI.Provider != ProviderOllama || cfg.AI.Model != "llama3.2" {
		t.Fatalf("AI provider/model = %q/%q", cfg.AI.Provider, cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.2 || cfg.AI.Timeout != 45*time.Second {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.History.Path != "/var/lib/speak2sql/history.json" || cfg.History.MaxEntries != 50 {
		t.Fatalf("History = %+v", cfg.History)
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.AI.MaxTokens != 1000 {
		t.Fatalf("AI.MaxTokens = %d, want profile default", cfg.AI.MaxTokens)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speak2sql.yaml")
	content := `
database:
  host: db.internal
  port: 3307
  user: reporter
  name: shop
schema:
  sample_rows: 3
auth:
  required: true
  static_keys: "k1:bob:data_writer"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg, err := Load("speak2sql", mapLookup(map[string]string{"SPEAK2SQL_CONFIG_FILE": path}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 3307 || cfg.Database.User != "reporter" || cfg.Database.Name != "shop" {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Schema.SampleRows != 3 {
		t.Fatalf("Schema.SampleRows = %d", cfg.Schema.SampleRows)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:bob:data_writer" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"SPEAK2SQL_PROFILE": "oops"},
		{"SPEAK2SQL_HTTP_READ_TIMEOUT": "NaN"},
		{"SPEAK2SQL_DB_MAX_OPEN_CONNS": "oops"},
		{"SPEAK2SQL_DB_PORT": "x"},
		{"SPEAK2SQL_AI_TEMPERATURE": "bad"},
		{"SPEAK2SQL_AI_PROVIDER": "bard"},
		{"SPEAK2SQL_AI_MAX_TOKENS": "0"},
		{"SPEAK2SQL_HISTORY_MAX_ENTRIES": "0"},
		{"SPEAK2SQL_HISTORY_BACKEND": "tape"},
		{"SPEAK2SQL_HISTORY_PATH": ""},
		{"SPEAK2SQL_AUTH_REQUIRED": "not-bool"},
		{"SPEAK2SQL_LOG_LEVEL": "verbose"},
		{"SPEAK2SQL_CONFIG_FILE": "/does/not/exist.toml"},
		{"SPEAK2SQL_CONFIG_FILE": "settings.ini"},
	}
	for _, env := range tests {
		if _, err := Load("speak2sql", mapLookup(env)); err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
