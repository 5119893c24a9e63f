package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for TOML and YAML files. Pointer fields keep
// unset keys from overwriting profile defaults.
type fileConfig struct {
	Service struct {
		Name *string `toml:"name" yaml:"name"`
	} `toml:"service" yaml:"service"`
	HTTP struct {
		Address      *string `toml:"address" yaml:"address"`
		ReadTimeout  *string `toml:"read_timeout" yaml:"read_timeout"`
		WriteTimeout *string `toml:"write_timeout" yaml:"write_timeout"`
		IdleTimeout  *string `toml:"idle_timeout" yaml:"idle_timeout"`
	} `toml:"http" yaml:"http"`
	Database struct {
		Driver          *string `toml:"driver" yaml:"driver"`
		DSN             *string `toml:"dsn" yaml:"dsn"`
		Host            *string `toml:"host" yaml:"host"`
		Port            *int    `toml:"port" yaml:"port"`
		User            *string `toml:"user" yaml:"user"`
		Password        *string `toml:"password" yaml:"password"`
		Name            *string `toml:"name" yaml:"name"`
		MaxOpenConns    *int    `toml:"max_open_conns" yaml:"max_open_conns"`
		MaxIdleConns    *int    `toml:"max_idle_conns" yaml:"max_idle_conns"`
		ConnMaxIdleTime *string `toml:"conn_max_idle_time" yaml:"conn_max_idle_time"`
		ConnMaxLifetime *string `toml:"conn_max_lifetime" yaml:"conn_max_lifetime"`
		QueryTimeout    *string `toml:"query_timeout" yaml:"query_timeout"`
	} `toml:"database" yaml:"database"`
	AI struct {
		Provider    *string  `toml:"provider" yaml:"provider"`
		BaseURL     *string  `toml:"base_url" yaml:"base_url"`
		APIKey      *string  `toml:"api_key" yaml:"api_key"`
		Model       *string  `toml:"model" yaml:"model"`
		Temperature *float64 `toml:"temperature" yaml:"temperature"`
		MaxTokens   *int     `toml:"max_tokens" yaml:"max_tokens"`
		Timeout     *string  `toml:"timeout" yaml:"timeout"`
	} `toml:"ai" yaml:"ai"`
	History struct {
		Path             *string `toml:"path" yaml:"path"`
		MaxEntries       *int    `toml:"max_entries" yaml:"max_entries"`
		Backend          *string `toml:"backend" yaml:"backend"`
		ObjectKey        *string `toml:"object_key" yaml:"object_key"`
		AutosaveInterval *string `toml:"autosave_interval" yaml:"autosave_interval"`
	} `toml:"history" yaml:"history"`
	Schema struct {
		SampleRows *int `toml:"sample_rows" yaml:"sample_rows"`
	} `toml:"schema" yaml:"schema"`
	ObjectStore struct {
		Endpoint         *string `toml:"endpoint" yaml:"endpoint"`
		Region           *string `toml:"region" yaml:"region"`
		Bucket           *string `toml:"bucket" yaml:"bucket"`
		AccessKeyID      *string `toml:"access_key" yaml:"access_key"`
		SecretAccessKey  *string `toml:"secret_key" yaml:"secret_key"`
		UseSSL           *bool   `toml:"use_ssl" yaml:"use_ssl"`
		Prefix           *string `toml:"prefix" yaml:"prefix"`
		AutoCreateBucket *bool   `toml:"auto_create_bucket" yaml:"auto_create_bucket"`
	} `toml:"object_store" yaml:"object_store"`
	Observability struct {
		LogLevel *string `toml:"log_level" yaml:"log_level"`
		LogJSON  *bool   `toml:"log_json" yaml:"log_json"`
	} `toml:"observability" yaml:"observability"`
	Auth struct {
		Required   *bool   `toml:"required" yaml:"required"`
		StaticKeys *string `toml:"static_keys" yaml:"static_keys"`
	} `toml:"auth" yaml:"auth"`
}

func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var file fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	return file.apply(cfg)
}

func (f fileConfig) apply(cfg *Config) error {
	setString(f.Service.Name, &cfg.Service.Name)

	setString(f.HTTP.Address, &cfg.HTTP.Address)
	if err := setDuration("http.read_timeout", f.HTTP.ReadTimeout, &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := setDuration("http.write_timeout", f.HTTP.WriteTimeout, &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := setDuration("http.idle_timeout", f.HTTP.IdleTimeout, &cfg.HTTP.IdleTimeout); err != nil {
		return err
	}

	setString(f.Database.Driver, &cfg.Database.Driver)
	setString(f.Database.DSN, &cfg.Database.DSN)
	setString(f.Database.Host, &cfg.Database.Host)
	setValue(f.Database.Port, &cfg.Database.Port)
	setString(f.Database.User, &cfg.Database.User)
	setString(f.Database.Password, &cfg.Database.Password)
	setString(f.Database.Name, &cfg.Database.Name)
	setValue(f.Database.MaxOpenConns, &cfg.Database.MaxOpenConns)
	setValue(f.Database.MaxIdleConns, &cfg.Database.MaxIdleConns)
	if err := setDuration("database.conn_max_idle_time", f.Database.ConnMaxIdleTime, &cfg.Database.ConnMaxIdleTime); err != nil {
		return err
	}
	if err := setDuration("database.conn_max_lifetime", f.Database.ConnMaxLifetime, &cfg.Database.ConnMaxLifetime); err != nil {
		return err
	}
	if err := setDuration("database.query_timeout", f.Database.QueryTimeout, &cfg.Database.QueryTimeout); err != nil {
		return err
	}

	setString(f.AI.Provider, &cfg.AI.Provider)
	setString(f.AI.BaseURL, &cfg.AI.BaseURL)
	setString(f.AI.APIKey, &cfg.AI.APIKey)
	setString(f.AI.Model, &cfg.AI.Model)
	setValue(f.AI.Temperature, &cfg.AI.Temperature)
	setValue(f.AI.MaxTokens, &cfg.AI.MaxTokens)
	if err := setDuration("ai.timeout", f.AI.Timeout, &cfg.AI.Timeout); err != nil {
		return err
	}

	setString(f.History.Path, &cfg.History.Path)
	setValue(f.History.MaxEntries, &cfg.History.MaxEntries)
	setString(f.History.Backend, &cfg.History.Backend)
	setString(f.History.ObjectKey, &cfg.History.ObjectKey)
	if err := setDuration("history.autosave_interval", f.History.AutosaveInterval, &cfg.History.AutosaveInterval); err != nil {
		return err
	}

	setValue(f.Schema.SampleRows, &cfg.Schema.SampleRows)

	setString(f.ObjectStore.Endpoint, &cfg.ObjectStore.Endpoint)
	setString(f.ObjectStore.Region, &cfg.ObjectStore.Region)
	setString(f.ObjectStore.Bucket, &cfg.ObjectStore.Bucket)
	setString(f.ObjectStore.AccessKeyID, &cfg.ObjectStore.AccessKeyID)
	setString(f.ObjectStore.SecretAccessKey, &cfg.ObjectStore.SecretAccessKey)
	setValue(f.ObjectStore.UseSSL, &cfg.ObjectStore.UseSSL)
	setString(f.ObjectStore.Prefix, &cfg.ObjectStore.Prefix)
	setValue(f.ObjectStore.AutoCreateBucket, &cfg.ObjectStore.AutoCreateBucket)

	if f.Observability.LogLevel != nil {
		level, err := parseLogLevel(*f.Observability.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid observability.log_level: %w", err)
		}
		cfg.Observability.LogLevel = level
	}
	setValue(f.Observability.LogJSON, &cfg.Observability.LogJSON)

	setValue(f.Auth.Required, &cfg.Auth.Required)
	setString(f.Auth.StaticKeys, &cfg.Auth.StaticKeys)
	return nil
}

func setString(src *string, dst *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setValue[T any](src *T, dst *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(key string, src *string, dst *time.Duration) error {
	if src == nil {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(*src))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}
