package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/reillywatson/modelresolver/envvar"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://github.com/reillywatson/modelresolver/config.schema.json"

// Load reads, validates, and returns the configuration at path, with
// defaults and environment overrides applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw YAML against the embedded schema and decodes it.
func Parse(data []byte) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	schema, err := jsonschema.CompileString(schemaURL, schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// FromEnv returns the default configuration with environment overrides.
func FromEnv() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(envvar.Backend); v != "" {
		cfg.Storage.Backend = Backend(v)
	}
	if v := os.Getenv(envvar.Bucket); v != "" {
		cfg.Resolver.BucketName = v
	}
	if v := os.Getenv(envvar.PublicBaseURL); v != "" {
		cfg.Storage.PublicBaseURL = v
	}
	if v := os.Getenv(envvar.AccessKey); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv(envvar.SecretKey); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv(envvar.RedisAddr); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv(envvar.RedisPassword); v != "" {
		cfg.Cache.RedisPassword = v
	}
}
