package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".apiask/config.yaml"

type EmbeddingConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	BatchSize      int    `yaml:"batch_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type CompletionConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"` // sqlite or postgres
	DSN        string `yaml:"dsn"`
	Dimensions int    `yaml:"dimensions"` // pgvector column width
}

type BlobConfig struct {
	Provider       string `yaml:"provider"` // local or s3
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
	LocalDir       string `yaml:"local_dir"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Store      StoreConfig      `yaml:"store"`
	Blob       BlobConfig       `yaml:"blob"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 10
	}
	if c.Embedding.TimeoutSeconds == 0 {
		c.Embedding.TimeoutSeconds = 30
	}
	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = "https://api.openai.com/v1"
	}
	if c.Completion.Model == "" {
		c.Completion.Model = "gpt-4o"
	}
	if c.Completion.MaxTokens == 0 {
		c.Completion.MaxTokens = 512
	}
	if c.Completion.Temperature == 0 {
		c.Completion.Temperature = 0.2
	}
	if c.Completion.TimeoutSeconds == 0 {
		c.Completion.TimeoutSeconds = 120
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Dimensions == 0 {
		c.Store.Dimensions = 1536
	}
	if c.Blob.Provider == "" {
		c.Blob.Provider = "local"
	}
	if c.Blob.Region == "" {
		c.Blob.Region = "us-east-1"
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	switch c.Blob.Provider {
	case "local", "s3":
	default:
		return fmt.Errorf("blob.provider must be local or s3, got %q", c.Blob.Provider)
	}
	if c.Store.Driver == "postgres" && strings.TrimSpace(c.Store.DSN) == "" {
		return errors.New("store.dsn cannot be empty with the postgres driver")
	}
	if c.Blob.Provider == "s3" && strings.TrimSpace(c.Blob.Bucket) == "" {
		return errors.New("blob.bucket cannot be empty with the s3 provider")
	}
	return nil
}

// ValidateAsk enforces what answering a question requires: both remote
// capabilities. Uploading deliberately does not require them.
func (c *Config) ValidateAsk() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Embedding.APIKey) == "" {
		return errors.New("embedding.api_key cannot be empty")
	}
	if strings.TrimSpace(c.Completion.APIKey) == "" {
		return errors.New("completion.api_key cannot be empty")
	}
	return nil
}

func applyEnvOverrides(c *Config) {
	setString(&c.Embedding.APIKey, "APIASK_EMBEDDING_API_KEY")
	setString(&c.Embedding.BaseURL, "APIASK_EMBEDDING_BASE_URL")
	setString(&c.Embedding.Model, "APIASK_EMBEDDING_MODEL")
	setInt(&c.Embedding.BatchSize, "APIASK_EMBEDDING_BATCH_SIZE")
	setString(&c.Completion.APIKey, "APIASK_COMPLETION_API_KEY")
	setString(&c.Completion.BaseURL, "APIASK_COMPLETION_BASE_URL")
	setString(&c.Completion.Model, "APIASK_COMPLETION_MODEL")
	setInt(&c.Completion.MaxTokens, "APIASK_COMPLETION_MAX_TOKENS")
	setFloat(&c.Completion.Temperature, "APIASK_COMPLETION_TEMPERATURE")
	setString(&c.Store.Driver, "APIASK_STORE_DRIVER")
	setString(&c.Store.DSN, "APIASK_STORE_DSN")
	setString(&c.Blob.Provider, "APIASK_BLOB_PROVIDER")
	setString(&c.Blob.Bucket, "APIASK_BLOB_BUCKET")
	setString(&c.Blob.Region, "APIASK_BLOB_REGION")
	setString(&c.Blob.Endpoint, "APIASK_BLOB_ENDPOINT")
	setString(&c.Blob.LocalDir, "APIASK_BLOB_LOCAL_DIR")
	setInt(&c.Retrieval.TopK, "APIASK_RETRIEVAL_TOP_K")
	setString(&c.Server.Host, "APIASK_SERVER_HOST")
	setInt(&c.Server.Port, "APIASK_SERVER_PORT")
	setString(&c.Log.Level, "APIASK_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}
