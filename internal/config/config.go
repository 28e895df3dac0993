// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // dedup cache entry lifetime
}

type APIConfig struct {
	Port             int           `yaml:"port"`
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	AppendRateLimit  int           `yaml:"append_rate_limit"` // append calls per job per window
	AppendRateWindow time.Duration `yaml:"append_rate_window"`
}

type QueueConfig struct {
	ClaimBatchSize    int           `yaml:"claim_batch_size"`
	Workers           int           `yaml:"workers"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

type AIConfig struct {
	OpenAIKey          string `yaml:"openai_key"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDims      int    `yaml:"embedding_dims"`
	EmbeddingMaxTokens int    `yaml:"embedding_max_tokens"`
	GeminiKey          string `yaml:"gemini_key"`
	GeminiURL          string `yaml:"gemini_url"`
	CaptionModel       string `yaml:"caption_model"`
	VectorizerURL      string `yaml:"vectorizer_url"`
	VectorizerKey      string `yaml:"vectorizer_key"`
	VectorizerModel    string `yaml:"vectorizer_model"`
	VectorizerDims     int    `yaml:"vectorizer_dims"`
	ConcurrentLimit    int    `yaml:"concurrent_limit"` // max concurrent calls per provider
}

type VectorConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	APIKey          string `yaml:"api_key"`
	UseTLS          bool   `yaml:"use_tls"`
	TextCollection  string `yaml:"text_collection"`
	ImageCollection string `yaml:"image_collection"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`
	Queue    QueueConfig    `yaml:"queue"`
	AI       AIConfig       `yaml:"ai"`
	Vector   VectorConfig   `yaml:"vector"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.TokenTTL <= 0 {
		cfg.API.TokenTTL = 30 * time.Minute
	}
	if cfg.API.AppendRateLimit <= 0 {
		cfg.API.AppendRateLimit = 30
	}
	if cfg.API.AppendRateWindow <= 0 {
		cfg.API.AppendRateWindow = time.Minute
	}
	if cfg.Queue.ClaimBatchSize <= 0 {
		cfg.Queue.ClaimBatchSize = 20
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 8
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 2 * time.Second
	}
	if cfg.Queue.StaleAfter <= 0 {
		cfg.Queue.StaleAfter = 15 * time.Minute
	}
	if cfg.Queue.ReconcileInterval <= 0 {
		cfg.Queue.ReconcileInterval = time.Minute
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.AI.EmbeddingDims <= 0 {
		cfg.AI.EmbeddingDims = 1536
	}
	if cfg.AI.EmbeddingMaxTokens <= 0 {
		cfg.AI.EmbeddingMaxTokens = 8000
	}
	if cfg.AI.CaptionModel == "" {
		cfg.AI.CaptionModel = "gemini-2.0-flash"
	}
	if cfg.AI.VectorizerModel == "" {
		cfg.AI.VectorizerModel = "clip-vit-b-32"
	}
	if cfg.AI.VectorizerDims <= 0 {
		cfg.AI.VectorizerDims = 512
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.Vector.Port <= 0 {
		cfg.Vector.Port = 6334
	}
	if cfg.Vector.TextCollection == "" {
		cfg.Vector.TextCollection = "product_text"
	}
	if cfg.Vector.ImageCollection == "" {
		cfg.Vector.ImageCollection = "product_image"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Vector.Host == "" {
		return nil, errors.New("vector.host is required")
	}
	if cfg.API.JWTSecret == "" && !dev {
		return nil, errors.New("api.jwt_secret is required outside dev mode")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
