// Package config provides configuration loading for signalbankd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the daemon.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Memory    MemoryConfig    `koanf:"memory"`
	Storage   StorageConfig   `koanf:"storage"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Learning  LearningConfig  `koanf:"learning"`
}

// ServerConfig holds the HTTP listener settings for health and metrics.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds zap logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MemoryConfig holds settings for the memory subsystem.
type MemoryConfig struct {
	// MaxHistory bounds the working memory interaction buffer.
	MaxHistory int `koanf:"max_history"`
	// SimilarityLimit caps experiences returned from episodic retrieval.
	SimilarityLimit int `koanf:"similarity_limit"`
	// PatternLimit caps patterns returned during context assembly.
	PatternLimit int `koanf:"pattern_limit"`
	// PerStoreTimeout bounds each store lookup during context assembly.
	PerStoreTimeout time.Duration `koanf:"per_store_timeout"`

	ChromemPath string `koanf:"chromem_path"`
	Collection  string `koanf:"collection"`

	// Retry settings for background durable writes.
	RecordMaxRetries     int           `koanf:"record_max_retries"`
	RecordInitialBackoff time.Duration `koanf:"record_initial_backoff"`
	RecordMaxBackoff     time.Duration `koanf:"record_max_backoff"`
}

// StorageConfig holds settings for the relational store.
type StorageConfig struct {
	// Driver selects the repository backend: "sqlite" or "memory".
	Driver     string `koanf:"driver"`
	SQLitePath string `koanf:"sqlite_path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: "openai" or "mock".
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	Dimension int    `koanf:"dimension"`
	APIKey    string `koanf:"api_key"`
}

// LearningConfig holds reinforcement learning and analysis settings.
type LearningConfig struct {
	LearningRate       float64 `koanf:"learning_rate"`
	DiscountFactor     float64 `koanf:"discount_factor"`
	ExplorationRate    float64 `koanf:"exploration_rate"`
	MinExplorationRate float64 `koanf:"min_exploration_rate"`
	ExplorationDecay   float64 `koanf:"exploration_decay"`

	// RewardScale divides raw profit/loss before clamping to [-1, 1].
	RewardScale float64 `koanf:"reward_scale"`

	// Pattern detection thresholds.
	MinSampleSize        int     `koanf:"min_sample_size"`
	MinConfidence        float64 `koanf:"min_confidence_threshold"`
	SampleSizeSaturation int     `koanf:"sample_size_saturation"`

	// Learning cycle scheduling.
	CycleInterval time.Duration `koanf:"cycle_interval"`
	CycleTimeout  time.Duration `koanf:"cycle_timeout"`
	// RecentWindow bounds the outcomes examined by each cycle.
	RecentWindow time.Duration `koanf:"recent_window"`
}

// ApplyDefaults sets default values for missing configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 9180
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Memory.MaxHistory == 0 {
		c.Memory.MaxHistory = 10
	}
	if c.Memory.SimilarityLimit == 0 {
		c.Memory.SimilarityLimit = 5
	}
	if c.Memory.PatternLimit == 0 {
		c.Memory.PatternLimit = 3
	}
	if c.Memory.PerStoreTimeout == 0 {
		c.Memory.PerStoreTimeout = 2 * time.Second
	}
	if c.Memory.ChromemPath == "" {
		c.Memory.ChromemPath = "~/.config/signalbank/vectorstore"
	}
	if c.Memory.Collection == "" {
		c.Memory.Collection = "experiences"
	}
	if c.Memory.RecordMaxRetries == 0 {
		c.Memory.RecordMaxRetries = 3
	}
	if c.Memory.RecordInitialBackoff == 0 {
		c.Memory.RecordInitialBackoff = time.Second
	}
	if c.Memory.RecordMaxBackoff == 0 {
		c.Memory.RecordMaxBackoff = 30 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "~/.config/signalbank/signalbank.db"
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = defaultDimension(c.Embedding.Provider, c.Embedding.Model)
	}

	if c.Learning.LearningRate == 0 {
		c.Learning.LearningRate = 0.1
	}
	if c.Learning.DiscountFactor == 0 {
		c.Learning.DiscountFactor = 0.9
	}
	if c.Learning.ExplorationRate == 0 {
		c.Learning.ExplorationRate = 0.2
	}
	if c.Learning.MinExplorationRate == 0 {
		c.Learning.MinExplorationRate = 0.01
	}
	if c.Learning.ExplorationDecay == 0 {
		c.Learning.ExplorationDecay = 0.995
	}
	if c.Learning.RewardScale == 0 {
		c.Learning.RewardScale = 100.0
	}
	if c.Learning.MinSampleSize == 0 {
		c.Learning.MinSampleSize = 5
	}
	if c.Learning.MinConfidence == 0 {
		c.Learning.MinConfidence = 0.7
	}
	if c.Learning.SampleSizeSaturation == 0 {
		c.Learning.SampleSizeSaturation = 10
	}
	if c.Learning.CycleInterval == 0 {
		c.Learning.CycleInterval = time.Hour
	}
	if c.Learning.CycleTimeout == 0 {
		c.Learning.CycleTimeout = 2 * time.Minute
	}
	if c.Learning.RecentWindow == 0 {
		c.Learning.RecentWindow = 24 * time.Hour
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Memory.MaxHistory < 1 {
		return fmt.Errorf("memory.max_history must be positive, got %d", c.Memory.MaxHistory)
	}
	if c.Memory.SimilarityLimit < 1 {
		return fmt.Errorf("memory.similarity_limit must be positive, got %d", c.Memory.SimilarityLimit)
	}
	if c.Memory.PerStoreTimeout <= 0 {
		return fmt.Errorf("memory.per_store_timeout must be positive, got %s", c.Memory.PerStoreTimeout)
	}

	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite or memory, got %q", c.Storage.Driver)
	}

	switch c.Embedding.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("embedding.provider must be openai or mock, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}

	l := c.Learning
	if l.LearningRate <= 0 || l.LearningRate > 1 {
		return fmt.Errorf("learning.learning_rate must be in (0, 1], got %g", l.LearningRate)
	}
	if l.DiscountFactor < 0 || l.DiscountFactor > 1 {
		return fmt.Errorf("learning.discount_factor must be in [0, 1], got %g", l.DiscountFactor)
	}
	if l.ExplorationRate < 0 || l.ExplorationRate > 1 {
		return fmt.Errorf("learning.exploration_rate must be in [0, 1], got %g", l.ExplorationRate)
	}
	if l.MinExplorationRate < 0 || l.MinExplorationRate > l.ExplorationRate {
		return fmt.Errorf("learning.min_exploration_rate must be in [0, exploration_rate], got %g", l.MinExplorationRate)
	}
	if l.ExplorationDecay <= 0 || l.ExplorationDecay > 1 {
		return fmt.Errorf("learning.exploration_decay must be in (0, 1], got %g", l.ExplorationDecay)
	}
	if l.RewardScale <= 0 {
		return fmt.Errorf("learning.reward_scale must be positive, got %g", l.RewardScale)
	}
	if l.MinConfidence < 0 || l.MinConfidence > 1 {
		return fmt.Errorf("learning.min_confidence_threshold must be in [0, 1], got %g", l.MinConfidence)
	}
	if l.CycleInterval <= 0 {
		return fmt.Errorf("learning.cycle_interval must be positive, got %s", l.CycleInterval)
	}

	return nil
}

func defaultDimension(provider, model string) int {
	if provider == "mock" {
		return 384
	}
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}
