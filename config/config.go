// Package config 提供引擎的 YAML 配置与装配工厂。
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是引擎的完整配置。零值字段由 applyDefaults 补齐。
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Feed      FeedConfig      `yaml:"feed"`
	Model     ModelConfig     `yaml:"model"`
	Trainer   TrainerConfig   `yaml:"trainer"`
	Recommend RecommendConfig `yaml:"recommend"`
	Rerank    RerankConfig    `yaml:"rerank"`
}

// StoreConfig 选择缓存后端。
type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory / redis
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig 是 Redis 连接参数。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FeedConfig 选择关系数据后端。
type FeedConfig struct {
	Backend string `yaml:"backend"` // sqlite / memory
	SQLite  struct {
		Path    string `yaml:"path"`
		Migrate bool   `yaml:"migrate"`
	} `yaml:"sqlite"`
}

// ModelConfig 是模型持久化路径与训练超参。
type ModelConfig struct {
	Path            string  `yaml:"path"`
	LearningRate    float64 `yaml:"learning_rate"`
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	ValidationSplit float64 `yaml:"validation_split"`
}

// TrainerConfig 是训练调度参数。
type TrainerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// RecommendConfig 是编排层参数。
type RecommendConfig struct {
	PoolSize     int `yaml:"pool_size"`
	PageCacheTTL int `yaml:"page_cache_ttl"` // 秒
}

// RerankConfig 是重排链参数。
type RerankConfig struct {
	AuthorCap        int          `yaml:"author_cap"`
	ExplorationRatio float64      `yaml:"exploration_ratio"`
	Rules            []RuleConfig `yaml:"rules"`
}

// RuleConfig 是一条 CEL 业务规则。
type RuleConfig struct {
	Expr   string  `yaml:"expr"`
	Action string  `yaml:"action"` // suppress / boost
	Factor float64 `yaml:"factor"` // boost 的分数乘数
}

// Load 从 YAML 文件加载配置并补齐默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回全默认配置（内存后端，开箱即用）。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Feed.Backend == "" {
		c.Feed.Backend = "memory"
	}
	if c.Feed.SQLite.Path == "" {
		c.Feed.SQLite.Path = "data/feed.db"
	}
	if c.Model.Path == "" {
		c.Model.Path = "data/feed_dnn.json"
	}
	if c.Trainer.Interval <= 0 {
		c.Trainer.Interval = 6 * time.Hour
	}
	if c.Rerank.AuthorCap == 0 {
		c.Rerank.AuthorCap = 2
	}
	if c.Rerank.ExplorationRatio == 0 {
		c.Rerank.ExplorationRatio = 0.1
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Feed.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown feed backend %q", c.Feed.Backend)
	}
	for _, r := range c.Rerank.Rules {
		if r.Action != "suppress" && r.Action != "boost" {
			return fmt.Errorf("config: unknown rule action %q", r.Action)
		}
	}
	return nil
}
