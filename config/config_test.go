package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedrank.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: redis
  redis:
    addr: redis.internal:6379
    db: 3
feed:
  backend: sqlite
  sqlite:
    path: /var/lib/feedrank/feed.db
model:
  path: /var/lib/feedrank/dnn.json
  learning_rate: 0.05
  epochs: 20
trainer:
  interval: 2h
recommend:
  pool_size: 100
  page_cache_ttl: 300
rerank:
  author_cap: 3
  exploration_ratio: 0.2
  rules:
    - expr: 'item.author_id == 666'
      action: suppress
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.Redis.Addr != "redis.internal:6379" || cfg.Store.Redis.DB != 3 {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Feed.Backend != "sqlite" || cfg.Feed.SQLite.Path != "/var/lib/feedrank/feed.db" {
		t.Errorf("feed = %+v", cfg.Feed)
	}
	if cfg.Model.LearningRate != 0.05 || cfg.Model.Epochs != 20 {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Trainer.Interval != 2*time.Hour {
		t.Errorf("interval = %v, want 2h", cfg.Trainer.Interval)
	}
	if cfg.Recommend.PoolSize != 100 || cfg.Recommend.PageCacheTTL != 300 {
		t.Errorf("recommend = %+v", cfg.Recommend)
	}
	if cfg.Rerank.AuthorCap != 3 || cfg.Rerank.ExplorationRatio != 0.2 || len(cfg.Rerank.Rules) != 1 {
		t.Errorf("rerank = %+v", cfg.Rerank)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "memory" || cfg.Feed.Backend != "memory" {
		t.Errorf("backends = (%s, %s), want memory defaults", cfg.Store.Backend, cfg.Feed.Backend)
	}
	if cfg.Trainer.Interval != 6*time.Hour {
		t.Errorf("interval = %v, want 6h default", cfg.Trainer.Interval)
	}
	if cfg.Rerank.AuthorCap != 2 || cfg.Rerank.ExplorationRatio != 0.1 {
		t.Errorf("rerank defaults = %+v", cfg.Rerank)
	}
	if cfg.Model.Path == "" {
		t.Error("model path default missing")
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	if _, err := Load(writeConfig(t, "store:\n  backend: etcd\n")); err == nil {
		t.Error("expected error for unknown store backend")
	}
	if _, err := Load(writeConfig(t, "feed:\n  backend: mysql\n")); err == nil {
		t.Error("expected error for unknown feed backend")
	}
	if _, err := Load(writeConfig(t, "rerank:\n  rules:\n    - expr: 'true'\n      action: explode\n")); err == nil {
		t.Error("expected error for unknown rule action")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
