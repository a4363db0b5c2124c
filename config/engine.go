package config

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
	"github.com/rushteam/feedrank/feedstore"
	"github.com/rushteam/feedrank/metrics"
	"github.com/rushteam/feedrank/model"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/recommend"
	"github.com/rushteam/feedrank/rerank"
	"github.com/rushteam/feedrank/store"
	"github.com/rushteam/feedrank/trainer"
	"github.com/rushteam/feedrank/vocab"
)

// Engine 是装配完成的推荐引擎：服务入口 + 训练调度 + 底层资源句柄。
type Engine struct {
	Recommender *recommend.Service
	Scheduler   *trainer.Scheduler
	Features    *feature.Builder
	Metrics     *metrics.Metrics

	feed  core.FeedStore
	cache core.Store
}

// NewEngine 按配置装配引擎。调用方负责 Scheduler.Start 与 Close。
func NewEngine(ctx context.Context, cfg *Config, log zerolog.Logger, m *metrics.Metrics) (*Engine, error) {
	feed, err := buildFeedStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cache, err := buildCacheStore(cfg)
	if err != nil {
		feed.Close()
		return nil, err
	}

	vocabs := vocab.NewBuilder(feed,
		vocab.WithCache(cache),
		vocab.WithLogger(log),
	)
	features := feature.NewBuilder(feed, vocabs,
		feature.WithCache(cache),
		feature.WithLogger(log),
	)
	modelSvc := model.NewService(cfg.Model.Path, model.WithLogger(log))

	rerankChain, err := buildRerank(cfg, feed)
	if err != nil {
		feed.Close()
		cache.Close()
		return nil, err
	}

	recommendOpts := append([]recommend.ServiceOption{
		recommend.WithCache(cache),
		recommend.WithLogger(log),
		recommend.WithMetrics(m),
	}, recommendOptions(cfg)...)
	recommender := recommend.NewService(feed, features, modelSvc, rerankChain, recommendOpts...)

	generator := trainer.NewGenerator(feed, features, log)
	trainPipeline := trainer.NewPipeline(vocabs, generator, modelSvc,
		trainer.WithTrainOptions(trainOptions(cfg)),
		trainer.WithLogger(log),
		trainer.WithMetrics(m),
	)
	scheduler := trainer.NewScheduler(trainPipeline, cfg.Trainer.Interval, log)

	return &Engine{
		Recommender: recommender,
		Scheduler:   scheduler,
		Features:    features,
		Metrics:     m,
		feed:        feed,
		cache:       cache,
	}, nil
}

// Close 释放存储资源。应在 Scheduler.Stop 之后调用。
func (e *Engine) Close() error {
	cacheErr := e.cache.Close()
	if err := e.feed.Close(); err != nil {
		return err
	}
	return cacheErr
}

func buildFeedStore(ctx context.Context, cfg *Config) (core.FeedStore, error) {
	switch cfg.Feed.Backend {
	case "memory":
		return feedstore.NewMemoryStore(), nil
	case "sqlite":
		fs, err := feedstore.NewSQLiteStore(cfg.Feed.SQLite.Path)
		if err != nil {
			return nil, err
		}
		if cfg.Feed.SQLite.Migrate {
			if err := fs.Migrate(ctx); err != nil {
				fs.Close()
				return nil, err
			}
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("config: unknown feed backend %q", cfg.Feed.Backend)
	}
}

func buildCacheStore(cfg *Config) (core.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
	default:
		return nil, fmt.Errorf("config: unknown store backend %q", cfg.Store.Backend)
	}
}

func buildRerank(cfg *Config, feed core.FeedStore) (*pipeline.Pipeline, error) {
	nodes := []pipeline.Node{
		&rerank.AuthorDiversity{Cap: cfg.Rerank.AuthorCap},
	}
	if len(cfg.Rerank.Rules) > 0 {
		rules := make([]rerank.Rule, 0, len(cfg.Rerank.Rules))
		for _, r := range cfg.Rerank.Rules {
			action := rerank.ActionSuppress
			if r.Action == "boost" {
				action = rerank.ActionBoost
			}
			rules = append(rules, rerank.Rule{Expr: r.Expr, Action: action, Factor: r.Factor})
		}
		ruleNode, err := rerank.NewRuleNode(rules)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, ruleNode)
	}
	nodes = append(nodes, &rerank.Exploration{
		Feed:  feed,
		Ratio: cfg.Rerank.ExplorationRatio,
	})
	return &pipeline.Pipeline{Nodes: nodes}, nil
}

func recommendOptions(cfg *Config) []recommend.ServiceOption {
	var opts []recommend.ServiceOption
	if cfg.Recommend.PoolSize > 0 {
		opts = append(opts, recommend.WithPoolSize(cfg.Recommend.PoolSize))
	}
	if cfg.Recommend.PageCacheTTL > 0 {
		opts = append(opts, recommend.WithPageCacheTTL(cfg.Recommend.PageCacheTTL))
	}
	return opts
}

func trainOptions(cfg *Config) model.TrainOptions {
	return model.TrainOptions{
		LearningRate:    cfg.Model.LearningRate,
		Epochs:          cfg.Model.Epochs,
		BatchSize:       cfg.Model.BatchSize,
		ValidationSplit: cfg.Model.ValidationSplit,
	}
}
