package trainer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/feedrank/metrics"
	"github.com/rushteam/feedrank/model"
	"github.com/rushteam/feedrank/vocab"
)

// MinTrainingExamples 是训练的最低样本数：低于该数训练只会拟合噪声。
const MinTrainingExamples = 10

// Result 是一次训练流水线运行的结果。
// 样本不足是非致命结果（Success=false），不是错误：旧模型保持激活。
type Result struct {
	Success      bool           `json:"success"`
	ExampleCount int            `json:"example_count"`
	Metrics      *model.Metrics `json:"metrics,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

// ModelTrainer 是流水线依赖的训练入口（测试可替换为 fake 以断言是否被调用）。
type ModelTrainer interface {
	Train(ctx context.Context, examples []model.Example, opts model.TrainOptions) (*model.Metrics, error)
}

// Pipeline 按顺序执行训练的三个阶段，任一阶段失败即中止、不替换模型：
//  1. 从零重建两个词表
//  2. 生成训练样本（不足 MinTrainingExamples 时报告不足并中止）
//  3. 训练排序模型并持久化
type Pipeline struct {
	vocabs    *vocab.Builder
	generator *Generator
	trainer   ModelTrainer
	trainOpts model.TrainOptions
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// PipelineOption 配置 Pipeline。
type PipelineOption func(*Pipeline)

// WithTrainOptions 设置训练超参。
func WithTrainOptions(opts model.TrainOptions) PipelineOption {
	return func(p *Pipeline) { p.trainOpts = opts }
}

// WithLogger 设置日志。
func WithLogger(log zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

// WithMetrics 设置指标。
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(vocabs *vocab.Builder, generator *Generator, trainer ModelTrainer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		vocabs:    vocabs,
		generator: generator,
		trainer:   trainer,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run 执行一次完整的训练流水线。
// 幂等：可安全重复执行；失败时上一个成功的模型继续服务。
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	epoch, err := p.vocabs.RebuildAll(ctx)
	if err != nil {
		p.metrics.ObserveTrainingRun("error", time.Since(started), 0)
		return nil, err
	}

	examples, err := p.generator.Generate(ctx)
	if err != nil {
		p.metrics.ObserveTrainingRun("error", time.Since(started), 0)
		return nil, err
	}

	if len(examples) < MinTrainingExamples {
		p.log.Warn().
			Int("examples", len(examples)).
			Int("min", MinTrainingExamples).
			Msg("trainer: insufficient examples, skipping training")
		p.metrics.ObserveTrainingRun("insufficient_data", time.Since(started), len(examples))
		return &Result{
			Success:      false,
			ExampleCount: len(examples),
			Reason:       "insufficient training examples",
		}, nil
	}

	trainMetrics, err := p.trainer.Train(ctx, examples, p.trainOpts)
	if err != nil {
		p.metrics.ObserveTrainingRun("error", time.Since(started), len(examples))
		return nil, err
	}

	p.metrics.ObserveTrainingRun("success", time.Since(started), len(examples))
	p.log.Info().
		Int64("vocab_epoch", epoch).
		Int("examples", len(examples)).
		Dur("elapsed", time.Since(started)).
		Msg("trainer: pipeline completed")

	return &Result{
		Success:      true,
		ExampleCount: len(examples),
		Metrics:      trainMetrics,
	}, nil
}
