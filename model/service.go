package model

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/feedrank/core"
)

// ErrModelNotTrained 表示既无常驻模型也无持久化模型。
// 这是服务路径上唯一的硬失败：调用方必须先检查 IsModelTrained；
// 降级决策属于编排层，模型层不做静默回退。
var ErrModelNotTrained = core.NewDomainError(core.ModuleModel, core.ErrorCodeNotTrained, "model: no trained model available")

// snapshot 是一份完整的模型状态，整体替换，绝不原地修改。
// 读方要么看到旧模型要么看到新模型，不会看到半更新状态。
type snapshot struct {
	net          *FeedDNN
	trainedAt    time.Time
	exampleCount int
}

// Service 持有当前激活的排序模型。
//
// 生命周期：
//   - 全进程只有一个激活模型，训练成功后原子替换（replace-on-success）
//   - 进程内无常驻模型时按需从持久化存储懒加载
//   - 可注入到任意使用方，测试可替换为 fake（不依赖全局单例）
type Service struct {
	path string
	log  zerolog.Logger

	current atomic.Pointer[snapshot]
	loadMu  sync.Mutex // 懒加载去重，避免并发重复读盘
}

// ServiceOption 配置 Service。
type ServiceOption func(*Service)

// WithLogger 设置日志。
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// NewService 创建模型服务；path 是持久化文件路径。
func NewService(path string, opts ...ServiceOption) *Service {
	s := &Service{
		path: path,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict 把单个用户向量与每个候选帖子向量拼接后打分，结果与输入顺序一致。
// 无可用模型时返回 ErrModelNotTrained。
func (s *Service) Predict(ctx context.Context, userVec []float64, postVecs [][]float64) ([]float64, error) {
	snap := s.resident(ctx)
	if snap == nil {
		return nil, ErrModelNotTrained
	}

	inputs := make([][]float64, len(postVecs))
	for i, postVec := range postVecs {
		input := make([]float64, 0, len(userVec)+len(postVec))
		input = append(input, userVec...)
		input = append(input, postVec...)
		inputs[i] = input
	}
	return snap.net.PredictBatch(inputs), nil
}

// Train 从零训练一个新模型，持久化成功后原子替换当前模型。
// 阻塞且 CPU 密集：必须在请求路径之外（后台任务）执行。
func (s *Service) Train(ctx context.Context, examples []Example, opts TrainOptions) (*Metrics, error) {
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}

	var rng *rand.Rand
	if opts.Seed != 0 {
		rng = rand.New(rand.NewSource(opts.Seed))
	}
	net := NewFeedDNN(DefaultLayers, rng)

	started := time.Now()
	metrics, err := net.Train(examples, opts)
	if err != nil {
		return nil, err
	}

	trainedAt := time.Now()
	if err := SaveFeedDNN(s.path, net, trainedAt, len(examples)); err != nil {
		return nil, err
	}

	s.current.Store(&snapshot{
		net:          net,
		trainedAt:    trainedAt,
		exampleCount: len(examples),
	})

	s.log.Info().
		Int("examples", len(examples)).
		Float64("train_loss", metrics.TrainLoss).
		Float64("val_loss", metrics.ValLoss).
		Dur("elapsed", time.Since(started)).
		Msg("model: trained and swapped")
	return metrics, nil
}

// IsModelTrained 返回是否存在可用模型（常驻或可从持久化存储加载）。
// 编排层以此决定走 ML 路径还是启发式路径。
func (s *Service) IsModelTrained(ctx context.Context) bool {
	return s.resident(ctx) != nil
}

// LastTrainedAt 返回当前模型的训练时间；无模型时为零值。
func (s *Service) LastTrainedAt() time.Time {
	if snap := s.current.Load(); snap != nil {
		return snap.trainedAt
	}
	return time.Time{}
}

// TotalTrainingExamples 返回当前模型的训练样本总数。
func (s *Service) TotalTrainingExamples() int {
	if snap := s.current.Load(); snap != nil {
		return snap.exampleCount
	}
	return 0
}

// resident 返回常驻模型，必要时从持久化存储懒加载一次。
func (s *Service) resident(ctx context.Context) *snapshot {
	if snap := s.current.Load(); snap != nil {
		return snap
	}
	if s.path == "" {
		return nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	// double-check：等锁期间可能已被其他 goroutine 加载或训练替换
	if snap := s.current.Load(); snap != nil {
		return snap
	}

	net, trainedAt, exampleCount, err := LoadFeedDNN(s.path)
	if err != nil {
		return nil
	}
	snap := &snapshot{net: net, trainedAt: trainedAt, exampleCount: exampleCount}
	s.current.Store(snap)
	s.log.Info().Time("trained_at", trainedAt).Int("examples", exampleCount).Msg("model: loaded from disk")
	return snap
}
