// Package recommend 编排最终的推荐 feed：
// 按用户选择 ML/启发式打分，经多样性、规则、探索重排后分页返回。
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
	"github.com/rushteam/feedrank/metrics"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/utils"
)

// 编排参数。
const (
	// MLInteractionThreshold 点赞互动达到该数且模型已训练时走 ML 路径
	MLInteractionThreshold = 5

	// DefaultCandidatePoolSize 单次请求的候选池上限（约束请求成本）
	DefaultCandidatePoolSize = 200

	// HeuristicWindow 启发式路径只考虑最近多久的帖子
	HeuristicWindow = 7 * 24 * time.Hour

	// DefaultPageCacheTTL 结果页缓存过期时间（秒）
	DefaultPageCacheTTL = 10 * 60

	// DefaultPageLimit 默认分页大小
	DefaultPageLimit = 20
)

// ModelService 是编排层依赖的模型能力（测试可替换为 fake 以断言门控行为）。
type ModelService interface {
	// IsModelTrained 是否存在可用模型
	IsModelTrained(ctx context.Context) bool

	// Predict 对 (用户向量, 候选帖子向量集) 打分，结果与输入顺序一致
	Predict(ctx context.Context, userVec []float64, postVecs [][]float64) ([]float64, error)

	// LastTrainedAt 当前模型训练时间
	LastTrainedAt() time.Time

	// TotalTrainingExamples 当前模型训练样本总数
	TotalTrainingExamples() int
}

// RankedPost 是结果页中的一条帖子：完整记录 + 分数 + 来源。
type RankedPost struct {
	core.FeedPost
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

// FeedPage 是一页推荐结果。
type FeedPage struct {
	Posts []RankedPost `json:"posts"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// Status 是推荐系统对单个用户的只读状态。
type Status struct {
	ModelTrained          bool      `json:"model_trained"`
	LastTrainedAt         time.Time `json:"last_trained_at"`
	TotalTrainingExamples int       `json:"total_training_examples"`
	InteractionCount      int64     `json:"interaction_count"`
	MLEligible            bool      `json:"ml_eligible"`
}

// Service 是推荐编排器。
//
// 请求路径短平快、I/O 密集，绝不阻塞在模型训练上；
// 模型训练在 trainer 包的调度器里独立执行。
type Service struct {
	feed     core.FeedStore
	features *feature.Builder
	model    ModelService
	cache    core.Store
	rerank   *pipeline.Pipeline

	poolSize int
	pageTTL  int
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// ServiceOption 配置 Service。
type ServiceOption func(*Service)

// WithCache 设置结果页缓存。
func WithCache(cache core.Store) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithPoolSize 设置候选池上限。
func WithPoolSize(n int) ServiceOption {
	return func(s *Service) { s.poolSize = n }
}

// WithPageCacheTTL 设置结果页缓存 TTL（秒）。
func WithPageCacheTTL(ttl int) ServiceOption {
	return func(s *Service) { s.pageTTL = ttl }
}

// WithLogger 设置日志。
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithMetrics 设置指标。
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService 创建推荐编排器；rerank 是多样性/规则/探索的 Node 链。
func NewService(
	feed core.FeedStore,
	features *feature.Builder,
	model ModelService,
	rerank *pipeline.Pipeline,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		feed:     feed,
		features: features,
		model:    model,
		rerank:   rerank,
		poolSize: DefaultCandidatePoolSize,
		pageTTL:  DefaultPageCacheTTL,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRecommendedFeed 返回用户的一页推荐 feed。
//
// 流程：页缓存 → ML/启发式门控 → 打分排序 → 重排链（多样性/规则/探索）→
// 分页 → 水合 → 回填缓存。上游数据读失败向上传播（无数据即无正确推荐）。
func (s *Service) GetRecommendedFeed(ctx context.Context, userID int64, page, limit int) (*FeedPage, error) {
	started := time.Now()
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	cacheKey := fmt.Sprintf("rec:feed:%d:%d:%d", userID, page, limit)
	if cached := s.cachedPage(ctx, cacheKey); cached != nil {
		s.metrics.ObserveFeedRequest("cached", time.Since(started))
		return cached, nil
	}

	likeCount, err := s.feed.CountLikes(ctx, userID)
	if err != nil {
		return nil, err
	}
	userSkills, err := s.feed.GetUserSkills(ctx, userID)
	if err != nil {
		return nil, err
	}

	rctx := &core.RecommendContext{
		UserID:    userID,
		Skills:    userSkills,
		LikeCount: likeCount,
	}

	// 门控：互动不足的用户无论模型是否可用都走启发式（冷启动）
	var (
		items []*core.Item
		path  string
	)
	if likeCount >= MLInteractionThreshold && s.model.IsModelTrained(ctx) {
		path = core.SourceML
		items, err = s.rankByModel(ctx, userID)
	} else {
		path = core.SourceHeuristic
		rctx.PutLabel("cold_start", utils.NewLabel("true", "gate"))
		items, err = s.rankByHeuristic(ctx, rctx)
	}
	if err != nil {
		return nil, err
	}

	if s.rerank != nil {
		items, err = s.rerank.Run(ctx, rctx, items)
		if err != nil {
			return nil, err
		}
	}

	result, err := s.paginate(ctx, userID, items, page, limit)
	if err != nil {
		return nil, err
	}

	s.cachePage(ctx, cacheKey, result)
	s.metrics.ObserveFeedRequest(path, time.Since(started))
	return result, nil
}

// GetStatus 返回模型与该用户的门控状态。纯读取，无副作用。
func (s *Service) GetStatus(ctx context.Context, userID int64) (*Status, error) {
	likeCount, err := s.feed.CountLikes(ctx, userID)
	if err != nil {
		return nil, err
	}
	trained := s.model.IsModelTrained(ctx)
	return &Status{
		ModelTrained:          trained,
		LastTrainedAt:         s.model.LastTrainedAt(),
		TotalTrainingExamples: s.model.TotalTrainingExamples(),
		InteractionCount:      likeCount,
		MLEligible:            trained && likeCount >= MLInteractionThreshold,
	}, nil
}

// InvalidateUser 是缓存一致性钩子：用户互动或技能变更后由变更方调用。
func (s *Service) InvalidateUser(ctx context.Context, userID int64) {
	s.features.InvalidateUser(ctx, userID)
}

// InvalidatePost 是缓存一致性钩子：帖子或其互动计数变更后由变更方调用。
func (s *Service) InvalidatePost(ctx context.Context, postID int64) {
	s.features.InvalidatePost(ctx, postID)
}

// rankByModel 是 ML 路径：候选池向量化后交给模型打分。
func (s *Service) rankByModel(ctx context.Context, userID int64) ([]*core.Item, error) {
	userVec, err := s.features.BuildUserVector(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.feed.ListCandidatePosts(ctx, core.CandidateQuery{
		Limit:          s.poolSize,
		ExcludeAuthor:  userID,
		ExcludeLikedBy: userID,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	postIDs := make([]int64, len(candidates))
	for i, p := range candidates {
		postIDs[i] = p.ID
	}
	postVecs, err := s.features.BuildPostVectors(ctx, postIDs)
	if err != nil {
		return nil, err
	}

	scores, err := s.model.Predict(ctx, userVec, postVecs)
	if err != nil {
		return nil, err
	}

	items := make([]*core.Item, len(candidates))
	for i, p := range candidates {
		it := core.NewItem(p.ID, p.AuthorID)
		it.Score = scores[i]
		it.PutLabel(core.LabelSource, utils.NewLabel(core.SourceML, "rank"))
		items[i] = it
	}
	sortByScore(items)
	return items, nil
}

// paginate 切片、水合并保持排序顺序（绝不回退到存储顺序）。
func (s *Service) paginate(ctx context.Context, userID int64, items []*core.Item, page, limit int) (*FeedPage, error) {
	result := &FeedPage{
		Posts: []RankedPost{},
		Total: len(items),
		Page:  page,
		Limit: limit,
	}

	start := (page - 1) * limit
	if start >= len(items) {
		return result, nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	pageItems := items[start:end]

	pageIDs := make([]int64, len(pageItems))
	for i, it := range pageItems {
		pageIDs[i] = it.PostID
	}

	records, err := s.feed.GetPostsByIDs(ctx, pageIDs)
	if err != nil {
		return nil, err
	}
	likedSet, err := s.feed.GetLikedSet(ctx, userID, pageIDs)
	if err != nil {
		return nil, err
	}

	for _, it := range pageItems {
		record, ok := records[it.PostID]
		if !ok {
			continue // 帖子在排序与水合之间被删除
		}
		record.Liked = likedSet[it.PostID]
		result.Posts = append(result.Posts, RankedPost{
			FeedPost: record,
			Score:    it.Score,
			Source:   it.Source(),
		})
	}
	return result, nil
}

func (s *Service) cachedPage(ctx context.Context, key string) *FeedPage {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			s.log.Warn().Err(err).Str("key", key).Msg("recommend: page cache read failed")
		}
		s.metrics.ObserveCache("page", false)
		return nil
	}
	var page FeedPage
	if json.Unmarshal(data, &page) != nil {
		return nil
	}
	s.metrics.ObserveCache("page", true)
	return &page
}

func (s *Service) cachePage(ctx context.Context, key string, page *FeedPage) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.pageTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("recommend: page cache write failed")
	}
}

// sortByScore 分数降序的稳定排序：相同分数保持输入顺序（可复现的全序）。
func sortByScore(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}
