package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/vocab"
)

// 缓存 TTL（小时级：用户互动/帖子计数变化后由 Invalidate 钩子主动失效）。
const (
	// DefaultCacheTTL 特征向量缓存过期时间（秒）
	DefaultCacheTTL = 60 * 60

	// DefaultHistoryLimit 用户向量取最近多少条点赞/评论历史
	DefaultHistoryLimit = 200

	// DefaultMaxConcurrent 批量向量化的最大并发数
	DefaultMaxConcurrent = 8
)

// cachedVector 是带词表纪元的缓存条目。
// 纪元不匹配视为未命中：按旧词表构建的向量槽位语义已失效。
type cachedVector struct {
	Epoch int64     `json:"epoch"`
	Vec   []float64 `json:"vec"`
}

// Builder 是特征向量构建器。
//
// 缓存策略：
//   - userId/postId 维度缓存，短 TTL
//   - 缓存层故障只导致重新计算，绝不影响正确性
//   - 互动变更方（like/comment/follow/技能编辑）调用 InvalidateUser/InvalidatePost
type Builder struct {
	feed          core.FeedStore
	vocabs        *vocab.Builder
	cache         core.Store
	ttl           int
	historyLimit  int
	maxConcurrent int
	log           zerolog.Logger
}

// BuilderOption 配置 Builder。
type BuilderOption func(*Builder)

// WithCache 设置特征缓存后端。
func WithCache(cache core.Store) BuilderOption {
	return func(b *Builder) { b.cache = cache }
}

// WithCacheTTL 设置缓存 TTL（秒）。
func WithCacheTTL(ttl int) BuilderOption {
	return func(b *Builder) { b.ttl = ttl }
}

// WithHistoryLimit 设置用户历史窗口大小。
func WithHistoryLimit(limit int) BuilderOption {
	return func(b *Builder) { b.historyLimit = limit }
}

// WithMaxConcurrent 设置批量向量化并发上限。
func WithMaxConcurrent(n int) BuilderOption {
	return func(b *Builder) { b.maxConcurrent = n }
}

// WithLogger 设置日志。
func WithLogger(log zerolog.Logger) BuilderOption {
	return func(b *Builder) { b.log = log }
}

func NewBuilder(feed core.FeedStore, vocabs *vocab.Builder, opts ...BuilderOption) *Builder {
	b := &Builder{
		feed:          feed,
		vocabs:        vocabs,
		ttl:           DefaultCacheTTL,
		historyLimit:  DefaultHistoryLimit,
		maxConcurrent: DefaultMaxConcurrent,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildUserVector 构建用户特征向量（196 维）。
//
// 话题兴趣：最近点赞/评论过的帖子的话题计数，评论记 2 分、点赞记 1 分，
// 除以最大计数归一化（相对强度，不是概率）；词表外的话题静默丢弃。
// 技能档案：词表槽位 0/1。参与度标量：点赞/评论/保留位/发帖，各自归一并钳制。
func (b *Builder) BuildUserVector(ctx context.Context, userID int64) ([]float64, error) {
	hashtags, err := b.vocabs.Hashtags(ctx)
	if err != nil {
		return nil, err
	}
	skills, err := b.vocabs.Skills(ctx)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("feat:user:%d", userID)
	if vec, ok := b.cacheGet(ctx, key, hashtags.Epoch, UserVectorDim); ok {
		return vec, nil
	}

	vec := make([]float64, UserVectorDim)

	liked, err := b.feed.GetLikedPosts(ctx, userID, b.historyLimit)
	if err != nil {
		return nil, err
	}
	commented, err := b.feed.GetCommentedPosts(ctx, userID, b.historyLimit)
	if err != nil {
		return nil, err
	}

	// 话题兴趣：评论权重 2×点赞，按最大计数归一化
	interest := make([]float64, vocab.HashtagVocabSize)
	accumulate := func(posts []core.Post, weight float64) {
		for _, p := range posts {
			for _, tag := range p.Hashtags {
				if slot, ok := hashtags.Slot(tag); ok {
					interest[slot] += weight
				}
			}
		}
	}
	accumulate(liked, 1)
	accumulate(commented, 2)

	var maxCount float64
	for _, c := range interest {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount > 0 {
		for slot, c := range interest {
			vec[slot] = c / maxCount
		}
	}

	// 技能档案 0/1
	userSkills, err := b.feed.GetUserSkills(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, s := range userSkills {
		if slot, ok := skills.Slot(s); ok {
			vec[vocab.HashtagVocabSize+slot] = 1
		}
	}

	// 参与度标量
	stats, err := b.feed.GetUserStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	base := vocab.HashtagVocabSize + vocab.SkillVocabSize
	vec[base] = clamp01(float64(stats.LikesGiven) / normLikesGiven)
	vec[base+1] = clamp01(float64(stats.CommentsMade) / normCommentsMade)
	vec[base+2] = activityPlaceholder
	vec[base+3] = clamp01(float64(stats.PostsAuthored) / normPostsAuthored)

	L2Normalize(vec)
	b.cacheSet(ctx, key, hashtags.Epoch, vec)
	return vec, nil
}

// BuildPostVector 构建帖子特征向量（197 维）。
// 帖子不存在时返回全零向量而不是报错：批量打分必须对候选集保持全函数。
func (b *Builder) BuildPostVector(ctx context.Context, postID int64) ([]float64, error) {
	hashtags, err := b.vocabs.Hashtags(ctx)
	if err != nil {
		return nil, err
	}
	skills, err := b.vocabs.Skills(ctx)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("feat:post:%d", postID)
	if vec, ok := b.cacheGet(ctx, key, hashtags.Epoch, PostVectorDim); ok {
		return vec, nil
	}

	post, err := b.feed.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		// 缺失实体：零向量，不缓存（帖子随后出现时立即可见）
		return make([]float64, PostVectorDim), nil
	}

	vec, err := b.buildPostVector(ctx, post, hashtags, skills, nil)
	if err != nil {
		return nil, err
	}
	b.cacheSet(ctx, key, hashtags.Epoch, vec)
	return vec, nil
}

// BuildPostVectors 批量向量化：逐项独立，errgroup 并发执行，结果保持输入顺序。
// 同批次内按作者去重技能/粉丝查询，避免 N+1 访问。
func (b *Builder) BuildPostVectors(ctx context.Context, postIDs []int64) ([][]float64, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}

	hashtags, err := b.vocabs.Hashtags(ctx)
	if err != nil {
		return nil, err
	}
	skills, err := b.vocabs.Skills(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float64, len(postIDs))

	// 先批量读缓存
	keys := make([]string, len(postIDs))
	for i, id := range postIDs {
		keys[i] = fmt.Sprintf("feat:post:%d", id)
	}
	cached := b.cacheBatchGet(ctx, keys, hashtags.Epoch, PostVectorDim)

	authors := newAuthorProfileCache(b.feed)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.maxConcurrent)

	var (
		mu      sync.Mutex
		toCache = make(map[string][]byte)
	)

	for i, postID := range postIDs {
		if vec, ok := cached[keys[i]]; ok {
			vectors[i] = vec
			continue
		}

		i, postID := i, postID
		eg.Go(func() error {
			post, err := b.feed.GetPost(egCtx, postID)
			if err != nil {
				return err
			}
			if post == nil {
				vectors[i] = make([]float64, PostVectorDim)
				return nil
			}

			vec, err := b.buildPostVector(egCtx, post, hashtags, skills, authors)
			if err != nil {
				return err
			}
			vectors[i] = vec

			if entry, err := json.Marshal(cachedVector{Epoch: hashtags.Epoch, Vec: vec}); err == nil {
				mu.Lock()
				toCache[keys[i]] = entry
				mu.Unlock()
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if b.cache != nil && len(toCache) > 0 {
		if err := b.cache.BatchSet(ctx, toCache, b.ttl); err != nil {
			b.log.Warn().Err(err).Msg("feature: post vector batch cache write failed")
		}
	}
	return vectors, nil
}

// InvalidateUser 失效用户特征缓存。互动或技能变更后调用。
func (b *Builder) InvalidateUser(ctx context.Context, userID int64) {
	b.invalidate(ctx, fmt.Sprintf("feat:user:%d", userID))
}

// InvalidatePost 失效帖子特征缓存。互动计数或帖子本身变更后调用。
func (b *Builder) InvalidatePost(ctx context.Context, postID int64) {
	b.invalidate(ctx, fmt.Sprintf("feat:post:%d", postID))
}

func (b *Builder) invalidate(ctx context.Context, key string) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Delete(ctx, key); err != nil {
		b.log.Warn().Err(err).Str("key", key).Msg("feature: cache invalidation failed")
	}
}

// buildPostVector 计算单个帖子的向量；authors 为可选的批内作者档案缓存。
func (b *Builder) buildPostVector(
	ctx context.Context,
	post *core.Post,
	hashtags, skills *vocab.Vocabulary,
	authors *authorProfileCache,
) ([]float64, error) {
	vec := make([]float64, PostVectorDim)

	// 话题标签 0/1
	for _, tag := range post.Hashtags {
		if slot, ok := hashtags.Slot(tag); ok {
			vec[slot] = 1
		}
	}

	// 作者技能 0/1 + 粉丝数
	var (
		authorSkills []string
		authorStats  core.UserStats
		err          error
	)
	if authors != nil {
		authorSkills, authorStats, err = authors.get(ctx, post.AuthorID)
	} else {
		authorSkills, err = b.feed.GetUserSkills(ctx, post.AuthorID)
		if err == nil {
			authorStats, err = b.feed.GetUserStats(ctx, post.AuthorID)
		}
	}
	if err != nil {
		return nil, err
	}
	for _, s := range authorSkills {
		if slot, ok := skills.Slot(s); ok {
			vec[vocab.HashtagVocabSize+slot] = 1
		}
	}

	// 元特征
	base := vocab.HashtagVocabSize + vocab.SkillVocabSize
	vec[base] = clamp01(float64(post.LikeCount) / normPostLikes)
	vec[base+1] = clamp01(float64(post.CommentCount) / normPostComments)
	vec[base+2] = clamp01(float64(post.ViewCount) / normPostViews)
	vec[base+3] = recencyScore(time.Since(post.CreatedAt).Hours())
	vec[base+4] = clamp01(float64(authorStats.FollowerCount) / normFollowerCount)

	L2Normalize(vec)
	return vec, nil
}

// cacheGet 读单条缓存；纪元不匹配或维度异常视为未命中。
func (b *Builder) cacheGet(ctx context.Context, key string, epoch int64, dim int) ([]float64, bool) {
	if b.cache == nil {
		return nil, false
	}
	data, err := b.cache.Get(ctx, key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			b.log.Warn().Err(err).Str("key", key).Msg("feature: cache read failed")
		}
		return nil, false
	}
	var entry cachedVector
	if json.Unmarshal(data, &entry) != nil {
		return nil, false
	}
	if entry.Epoch != epoch || len(entry.Vec) != dim {
		return nil, false
	}
	return entry.Vec, true
}

func (b *Builder) cacheSet(ctx context.Context, key string, epoch int64, vec []float64) {
	if b.cache == nil {
		return
	}
	data, err := json.Marshal(cachedVector{Epoch: epoch, Vec: vec})
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, key, data, b.ttl); err != nil {
		b.log.Warn().Err(err).Str("key", key).Msg("feature: cache write failed")
	}
}

// cacheBatchGet 批量读缓存，返回命中的 key → 向量。缓存故障返回空结果。
func (b *Builder) cacheBatchGet(ctx context.Context, keys []string, epoch int64, dim int) map[string][]float64 {
	result := make(map[string][]float64)
	if b.cache == nil {
		return result
	}
	entries, err := b.cache.BatchGet(ctx, keys)
	if err != nil {
		b.log.Warn().Err(err).Msg("feature: cache batch read failed")
		return result
	}
	for k, data := range entries {
		var entry cachedVector
		if json.Unmarshal(data, &entry) != nil {
			continue
		}
		if entry.Epoch != epoch || len(entry.Vec) != dim {
			continue
		}
		result[k] = entry.Vec
	}
	return result
}

// authorProfileCache 在一次批量向量化内按作者去重技能/统计查询。
type authorProfileCache struct {
	feed core.FeedStore

	mu      sync.Mutex
	skills  map[int64][]string
	stats   map[int64]core.UserStats
	present map[int64]bool
}

func newAuthorProfileCache(feed core.FeedStore) *authorProfileCache {
	return &authorProfileCache{
		feed:    feed,
		skills:  make(map[int64][]string),
		stats:   make(map[int64]core.UserStats),
		present: make(map[int64]bool),
	}
}

func (c *authorProfileCache) get(ctx context.Context, authorID int64) ([]string, core.UserStats, error) {
	c.mu.Lock()
	if c.present[authorID] {
		skills, stats := c.skills[authorID], c.stats[authorID]
		c.mu.Unlock()
		return skills, stats, nil
	}
	c.mu.Unlock()

	skills, err := c.feed.GetUserSkills(ctx, authorID)
	if err != nil {
		return nil, core.UserStats{}, err
	}
	stats, err := c.feed.GetUserStats(ctx, authorID)
	if err != nil {
		return nil, core.UserStats{}, err
	}

	c.mu.Lock()
	c.skills[authorID] = skills
	c.stats[authorID] = stats
	c.present[authorID] = true
	c.mu.Unlock()
	return skills, stats, nil
}
