package vocab

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/feedrank/core"
)

// 缓存 key 与 TTL（天级：词表重建是低频离线操作）。
const (
	cacheKeyHashtags = "vocab:hashtags"
	cacheKeySkills   = "vocab:skills"

	// DefaultCacheTTL 词表缓存过期时间（秒）
	DefaultCacheTTL = 24 * 60 * 60
)

// Builder 从语料构建话题标签词表与技能词表。
//
// 缓存策略：
//   - 构建结果写入 Store（24h TTL），多实例共享
//   - 缓存读失败视为冷启动，直接重建（缓存是纯加速器）
//   - RebuildAll 显式失效缓存并重建两个词表
type Builder struct {
	feed  core.FeedStore
	cache core.Store
	ttl   int
	log   zerolog.Logger

	mu       sync.RWMutex
	hashtags *Vocabulary
	skills   *Vocabulary
}

// BuilderOption 配置 Builder。
type BuilderOption func(*Builder)

// WithCache 设置词表缓存后端。
func WithCache(cache core.Store) BuilderOption {
	return func(b *Builder) { b.cache = cache }
}

// WithCacheTTL 设置缓存 TTL（秒）。
func WithCacheTTL(ttl int) BuilderOption {
	return func(b *Builder) { b.ttl = ttl }
}

// WithLogger 设置日志。
func WithLogger(log zerolog.Logger) BuilderOption {
	return func(b *Builder) { b.log = log }
}

func NewBuilder(feed core.FeedStore, opts ...BuilderOption) *Builder {
	b := &Builder{
		feed: feed,
		ttl:  DefaultCacheTTL,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Hashtags 返回话题标签词表：常驻 → 缓存 → 重建，逐级回退。
func (b *Builder) Hashtags(ctx context.Context) (*Vocabulary, error) {
	b.mu.RLock()
	v := b.hashtags
	b.mu.RUnlock()
	if v != nil {
		return v, nil
	}
	return b.loadOrBuild(ctx, cacheKeyHashtags, b.BuildHashtagVocabulary, &b.hashtags)
}

// Skills 返回技能词表：常驻 → 缓存 → 重建，逐级回退。
func (b *Builder) Skills(ctx context.Context) (*Vocabulary, error) {
	b.mu.RLock()
	v := b.skills
	b.mu.RUnlock()
	if v != nil {
		return v, nil
	}
	return b.loadOrBuild(ctx, cacheKeySkills, b.BuildSkillVocabulary, &b.skills)
}

// Epoch 返回当前词表纪元（未加载时为 0）。
// 特征缓存以此判断向量是否按过期词表构建。
func (b *Builder) Epoch(ctx context.Context) (int64, error) {
	v, err := b.Hashtags(ctx)
	if err != nil {
		return 0, err
	}
	return v.Epoch, nil
}

// BuildHashtagVocabulary 扫描全量帖子的话题标签，构建 Top-K 词表。
// 空语料不报错，词表为空即可（下游槽位保持 0）。
func (b *Builder) BuildHashtagVocabulary(ctx context.Context) (*Vocabulary, error) {
	lists, err := b.feed.ListPostHashtags(ctx)
	if err != nil {
		return nil, err
	}
	return buildFromLists(lists, HashtagVocabSize), nil
}

// BuildSkillVocabulary 扫描全量用户的技能列表，构建 Top-K 词表。
func (b *Builder) BuildSkillVocabulary(ctx context.Context) (*Vocabulary, error) {
	lists, err := b.feed.ListUserSkills(ctx)
	if err != nil {
		return nil, err
	}
	return buildFromLists(lists, SkillVocabSize), nil
}

// RebuildAll 失效缓存并重建两个词表，返回新纪元。
// 训练流水线的第一阶段调用；两个词表共享同一纪元。
func (b *Builder) RebuildAll(ctx context.Context) (int64, error) {
	if b.cache != nil {
		// 缓存失效失败不致命：新值随后覆盖
		if err := b.cache.Delete(ctx, cacheKeyHashtags); err != nil {
			b.log.Warn().Err(err).Msg("vocab: invalidate hashtag cache failed")
		}
		if err := b.cache.Delete(ctx, cacheKeySkills); err != nil {
			b.log.Warn().Err(err).Msg("vocab: invalidate skill cache failed")
		}
	}

	hashtags, err := b.BuildHashtagVocabulary(ctx)
	if err != nil {
		return 0, err
	}
	skills, err := b.BuildSkillVocabulary(ctx)
	if err != nil {
		return 0, err
	}

	epoch := time.Now().Unix()
	hashtags.Epoch = epoch
	skills.Epoch = epoch

	b.mu.Lock()
	b.hashtags = hashtags
	b.skills = skills
	b.mu.Unlock()

	b.writeCache(ctx, cacheKeyHashtags, hashtags)
	b.writeCache(ctx, cacheKeySkills, skills)

	b.log.Info().
		Int64("epoch", epoch).
		Int("hashtags", hashtags.Size()).
		Int("skills", skills.Size()).
		Msg("vocab: rebuilt")
	return epoch, nil
}

// loadOrBuild 先读缓存，未命中或读失败则重建并回填。
func (b *Builder) loadOrBuild(
	ctx context.Context,
	key string,
	build func(context.Context) (*Vocabulary, error),
	slot **Vocabulary,
) (*Vocabulary, error) {
	if b.cache != nil {
		data, err := b.cache.Get(ctx, key)
		if err == nil {
			var v Vocabulary
			if json.Unmarshal(data, &v) == nil && v.Slots != nil {
				b.mu.Lock()
				*slot = &v
				b.mu.Unlock()
				return &v, nil
			}
		} else if !core.IsStoreNotFound(err) {
			b.log.Warn().Err(err).Str("key", key).Msg("vocab: cache read failed, rebuilding")
		}
	}

	v, err := build(ctx)
	if err != nil {
		return nil, err
	}
	v.Epoch = time.Now().Unix()

	b.mu.Lock()
	*slot = v
	b.mu.Unlock()

	b.writeCache(ctx, key, v)
	return v, nil
}

func (b *Builder) writeCache(ctx context.Context, key string, v *Vocabulary) {
	if b.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, key, data, b.ttl); err != nil {
		b.log.Warn().Err(err).Str("key", key).Msg("vocab: cache write failed")
	}
}

// buildFromLists 统计词频并截断到 Top-K：
// 频次降序，同频按首次出现顺序（稳定排序）。
func buildFromLists(lists [][]string, k int) *Vocabulary {
	counts := make(map[string]int)
	order := make([]string, 0, 256) // 首次出现顺序，用于同频 tie-break

	for _, terms := range lists {
		for _, raw := range terms {
			term := Normalize(raw)
			if term == "" {
				continue
			}
			if _, seen := counts[term]; !seen {
				order = append(order, term)
			}
			counts[term]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > k {
		order = order[:k]
	}

	v := &Vocabulary{
		Slots: make(map[string]int, len(order)),
		Terms: make([]string, len(order)),
	}
	for slot, term := range order {
		v.Slots[term] = slot
		v.Terms[slot] = term
	}
	return v
}
