package feature

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feedstore"
	"github.com/rushteam/feedrank/store"
	"github.com/rushteam/feedrank/vocab"
)

func TestL2Normalize(t *testing.T) {
	vec := []float64{3, 4}
	L2Normalize(vec)
	if math.Abs(vec[0]-0.6) > 1e-9 || math.Abs(vec[1]-0.8) > 1e-9 {
		t.Errorf("L2Normalize = %v, want [0.6 0.8]", vec)
	}

	zero := []float64{0, 0, 0}
	L2Normalize(zero)
	for _, v := range zero {
		if v != 0 {
			t.Fatalf("zero vector must pass through unchanged, got %v", zero)
		}
	}
}

func TestRecencyScore(t *testing.T) {
	if got := recencyScore(0); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("recencyScore(0) = %v, want 1.0", got)
	}
	if got := recencyScore(48); math.Abs(got-math.Exp(-1)) > 1e-9 {
		t.Errorf("recencyScore(48) = %v, want e^-1", got)
	}
	// 未来时间戳按 0 小时处理
	if got := recencyScore(-5); got != 1.0 {
		t.Errorf("recencyScore(-5) = %v, want 1.0", got)
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-0.5, 0}, {0, 0}, {0.3, 0.3}, {1, 1}, {7.2, 1},
	}
	for _, tt := range tests {
		if got := clamp01(tt.in); got != tt.want {
			t.Errorf("clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// seedCorpus 构造确定的词表槽位：hashtag slot0=go slot1=rust，skill slot0=go slot1=ml。
func seedCorpus(t *testing.T) *feedstore.MemoryStore {
	t.Helper()
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "alice", "go", "ml")
	feed.AddUser(2, "bob", "go")
	now := time.Now()
	feed.AddPost(core.Post{ID: 10, AuthorID: 2, Hashtags: []string{"go", "go"}, CreatedAt: now}, "post 10")
	feed.AddPost(core.Post{ID: 11, AuthorID: 2, Hashtags: []string{"rust"}, CreatedAt: now}, "post 11")
	return feed
}

func newTestBuilder(feed core.FeedStore, cache core.Store) *Builder {
	vocabs := vocab.NewBuilder(feed)
	opts := []BuilderOption{}
	if cache != nil {
		opts = append(opts, WithCache(cache))
	}
	return NewBuilder(feed, vocabs, opts...)
}

func TestBuildUserVector(t *testing.T) {
	ctx := context.Background()
	feed := seedCorpus(t)
	// 用户 1：点赞 post 10（go），评论 post 11（rust）
	feed.AddLike(1, 10, time.Now())
	feed.AddComment(1, 11, time.Now())

	b := newTestBuilder(feed, nil)
	vec, err := b.BuildUserVector(ctx, 1)
	if err != nil {
		t.Fatalf("BuildUserVector: %v", err)
	}
	if len(vec) != UserVectorDim {
		t.Fatalf("dim = %d, want %d", len(vec), UserVectorDim)
	}

	// 评论权重 2×点赞：rust 兴趣应为 go 的 2 倍
	goInterest, rustInterest := vec[0], vec[1]
	if goInterest == 0 || rustInterest == 0 {
		t.Fatalf("interest slots should be non-zero, got go=%v rust=%v", goInterest, rustInterest)
	}
	if math.Abs(rustInterest/goInterest-2.0) > 1e-9 {
		t.Errorf("rust/go interest ratio = %v, want 2.0", rustInterest/goInterest)
	}

	// 技能槽位 0/1（归一化前），整体 L2 归一化后应与兴趣槽同比例
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-9 {
		t.Errorf("|vec| = %v, want 1.0", math.Sqrt(norm))
	}
}

func TestBuildUserVectorNoHistory(t *testing.T) {
	ctx := context.Background()
	feed := seedCorpus(t)
	feed.AddUser(99, "carol") // 无技能无互动

	b := newTestBuilder(feed, nil)
	vec, err := b.BuildUserVector(ctx, 99)
	if err != nil {
		t.Fatalf("BuildUserVector: %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("vec[%d] = %v, want all-zero vector for user without signal", i, v)
		}
	}
}

func TestBuildPostVector(t *testing.T) {
	ctx := context.Background()
	feed := seedCorpus(t)
	b := newTestBuilder(feed, nil)

	vec, err := b.BuildPostVector(ctx, 10)
	if err != nil {
		t.Fatalf("BuildPostVector: %v", err)
	}
	if len(vec) != PostVectorDim {
		t.Fatalf("dim = %d, want %d", len(vec), PostVectorDim)
	}
	if vec[0] == 0 {
		t.Error("hashtag slot for go should be set")
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-9 {
		t.Errorf("|vec| = %v, want 1.0", math.Sqrt(norm))
	}
}

func TestBuildPostVectorMissing(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryStore()
	defer cache.Close()
	b := newTestBuilder(seedCorpus(t), cache)

	vec, err := b.BuildPostVector(ctx, 404)
	if err != nil {
		t.Fatalf("BuildPostVector: %v", err)
	}
	if len(vec) != PostVectorDim {
		t.Fatalf("dim = %d, want %d", len(vec), PostVectorDim)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("vec[%d] = %v, want zero vector for missing post", i, v)
		}
	}
	// 缺失帖子不写缓存：帖子出现后立即可见
	if _, err := cache.Get(ctx, "feat:post:404"); err == nil {
		t.Error("missing post vector must not be cached")
	}
}

func TestBuildPostVectorsKeepsOrder(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(seedCorpus(t), nil)

	vecs, err := b.BuildPostVectors(ctx, []int64{11, 404, 10})
	if err != nil {
		t.Fatalf("BuildPostVectors: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len = %d, want 3", len(vecs))
	}
	if vecs[0][1] == 0 {
		t.Error("vecs[0] should be post 11 (rust slot set)")
	}
	for i, v := range vecs[1] {
		if v != 0 {
			t.Fatalf("vecs[1][%d] = %v, want zero vector for missing post", i, v)
		}
	}
	if vecs[2][0] == 0 {
		t.Error("vecs[2] should be post 10 (go slot set)")
	}
}

func TestCacheEpochMismatch(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryStore()
	defer cache.Close()
	b := newTestBuilder(seedCorpus(t), cache)

	// 伪造一个旧纪元缓存条目：必须被视为未命中
	junk := make([]float64, PostVectorDim)
	junk[0] = 42
	data, _ := json.Marshal(cachedVector{Epoch: 1, Vec: junk})
	if err := cache.Set(ctx, "feat:post:10", data); err != nil {
		t.Fatalf("Set: %v", err)
	}

	vec, err := b.BuildPostVector(ctx, 10)
	if err != nil {
		t.Fatalf("BuildPostVector: %v", err)
	}
	if vec[0] == 42 {
		t.Error("stale-epoch cache entry must not be served")
	}
}

func TestInvalidateUser(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryStore()
	defer cache.Close()
	feed := seedCorpus(t)
	feed.AddLike(1, 10, time.Now())
	b := newTestBuilder(feed, cache)

	if _, err := b.BuildUserVector(ctx, 1); err != nil {
		t.Fatalf("BuildUserVector: %v", err)
	}
	if _, err := cache.Get(ctx, "feat:user:1"); err != nil {
		t.Fatalf("user vector should be cached: %v", err)
	}

	b.InvalidateUser(ctx, 1)
	if _, err := cache.Get(ctx, "feat:user:1"); err == nil {
		t.Error("user vector cache should be invalidated")
	}
}
