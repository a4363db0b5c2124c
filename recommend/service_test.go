package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
	"github.com/rushteam/feedrank/feedstore"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/rerank"
	"github.com/rushteam/feedrank/store"
	"github.com/rushteam/feedrank/vocab"
)

// fakeModel 记录 Predict 调用，断言 ML 门控两侧的行为。
type fakeModel struct {
	trained      bool
	scores       []float64
	predictCalls int
}

func (f *fakeModel) IsModelTrained(ctx context.Context) bool { return f.trained }

func (f *fakeModel) Predict(ctx context.Context, userVec []float64, postVecs [][]float64) ([]float64, error) {
	f.predictCalls++
	out := make([]float64, len(postVecs))
	for i := range out {
		if i < len(f.scores) {
			out[i] = f.scores[i]
		}
	}
	return out, nil
}

func (f *fakeModel) LastTrainedAt() time.Time { return time.Time{} }

func (f *fakeModel) TotalTrainingExamples() int { return 0 }

func newFixture(t *testing.T, feed core.FeedStore, m ModelService, cache core.Store) *Service {
	t.Helper()
	vocabs := vocab.NewBuilder(feed)
	features := feature.NewBuilder(feed, vocabs)
	var opts []ServiceOption
	if cache != nil {
		opts = append(opts, WithCache(cache))
	}
	return NewService(feed, features, m, nil, opts...)
}

func addLikes(feed *feedstore.MemoryStore, userID int64, postIDs ...int64) {
	for i, id := range postIDs {
		feed.AddLike(userID, id, time.Now().Add(-time.Duration(i)*time.Minute))
	}
}

func TestHeuristicPathBelowThreshold(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader")
	feed.AddUser(2, "author")
	now := time.Now()
	for i := int64(1); i <= 5; i++ {
		feed.AddPost(core.Post{ID: i, AuthorID: 2, CreatedAt: now.Add(-time.Hour)}, "post")
	}
	// 模型已训练，但用户互动不足：仍走启发式
	model := &fakeModel{trained: true}
	svc := newFixture(t, feed, model, nil)

	page, err := svc.GetRecommendedFeed(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	if model.predictCalls != 0 {
		t.Errorf("Predict calls = %d, want 0 below interaction threshold", model.predictCalls)
	}
	if len(page.Posts) == 0 {
		t.Fatal("expected heuristic results")
	}
	for _, p := range page.Posts {
		if p.Source != core.SourceHeuristic {
			t.Errorf("post %d source = %q, want heuristic", p.ID, p.Source)
		}
	}
}

func TestHeuristicPathUntrainedModel(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader")
	feed.AddUser(2, "author")
	now := time.Now()
	for i := int64(1); i <= 8; i++ {
		feed.AddPost(core.Post{ID: i, AuthorID: 2, CreatedAt: now.Add(-time.Hour)}, "post")
	}
	addLikes(feed, 1, 1, 2, 3, 4, 5) // 互动达标，但模型未训练
	model := &fakeModel{trained: false}
	svc := newFixture(t, feed, model, nil)

	page, err := svc.GetRecommendedFeed(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	if model.predictCalls != 0 {
		t.Errorf("Predict calls = %d, want 0 without trained model", model.predictCalls)
	}
	for _, p := range page.Posts {
		if p.Source != core.SourceHeuristic {
			t.Errorf("post %d source = %q, want heuristic", p.ID, p.Source)
		}
	}
}

func TestMLPath(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader")
	feed.AddUser(2, "author")
	now := time.Now()
	// 5 条已赞（被排除）+ 3 条候选，候选按创建时间倒序：8, 7, 6
	for i := int64(1); i <= 8; i++ {
		feed.AddPost(core.Post{ID: i, AuthorID: 2, CreatedAt: now.Add(-time.Duration(9-i) * time.Hour)}, "post")
	}
	addLikes(feed, 1, 1, 2, 3, 4, 5)

	// 候选顺序 [8 7 6] 配分数 [0.1 0.5 0.9] → 排序后 [6 7 8]
	model := &fakeModel{trained: true, scores: []float64{0.1, 0.5, 0.9}}
	svc := newFixture(t, feed, model, nil)

	page, err := svc.GetRecommendedFeed(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	if model.predictCalls != 1 {
		t.Fatalf("Predict calls = %d, want 1", model.predictCalls)
	}
	if len(page.Posts) != 3 {
		t.Fatalf("len(posts) = %d, want 3", len(page.Posts))
	}
	want := []int64{6, 7, 8}
	for i, p := range page.Posts {
		if p.ID != want[i] {
			t.Errorf("posts[%d].ID = %d, want %d", i, p.ID, want[i])
		}
		if p.Source != core.SourceML {
			t.Errorf("post %d source = %q, want ml", p.ID, p.Source)
		}
	}
	if page.Posts[0].Score < page.Posts[1].Score || page.Posts[1].Score < page.Posts[2].Score {
		t.Error("posts must be ordered by score descending")
	}
}

func TestHeuristicOrdering(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader")
	feed.AddUser(2, "a")
	feed.AddUser(3, "b")
	feed.AddUser(4, "c")
	created := time.Now().Add(-2 * time.Hour)
	// score = 0.3*likes + 0.5*comments（同龄帖子，无技能重合，无话题标签）
	feed.AddPost(core.Post{ID: 1, AuthorID: 2, LikeCount: 1, CommentCount: 0, CreatedAt: created}, "low")
	feed.AddPost(core.Post{ID: 2, AuthorID: 3, LikeCount: 5, CommentCount: 10, CreatedAt: created}, "high")
	feed.AddPost(core.Post{ID: 3, AuthorID: 4, LikeCount: 3, CommentCount: 2, CreatedAt: created}, "mid")

	svc := newFixture(t, feed, &fakeModel{}, nil)
	page, err := svc.GetRecommendedFeed(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	want := []int64{2, 3, 1}
	if len(page.Posts) != len(want) {
		t.Fatalf("len(posts) = %d, want %d", len(page.Posts), len(want))
	}
	for i, p := range page.Posts {
		if p.ID != want[i] {
			t.Errorf("posts[%d].ID = %d, want %d", i, p.ID, want[i])
		}
	}
}

func TestSkillOverlapBoostsHeuristic(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader", "go", "ml")
	feed.AddUser(2, "stranger", "cobol")
	feed.AddUser(3, "peer", "go", "ml")
	created := time.Now().Add(-time.Hour)
	// 同等互动：技能重合 2 × 2.0 = +4 分应反超
	feed.AddPost(core.Post{ID: 1, AuthorID: 2, LikeCount: 10, CreatedAt: created}, "stranger post")
	feed.AddPost(core.Post{ID: 2, AuthorID: 3, LikeCount: 2, CreatedAt: created}, "peer post")

	svc := newFixture(t, feed, &fakeModel{}, nil)
	page, err := svc.GetRecommendedFeed(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	// stranger: 0.3*10 = 3.0; peer: 0.3*2 + 4 = 4.6
	if page.Posts[0].ID != 2 {
		t.Errorf("posts[0].ID = %d, want 2 (skill overlap should win)", page.Posts[0].ID)
	}
}

func TestPageCache(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader")
	feed.AddUser(2, "author")
	feed.AddPost(core.Post{ID: 1, AuthorID: 2, CreatedAt: time.Now().Add(-time.Hour)}, "post")

	cache := store.NewMemoryStore()
	defer cache.Close()
	svc := newFixture(t, feed, &fakeModel{}, cache)

	first, err := svc.GetRecommendedFeed(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}

	// TTL 窗口内新增的帖子不应出现在同一页里
	feed.AddPost(core.Post{ID: 2, AuthorID: 2, LikeCount: 100, CreatedAt: time.Now()}, "new post")
	second, err := svc.GetRecommendedFeed(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	if len(second.Posts) != len(first.Posts) {
		t.Errorf("cached page changed: %d posts vs %d", len(second.Posts), len(first.Posts))
	}
	for i := range first.Posts {
		if second.Posts[i].ID != first.Posts[i].ID {
			t.Errorf("cached page changed at %d: %d vs %d", i, second.Posts[i].ID, first.Posts[i].ID)
		}
	}
}

func TestPagination(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader")
	feed.AddUser(2, "author")
	now := time.Now()
	for i := int64(1); i <= 7; i++ {
		feed.AddPost(core.Post{ID: i, AuthorID: 2, CreatedAt: now.Add(-time.Duration(i) * time.Minute)}, "post")
	}
	svc := newFixture(t, feed, &fakeModel{}, nil)

	page2, err := svc.GetRecommendedFeed(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	if page2.Total != 7 || page2.Page != 2 || page2.Limit != 3 {
		t.Errorf("page meta = %+v, want Total=7 Page=2 Limit=3", page2)
	}
	if len(page2.Posts) != 3 {
		t.Errorf("len(posts) = %d, want 3", len(page2.Posts))
	}

	beyond, err := svc.GetRecommendedFeed(context.Background(), 1, 9, 3)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	if len(beyond.Posts) != 0 || beyond.Total != 7 {
		t.Errorf("out-of-range page = %+v, want empty posts with Total=7", beyond)
	}
}

func TestRerankChainApplied(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader")
	feed.AddUser(2, "prolific")
	feed.AddUser(3, "other")
	now := time.Now()
	for i := int64(1); i <= 4; i++ {
		feed.AddPost(core.Post{ID: i, AuthorID: 2, CreatedAt: now.Add(-time.Duration(i) * time.Minute)}, "post")
	}
	feed.AddPost(core.Post{ID: 5, AuthorID: 3, CreatedAt: now.Add(-5 * time.Minute)}, "post")

	vocabs := vocab.NewBuilder(feed)
	features := feature.NewBuilder(feed, vocabs)
	chain := &pipeline.Pipeline{Nodes: []pipeline.Node{&rerank.AuthorDiversity{}}}
	svc := NewService(feed, features, &fakeModel{}, chain)

	page, err := svc.GetRecommendedFeed(context.Background(), 1, 1, 10)
	if err != nil {
		t.Fatalf("GetRecommendedFeed: %v", err)
	}
	perAuthor := make(map[int64]int)
	for _, p := range page.Posts {
		perAuthor[p.AuthorID]++
	}
	if perAuthor[2] > rerank.DefaultAuthorCap {
		t.Errorf("author 2 posts = %d, want <= %d", perAuthor[2], rerank.DefaultAuthorCap)
	}
}

func TestGetStatus(t *testing.T) {
	feed := feedstore.NewMemoryStore()
	feed.AddUser(1, "reader")
	feed.AddUser(2, "author")
	for i := int64(1); i <= 5; i++ {
		feed.AddPost(core.Post{ID: i, AuthorID: 2, CreatedAt: time.Now()}, "post")
	}
	addLikes(feed, 1, 1, 2, 3, 4, 5)

	tests := []struct {
		name         string
		trained      bool
		userID       int64
		wantEligible bool
	}{
		{"trained and active user", true, 1, true},
		{"trained but cold user", true, 99, false},
		{"untrained model", false, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFixture(t, feed, &fakeModel{trained: tt.trained}, nil)
			status, err := svc.GetStatus(context.Background(), tt.userID)
			if err != nil {
				t.Fatalf("GetStatus: %v", err)
			}
			if status.MLEligible != tt.wantEligible {
				t.Errorf("MLEligible = %v, want %v", status.MLEligible, tt.wantEligible)
			}
			if status.ModelTrained != tt.trained {
				t.Errorf("ModelTrained = %v, want %v", status.ModelTrained, tt.trained)
			}
		})
	}
}
