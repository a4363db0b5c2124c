package rerank

import (
	"context"
	"math"
	"math/rand"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
	"github.com/rushteam/feedrank/pkg/utils"
)

// 探索注入默认参数。
const (
	// DefaultExplorationRatio 探索条目占比：注入 ceil(N × 0.1) 条
	DefaultExplorationRatio = 0.1

	// DefaultOversample 候选池超采样倍数（随机挑选的余地）
	DefaultOversample = 3
)

// Exploration 是探索注入 Node：从近期帖子中随机挑选不在列表中的条目，
// 按大致均匀的间隔插入，用于曝光新内容并收集反馈信号。
//
// 注入条目的 score 恒为 0，source label 为 exploration。
// Rand 可注入种子随机源，场景测试可断言确定的探索成员。
type Exploration struct {
	Feed core.FeedStore

	// Ratio 探索占比；<= 0 时取 DefaultExplorationRatio
	Ratio float64

	// Oversample 超采样倍数；<= 0 时取 DefaultOversample
	Oversample int

	// Rand 随机源；nil 时使用全局随机源（不可复现）
	Rand *rand.Rand
}

func (n *Exploration) Name() string        { return "rerank.exploration" }
func (n *Exploration) Kind() pipeline.Kind { return pipeline.KindPostProcess }

func (n *Exploration) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	ratio := n.Ratio
	if ratio <= 0 {
		ratio = DefaultExplorationRatio
	}
	count := int(math.Ceil(float64(len(items)) * ratio))
	if count == 0 {
		return items, nil
	}

	oversample := n.Oversample
	if oversample <= 0 {
		oversample = DefaultOversample
	}

	exclude := make([]int64, 0, len(items))
	for _, it := range items {
		exclude = append(exclude, it.PostID)
	}

	pool, err := n.Feed.ListCandidatePosts(ctx, core.CandidateQuery{
		Limit:         count * oversample,
		ExcludeAuthor: rctx.UserID,
		ExcludeIDs:    exclude,
	})
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return items, nil
	}

	// 均匀随机挑选 count 条
	shuffle := n.Rand.Shuffle
	if n.Rand == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > count {
		pool = pool[:count]
	}

	picked := make([]*core.Item, 0, len(pool))
	for _, p := range pool {
		it := core.NewItem(p.ID, p.AuthorID)
		it.PutLabel(core.LabelSource, utils.NewLabel(core.SourceExploration, "exploration"))
		picked = append(picked, it)
	}

	return interleave(items, picked), nil
}

// interleave 按大致均匀的间隔插入探索条目：
// step = max(1, floor(listLength / (count+1)))，每隔 step 条原始条目插入一条。
func interleave(items, picked []*core.Item) []*core.Item {
	step := len(items) / (len(picked) + 1)
	if step < 1 {
		step = 1
	}

	out := make([]*core.Item, 0, len(items)+len(picked))
	next := 0
	for i, it := range items {
		out = append(out, it)
		if (i+1)%step == 0 && next < len(picked) {
			out = append(out, picked[next])
			next++
		}
	}
	// 间隔不够时剩余条目追加在尾部
	for ; next < len(picked); next++ {
		out = append(out, picked[next])
	}
	return out
}
