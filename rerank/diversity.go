// Package rerank 提供排序结果上的重排 Node：作者多样性、规则调优、探索注入、截断。
package rerank

import (
	"context"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
)

// DefaultAuthorCap 是单个作者在结果列表中的帖子数上限。
const DefaultAuthorCap = 2

// AuthorDiversity 是作者多样性 Node：贪心单遍扫描，
// 仅当作者已录取帖子数低于上限时才录取当前帖子。
// 不做全局重排：上游排序决定同作者的哪些帖子胜出。
type AuthorDiversity struct {
	// Cap 单作者上限；<= 0 时取 DefaultAuthorCap
	Cap int
}

func (n *AuthorDiversity) Name() string        { return "rerank.author_diversity" }
func (n *AuthorDiversity) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *AuthorDiversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	cap := n.Cap
	if cap <= 0 {
		cap = DefaultAuthorCap
	}

	admitted := make(map[int64]int, 32)
	out := make([]*core.Item, 0, len(items))

	for _, it := range items {
		if it == nil {
			continue
		}
		if admitted[it.AuthorID] >= cap {
			continue
		}
		admitted[it.AuthorID]++
		out = append(out, it)
	}

	return out, nil
}
