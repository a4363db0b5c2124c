package rerank

import (
	"context"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
)

// TopN 是截断 Node，用于限制进入后续阶段的条目数量。
//
// 使用场景：
//   - 排序后、多样性重排前截取前 N 个候选
//   - 约束单次请求成本（配合候选池上限）
type TopN struct {
	// N 要保留的条目数量；N <= 0 时不截断
	N int
}

func (n *TopN) Name() string        { return "rerank.topn" }
func (n *TopN) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *TopN) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.N <= 0 || len(items) <= n.N {
		return items, nil
	}
	return items[:n.N], nil
}
