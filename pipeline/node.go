package pipeline

import (
	"context"

	"github.com/rushteam/feedrank/core"
)

// Kind 用于标记 Node 类型，方便观测/治理/编排（例如按阶段打点）。
type Kind string

const (
	KindRank        Kind = "rank"        // 排序阶段：对候选打分并排序
	KindReRank      Kind = "rerank"      // 重排阶段：多样性/规则调优
	KindPostProcess Kind = "postprocess" // 后处理阶段：探索注入等最终修饰
)

// Node 是重排链路的最小可扩展单元。
// 统一采用"输入 items -> 输出 items"的形态，方便截断、重排、注入等操作。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}
