// Package pipeline 把推荐后处理逻辑拆成可组合的 Node 链。
package pipeline

import (
	"context"

	"github.com/rushteam/feedrank/core"
)

// Pipeline 按顺序执行 Node 链：多样性 → 规则 → 探索注入。
type Pipeline struct {
	Nodes []Node
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
