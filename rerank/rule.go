package rerank

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pipeline"
)

// RuleAction 是规则命中后的动作。
type RuleAction string

const (
	ActionSuppress RuleAction = "suppress" // 从列表中剔除
	ActionBoost    RuleAction = "boost"    // 分数乘以 Factor
)

// Rule 是一条 CEL 规则：布尔表达式对单个 item 求值。
//
// 表达式语法（CEL 标准语法）：
//   - label.source == "heuristic" && item.score < 0.01
//   - item.author_id == 42
//   - rctx.like_count < 5
type Rule struct {
	Expr   string
	Action RuleAction
	Factor float64 // boost 因子（仅 ActionBoost 使用）
}

// RuleNode 是规则调优 Node：按配置的 CEL 表达式对条目做剔除或加权。
// 表达式在构建时编译一次，逐条目求值。
type RuleNode struct {
	rules []compiledRule
}

type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// NewRuleNode 编译规则表达式并构建 Node；任一表达式非法时报错。
func NewRuleNode(rules []Rule) (*RuleNode, error) {
	env, err := cel.NewEnv(
		cel.Variable("item", cel.DynType),
		cel.Variable("label", cel.DynType),
		cel.Variable("rctx", cel.DynType),
	)
	if err != nil {
		return nil, err
	}

	node := &RuleNode{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if r.Expr == "" {
			continue
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Expr, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("program rule %q: %w", r.Expr, err)
		}
		node.rules = append(node.rules, compiledRule{rule: r, prg: prg})
	}
	return node, nil
}

func (n *RuleNode) Name() string        { return "rerank.rule" }
func (n *RuleNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *RuleNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.rules) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		suppressed := false
		for _, cr := range n.rules {
			matched, err := evalRule(cr.prg, it, rctx)
			if err != nil {
				// 求值失败按未命中处理：规则是调优手段，不应使请求失败
				continue
			}
			if !matched {
				continue
			}
			switch cr.rule.Action {
			case ActionSuppress:
				suppressed = true
			case ActionBoost:
				if cr.rule.Factor > 0 {
					it.Score *= cr.rule.Factor
				}
			}
		}
		if !suppressed {
			out = append(out, it)
		}
	}
	return out, nil
}

// evalRule 构建 CEL 输入并求值为布尔。
func evalRule(prg cel.Program, it *core.Item, rctx *core.RecommendContext) (bool, error) {
	labels := make(map[string]interface{}, len(it.Labels))
	for k, v := range it.Labels {
		labels[k] = v.Value
	}

	input := map[string]interface{}{
		"item": map[string]interface{}{
			"id":        it.PostID,
			"author_id": it.AuthorID,
			"score":     it.Score,
		},
		"label": labels,
		"rctx": map[string]interface{}{
			"user_id":    rctx.UserID,
			"like_count": rctx.LikeCount,
		},
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, err
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule expression must return boolean, got %T", out.Value())
	}
	return result, nil
}
