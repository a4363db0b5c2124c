package rerank

import (
	"context"
	"testing"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/utils"
)

func TestNewRuleNodeRejectsBadExpr(t *testing.T) {
	_, err := NewRuleNode([]Rule{{Expr: "item.score ==", Action: ActionSuppress}})
	if err == nil {
		t.Fatal("expected compile error for malformed expression")
	}
}

func TestRuleSuppress(t *testing.T) {
	node, err := NewRuleNode([]Rule{
		{Expr: `item.author_id == 666`, Action: ActionSuppress},
	})
	if err != nil {
		t.Fatalf("NewRuleNode: %v", err)
	}

	in := items([2]int64{1, 100}, [2]int64{2, 666}, [2]int64{3, 100})
	out, err := node.Process(context.Background(), &core.RecommendContext{UserID: 1}, in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	for _, it := range out {
		if it.AuthorID == 666 {
			t.Errorf("post %d from blocked author survived", it.PostID)
		}
	}
}

func TestRuleBoost(t *testing.T) {
	node, err := NewRuleNode([]Rule{
		{Expr: `label.source == "heuristic"`, Action: ActionBoost, Factor: 2.0},
	})
	if err != nil {
		t.Fatalf("NewRuleNode: %v", err)
	}

	boosted := core.NewItem(1, 10)
	boosted.Score = 0.5
	boosted.PutLabel(core.LabelSource, utils.NewLabel(core.SourceHeuristic, "rank"))
	untouched := core.NewItem(2, 11)
	untouched.Score = 0.5
	untouched.PutLabel(core.LabelSource, utils.NewLabel(core.SourceML, "rank"))

	out, err := node.Process(context.Background(), &core.RecommendContext{}, []*core.Item{boosted, untouched})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out[0].Score != 1.0 {
		t.Errorf("boosted score = %v, want 1.0", out[0].Score)
	}
	if out[1].Score != 0.5 {
		t.Errorf("unmatched score = %v, want 0.5", out[1].Score)
	}
}

func TestRuleUsesRequestContext(t *testing.T) {
	node, err := NewRuleNode([]Rule{
		{Expr: `rctx.like_count < 5 && item.score < 0.2`, Action: ActionSuppress},
	})
	if err != nil {
		t.Fatalf("NewRuleNode: %v", err)
	}

	low := core.NewItem(1, 10)
	low.Score = 0.1
	high := core.NewItem(2, 11)
	high.Score = 0.9

	out, err := node.Process(context.Background(), &core.RecommendContext{UserID: 1, LikeCount: 2}, []*core.Item{low, high})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 || out[0].PostID != 2 {
		t.Errorf("got %v, want only post 2", postIDs(out))
	}
}

func TestRuleEvalErrorIsNonMatch(t *testing.T) {
	// label.missing 在求值时报 no_such_key：按未命中处理，条目保留
	node, err := NewRuleNode([]Rule{
		{Expr: `label.missing == "x"`, Action: ActionSuppress},
	})
	if err != nil {
		t.Fatalf("NewRuleNode: %v", err)
	}

	in := items([2]int64{1, 10})
	out, err := node.Process(context.Background(), &core.RecommendContext{}, in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 1 {
		t.Errorf("eval error must not drop items, got %v", postIDs(out))
	}
}
