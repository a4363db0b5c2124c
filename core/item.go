package core

import "github.com/rushteam/feedrank/pkg/utils"

// 推荐来源常量：写入 Item 的 source label，用于 explain / 观测 / 策略驱动。
const (
	SourceML          = "ml"          // 排序模型打分
	SourceHeuristic   = "heuristic"   // 启发式打分（冷启动 / 无模型）
	SourceExploration = "exploration" // 探索注入（score 恒为 0）
)

// LabelSource 是来源 label 的标准 key。
const LabelSource = "source"

// Item 是推荐链路中的统一承载结构：帖子、作者、分数、标签。
// Labels 用于解释与策略驱动；Score 用于排序决策。
type Item struct {
	PostID   int64
	AuthorID int64
	Score    float64
	Labels   map[string]utils.Label
}

func NewItem(postID, authorID int64) *Item {
	return &Item{
		PostID:   postID,
		AuthorID: authorID,
		Score:    0,
		Labels:   make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// Source 返回 item 的来源（ml / heuristic / exploration），未标记时返回空串。
func (it *Item) Source() string {
	if it.Labels == nil {
		return ""
	}
	return it.Labels[LabelSource].Value
}
