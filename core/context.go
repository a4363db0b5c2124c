package core

import "github.com/rushteam/feedrank/pkg/utils"

// RecommendContext 承载请求用户的上下文，贯穿整个重排链路透传。
type RecommendContext struct {
	UserID int64

	// Skills 是请求用户的技能列表（启发式打分 / 规则节点使用）
	Skills []string

	// LikeCount 是用户的点赞互动总数（ML 门控依据）
	LikeCount int64

	// Labels 是用户级标签，可驱动链路行为（如 cold_start）
	Labels map[string]utils.Label

	// Params 请求级参数（page、limit 等，规则节点可引用）
	Params map[string]any
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}
