package recommend

import (
	"context"
	"time"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/pkg/utils"
)

// 启发式打分权重。与 ML 分数（概率 0~1）不在同一量纲，二者绝不混排。
const (
	heuristicLikeWeight    = 0.3
	heuristicCommentWeight = 0.5
	heuristicSkillWeight   = 2.0
	heuristicHashtagWeight = 0.1
	heuristicRecencyBase   = 10.0
	heuristicRecencyDecay  = 0.1
)

// rankByHeuristic 是冷启动路径：无模型参与，按可解释的固定公式打分。
//
// score = 0.3*likes + 0.5*comments + 2*技能重合数 + 0.1*话题标签数 + 时新分
// 时新分 = max(0, 10 - 发帖小时数*0.1)，约 100 小时后衰减为 0。
func (s *Service) rankByHeuristic(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	candidates, err := s.feed.ListCandidatePosts(ctx, core.CandidateQuery{
		Limit:         s.poolSize,
		Since:         time.Now().Add(-HeuristicWindow),
		ExcludeAuthor: rctx.UserID,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	userSkills := make(map[string]struct{}, len(rctx.Skills))
	for _, skill := range rctx.Skills {
		userSkills[skill] = struct{}{}
	}

	// 同一作者的技能在候选池内只查一次
	authorSkills := make(map[int64][]string)
	now := time.Now()

	items := make([]*core.Item, 0, len(candidates))
	for _, p := range candidates {
		skills, ok := authorSkills[p.AuthorID]
		if !ok {
			skills, err = s.feed.GetUserSkills(ctx, p.AuthorID)
			if err != nil {
				return nil, err
			}
			authorSkills[p.AuthorID] = skills
		}

		it := core.NewItem(p.ID, p.AuthorID)
		it.Score = heuristicScore(p, userSkills, skills, now)
		it.PutLabel(core.LabelSource, utils.NewLabel(core.SourceHeuristic, "rank"))
		items = append(items, it)
	}
	sortByScore(items)
	return items, nil
}

func heuristicScore(p core.Post, userSkills map[string]struct{}, authorSkills []string, now time.Time) float64 {
	overlap := 0
	for _, skill := range authorSkills {
		if _, ok := userSkills[skill]; ok {
			overlap++
		}
	}

	hours := now.Sub(p.CreatedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := heuristicRecencyBase - hours*heuristicRecencyDecay
	if recency < 0 {
		recency = 0
	}

	return heuristicLikeWeight*float64(p.LikeCount) +
		heuristicCommentWeight*float64(p.CommentCount) +
		heuristicSkillWeight*float64(overlap) +
		heuristicHashtagWeight*float64(len(p.Hashtags)) +
		recency
}
