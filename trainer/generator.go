// Package trainer 实现离线训练：样本生成、训练流水线、周期调度。
package trainer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/feedrank/core"
	"github.com/rushteam/feedrank/feature"
	"github.com/rushteam/feedrank/model"
)

// 样本生成参数。
const (
	// MinLikedPosts 点赞少于该数的用户信号不足，跳过
	MinLikedPosts = 2

	// MaxPositivesPerUser 每个用户最多取多少条点赞帖子作为正例
	MaxPositivesPerUser = 50

	// NegativeRatio 每个正例采样多少个负例（类别不平衡但规模有界）
	NegativeRatio = 3
)

// Generator 从观测到的互动构建带标签的训练样本。
//
// 正例：用户点赞过的帖子（label 1）。
// 负例：用户未点赞且非自己发布的近期帖子（label 0），按固定比例采样。
// 每个用户的特征向量只计算一次，在其所有正负例间复用。
type Generator struct {
	feed     core.FeedStore
	features *feature.Builder
	log      zerolog.Logger
}

func NewGenerator(feed core.FeedStore, features *feature.Builder, log zerolog.Logger) *Generator {
	return &Generator{feed: feed, features: features, log: log}
}

// Generate 为所有有足够点赞信号的用户生成训练样本。
// 此阶段不保证全局打散（训练器自己做 shuffle）。
func (g *Generator) Generate(ctx context.Context) ([]model.Example, error) {
	users, err := g.feed.ListUsersWithLikes(ctx, MinLikedPosts)
	if err != nil {
		return nil, err
	}

	var examples []model.Example
	for _, userID := range users {
		userExamples, err := g.generateForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		examples = append(examples, userExamples...)
	}

	g.log.Info().Int("users", len(users)).Int("examples", len(examples)).Msg("trainer: examples generated")
	return examples, nil
}

func (g *Generator) generateForUser(ctx context.Context, userID int64) ([]model.Example, error) {
	liked, err := g.feed.GetLikedPosts(ctx, userID, MaxPositivesPerUser)
	if err != nil {
		return nil, err
	}
	if len(liked) < MinLikedPosts {
		return nil, nil
	}

	userVec, err := g.features.BuildUserVector(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 负例池：近期帖子，排除已点赞与自己发布的
	negatives, err := g.feed.ListCandidatePosts(ctx, core.CandidateQuery{
		Limit:          len(liked) * NegativeRatio,
		ExcludeAuthor:  userID,
		ExcludeLikedBy: userID,
	})
	if err != nil {
		return nil, err
	}

	postIDs := make([]int64, 0, len(liked)+len(negatives))
	for _, p := range liked {
		postIDs = append(postIDs, p.ID)
	}
	for _, p := range negatives {
		postIDs = append(postIDs, p.ID)
	}

	postVecs, err := g.features.BuildPostVectors(ctx, postIDs)
	if err != nil {
		return nil, err
	}

	examples := make([]model.Example, 0, len(postIDs))
	for i := range postIDs {
		label := 0.0
		if i < len(liked) {
			label = 1.0
		}
		examples = append(examples, model.Example{
			Input: concat(userVec, postVecs[i]),
			Label: label,
		})
	}
	return examples, nil
}

func concat(userVec, postVec []float64) []float64 {
	input := make([]float64, 0, len(userVec)+len(postVec))
	input = append(input, userVec...)
	input = append(input, postVec...)
	return input
}
