// Package feature 把用户与帖子向量化为定长数值向量。
//
// 向量布局（槽位由 vocab 包的词表决定）：
//   - 用户：128 话题兴趣（TF，评论权重 2×点赞）+ 64 技能 0/1 + 4 参与度标量 = 196
//   - 帖子：128 话题 0/1 + 64 作者技能 0/1 + 5 元特征 = 197
//
// 两者整体 L2 归一化；全零向量原样返回（绝不除零）。
package feature

import "math"

// 向量维度。
const (
	UserVectorDim = 128 + 64 + 4 // 196
	PostVectorDim = 128 + 64 + 5 // 197
)

// 用户参与度标量的归一化常数。
const (
	normLikesGiven    = 100.0
	normCommentsMade  = 50.0
	normPostsAuthored = 20.0

	// activityPlaceholder 是保留的活跃度槽位，当前恒为 0
	activityPlaceholder = 0.0
)

// 帖子元特征的归一化常数。
const (
	normPostLikes     = 50.0
	normPostComments  = 20.0
	normPostViews     = 500.0
	normFollowerCount = 100.0

	// recencyHalfLife 是时效衰减的时间常数（小时）：exp(-hours/48)
	recencyHalfLife = 48.0
)

// L2Normalize 原地做 L2 归一化。
// 全零向量是合法输入（缺失帖子 / 零历史用户），保持不变。
func L2Normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// clamp01 把归一化后的计数钳制到 [0, 1]。
func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// recencyScore 计算时效分：全新帖子为 1.0，按 48 小时时间常数指数衰减。
func recencyScore(hoursSincePost float64) float64 {
	if hoursSincePost < 0 {
		hoursSincePost = 0
	}
	return math.Exp(-hoursSincePost / recencyHalfLife)
}
