package core

import (
	"context"
	"time"
)

// Post 是推荐链路可见的帖子读模型：互动计数、话题标签、作者信息。
// 只承载排序所需的窄读视图，完整的帖子记录见 FeedPost。
type Post struct {
	ID           int64
	AuthorID     int64
	Hashtags     []string // 已小写归一化的话题标签
	LikeCount    int64
	CommentCount int64
	ViewCount    int64
	CreatedAt    time.Time
}

// FeedPost 是最终返回给调用方的完整帖子记录（结果页水合用）。
type FeedPost struct {
	Post
	Content    string
	AuthorName string
	Liked      bool // 请求用户是否已点赞
}

// UserStats 是用户的互动统计，用于参与度标量特征与 ML 门控。
type UserStats struct {
	LikesGiven    int64 // 点赞数
	CommentsMade  int64 // 评论数
	PostsAuthored int64 // 发帖数
	FollowerCount int64 // 粉丝数（帖子向量的作者维度使用）
}

// CandidateQuery 是候选帖子查询条件。
// 所有排除条件在存储层完成（单次批量查询，避免 N+1）。
type CandidateQuery struct {
	Limit          int       // 候选池上限（必填，约束单次请求成本）
	Since          time.Time // 只取该时间之后创建的帖子（零值表示不限）
	ExcludeAuthor  int64     // 排除该用户发布的帖子（0 表示不排除）
	ExcludeLikedBy int64     // 排除该用户已点赞的帖子（0 表示不排除）
	ExcludeIDs     []int64   // 排除指定帖子（探索候选池去重用）
}

// FeedStore 是关系数据的领域读接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（feedstore）实现
//   - 只暴露推荐引擎需要的窄读视图，不暴露存储 schema
//   - 查询失败必须向上传播：没有数据就没有正确的推荐（与缓存不同）
//
// 实现：
//   - feedstore.SQLiteStore 实现此接口
//   - feedstore.MemoryStore 实现此接口（测试/演示）
type FeedStore interface {
	// GetLikedPosts 返回用户最近点赞的帖子（含话题标签），按时间倒序
	GetLikedPosts(ctx context.Context, userID int64, limit int) ([]Post, error)

	// GetCommentedPosts 返回用户最近评论过的帖子（含话题标签），按时间倒序。
	// 同一帖子的多条评论返回多条记录（评论权重按次数累积）。
	GetCommentedPosts(ctx context.Context, userID int64, limit int) ([]Post, error)

	// GetUserSkills 返回用户档案上的技能列表（已小写归一化）
	GetUserSkills(ctx context.Context, userID int64) ([]string, error)

	// GetUserStats 返回用户互动统计
	GetUserStats(ctx context.Context, userID int64) (UserStats, error)

	// CountLikes 返回用户的点赞互动总数（ML 门控用）
	CountLikes(ctx context.Context, userID int64) (int64, error)

	// GetPost 返回单个帖子；不存在时返回 nil, nil（缺失实体不是错误）
	GetPost(ctx context.Context, postID int64) (*Post, error)

	// ListCandidatePosts 按条件返回候选帖子，按创建时间倒序
	ListCandidatePosts(ctx context.Context, q CandidateQuery) ([]Post, error)

	// GetPostsByIDs 批量返回完整帖子记录；缺失的 ID 不出现在结果中
	GetPostsByIDs(ctx context.Context, postIDs []int64) (map[int64]FeedPost, error)

	// GetLikedSet 返回 postIDs 中该用户已点赞的子集
	GetLikedSet(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error)

	// ListUsersWithLikes 返回点赞数不低于 minLikes 的用户 ID（训练样本生成用）
	ListUsersWithLikes(ctx context.Context, minLikes int) ([]int64, error)

	// ListPostHashtags 返回全量帖子的话题标签列表（词表构建用）
	ListPostHashtags(ctx context.Context) ([][]string, error)

	// ListUserSkills 返回全量用户的技能列表（词表构建用）
	ListUserSkills(ctx context.Context) ([][]string, error)

	// Close 关闭连接/释放资源
	Close() error
}
