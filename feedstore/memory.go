package feedstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rushteam/feedrank/core"
)

// MemoryStore 是 core.FeedStore 的内存实现，测试与演示使用。
// 通过 AddUser/AddPost/AddLike/AddComment 等写方法填充数据。
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[int64]memUser
	posts     map[int64]memPost
	likes     []memInteraction
	comments  []memInteraction
	followers map[int64]int64 // followee -> 粉丝数
}

var _ core.FeedStore = (*MemoryStore)(nil)

type memUser struct {
	name   string
	skills []string
}

type memPost struct {
	core.Post
	content    string
	authorName string
}

type memInteraction struct {
	userID    int64
	postID    int64
	createdAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]memUser),
		posts:     make(map[int64]memPost),
		followers: make(map[int64]int64),
	}
}

// AddUser 写入用户及其技能档案。
func (m *MemoryStore) AddUser(id int64, name string, skills ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	normalized := make([]string, 0, len(skills))
	for _, s := range skills {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(s)))
	}
	m.users[id] = memUser{name: name, skills: normalized}
}

// AddPost 写入帖子。
func (m *MemoryStore) AddPost(p core.Post, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]string, 0, len(p.Hashtags))
	for _, t := range p.Hashtags {
		tags = append(tags, strings.ToLower(strings.TrimSpace(t)))
	}
	p.Hashtags = tags
	name := m.users[p.AuthorID].name
	m.posts[p.ID] = memPost{Post: p, content: content, authorName: name}
}

// AddLike 记录一次点赞并递增帖子计数。
func (m *MemoryStore) AddLike(userID, postID int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likes = append(m.likes, memInteraction{userID: userID, postID: postID, createdAt: at})
	if p, ok := m.posts[postID]; ok {
		p.LikeCount++
		m.posts[postID] = p
	}
}

// AddComment 记录一次评论并递增帖子计数。
func (m *MemoryStore) AddComment(userID, postID int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, memInteraction{userID: userID, postID: postID, createdAt: at})
	if p, ok := m.posts[postID]; ok {
		p.CommentCount++
		m.posts[postID] = p
	}
}

// SetFollowerCount 设置用户粉丝数。
func (m *MemoryStore) SetFollowerCount(userID, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followers[userID] = count
}

func (m *MemoryStore) GetLikedPosts(ctx context.Context, userID int64, limit int) ([]core.Post, error) {
	return m.interactionPosts(m.likes, userID, limit), nil
}

func (m *MemoryStore) GetCommentedPosts(ctx context.Context, userID int64, limit int) ([]core.Post, error) {
	return m.interactionPosts(m.comments, userID, limit), nil
}

func (m *MemoryStore) GetUserSkills(ctx context.Context, userID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.users[userID].skills...), nil
}

func (m *MemoryStore) GetUserStats(ctx context.Context, userID int64) (core.UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := core.UserStats{FollowerCount: m.followers[userID]}
	for _, l := range m.likes {
		if l.userID == userID {
			stats.LikesGiven++
		}
	}
	for _, c := range m.comments {
		if c.userID == userID {
			stats.CommentsMade++
		}
	}
	for _, p := range m.posts {
		if p.AuthorID == userID {
			stats.PostsAuthored++
		}
	}
	return stats, nil
}

func (m *MemoryStore) CountLikes(ctx context.Context, userID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, l := range m.likes {
		if l.userID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) GetPost(ctx context.Context, postID int64) (*core.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[postID]
	if !ok {
		return nil, nil
	}
	post := p.Post
	return &post, nil
}

func (m *MemoryStore) ListCandidatePosts(ctx context.Context, q core.CandidateQuery) ([]core.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	likedBy := make(map[int64]bool)
	if q.ExcludeLikedBy != 0 {
		for _, l := range m.likes {
			if l.userID == q.ExcludeLikedBy {
				likedBy[l.postID] = true
			}
		}
	}
	excluded := make(map[int64]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		excluded[id] = true
	}

	var candidates []core.Post
	for _, p := range m.posts {
		if !q.Since.IsZero() && p.CreatedAt.Before(q.Since) {
			continue
		}
		if q.ExcludeAuthor != 0 && p.AuthorID == q.ExcludeAuthor {
			continue
		}
		if likedBy[p.ID] || excluded[p.ID] {
			continue
		}
		candidates = append(candidates, p.Post)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, nil
}

func (m *MemoryStore) GetPostsByIDs(ctx context.Context, postIDs []int64) (map[int64]core.FeedPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[int64]core.FeedPost, len(postIDs))
	for _, id := range postIDs {
		p, ok := m.posts[id]
		if !ok {
			continue
		}
		result[id] = core.FeedPost{Post: p.Post, Content: p.content, AuthorName: p.authorName}
	}
	return result, nil
}

func (m *MemoryStore) GetLikedSet(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[int64]bool, len(postIDs))
	for _, id := range postIDs {
		wanted[id] = true
	}
	liked := make(map[int64]bool)
	for _, l := range m.likes {
		if l.userID == userID && wanted[l.postID] {
			liked[l.postID] = true
		}
	}
	return liked, nil
}

func (m *MemoryStore) ListUsersWithLikes(ctx context.Context, minLikes int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[int64]int)
	for _, l := range m.likes {
		counts[l.userID]++
	}
	var users []int64
	for id, count := range counts {
		if count >= minLikes {
			users = append(users, id)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (m *MemoryStore) ListPostHashtags(ctx context.Context) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.posts))
	for id := range m.posts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	groups := make([][]string, 0, len(ids))
	for _, id := range ids {
		if tags := m.posts[id].Hashtags; len(tags) > 0 {
			groups = append(groups, append([]string(nil), tags...))
		}
	}
	return groups, nil
}

func (m *MemoryStore) ListUserSkills(ctx context.Context) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	groups := make([][]string, 0, len(ids))
	for _, id := range ids {
		if skills := m.users[id].skills; len(skills) > 0 {
			groups = append(groups, append([]string(nil), skills...))
		}
	}
	return groups, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) interactionPosts(list []memInteraction, userID int64, limit int) []core.Post {
	m.mu.RLock()
	defer m.mu.RUnlock()

	own := make([]memInteraction, 0)
	for _, it := range list {
		if it.userID == userID {
			own = append(own, it)
		}
	}
	sort.SliceStable(own, func(i, j int) bool { return own[i].createdAt.After(own[j].createdAt) })
	if limit > 0 && len(own) > limit {
		own = own[:limit]
	}

	posts := make([]core.Post, 0, len(own))
	for _, it := range own {
		if p, ok := m.posts[it.postID]; ok {
			posts = append(posts, p.Post)
		}
	}
	return posts
}
