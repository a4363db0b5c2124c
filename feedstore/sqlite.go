// Package feedstore 提供 core.FeedStore 的存储实现：
// SQLite（生产嵌入式）与内存（测试/演示）。
package feedstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rushteam/feedrank/core"
)

// SQLiteStore 基于嵌入式 SQLite 实现 core.FeedStore。
// 只读推荐引擎需要的窄视图；写入由上层应用负责。
type SQLiteStore struct {
	db *sql.DB
}

var _ core.FeedStore = (*SQLiteStore)(nil)

// NewSQLiteStore 打开（必要时创建）path 处的数据库。
// SQLite 写并发有限，连接池固定为 1 写多读由 WAL 承担。
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("feedstore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Migrate 建表（IF NOT EXISTS，可重复执行）。
// 时间列统一存 Unix 秒，避免驱动间 DATETIME 解析差异。
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS user_skills (
	user_id INTEGER NOT NULL REFERENCES users(id),
	skill   TEXT NOT NULL,
	PRIMARY KEY (user_id, skill)
);
CREATE TABLE IF NOT EXISTS follows (
	follower_id INTEGER NOT NULL REFERENCES users(id),
	followee_id INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (follower_id, followee_id)
);
CREATE TABLE IF NOT EXISTS posts (
	id            INTEGER PRIMARY KEY,
	author_id     INTEGER NOT NULL REFERENCES users(id),
	content       TEXT NOT NULL DEFAULT '',
	like_count    INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	view_count    INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);
CREATE TABLE IF NOT EXISTS post_hashtags (
	post_id INTEGER NOT NULL REFERENCES posts(id),
	hashtag TEXT NOT NULL,
	PRIMARY KEY (post_id, hashtag)
);
CREATE TABLE IF NOT EXISTS likes (
	user_id    INTEGER NOT NULL REFERENCES users(id),
	post_id    INTEGER NOT NULL REFERENCES posts(id),
	created_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, post_id)
);
CREATE INDEX IF NOT EXISTS idx_likes_user ON likes(user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS comments (
	id         INTEGER PRIMARY KEY,
	user_id    INTEGER NOT NULL REFERENCES users(id),
	post_id    INTEGER NOT NULL REFERENCES posts(id),
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comments_user ON comments(user_id, created_at DESC);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("feedstore: migrate: %w", err)
	}
	return nil
}

const postColumns = "p.id, p.author_id, p.like_count, p.comment_count, p.view_count, p.created_at"

func (s *SQLiteStore) GetLikedPosts(ctx context.Context, userID int64, limit int) ([]core.Post, error) {
	query := `SELECT ` + postColumns + `
		FROM likes l JOIN posts p ON p.id = l.post_id
		WHERE l.user_id = ?
		ORDER BY l.created_at DESC LIMIT ?`
	return s.queryPosts(ctx, query, userID, limit)
}

func (s *SQLiteStore) GetCommentedPosts(ctx context.Context, userID int64, limit int) ([]core.Post, error) {
	// 同一帖子多条评论返回多行：评论权重按次数累积
	query := `SELECT ` + postColumns + `
		FROM comments c JOIN posts p ON p.id = c.post_id
		WHERE c.user_id = ?
		ORDER BY c.created_at DESC LIMIT ?`
	return s.queryPosts(ctx, query, userID, limit)
}

func (s *SQLiteStore) GetUserSkills(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT LOWER(TRIM(skill)) FROM user_skills WHERE user_id = ? ORDER BY skill`, userID)
	if err != nil {
		return nil, fmt.Errorf("feedstore: query user skills: %w", err)
	}
	defer rows.Close()

	var skills []string
	for rows.Next() {
		var skill string
		if err := rows.Scan(&skill); err != nil {
			return nil, err
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

func (s *SQLiteStore) GetUserStats(ctx context.Context, userID int64) (core.UserStats, error) {
	var stats core.UserStats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM likes WHERE user_id = ?),
		(SELECT COUNT(*) FROM comments WHERE user_id = ?),
		(SELECT COUNT(*) FROM posts WHERE author_id = ?),
		(SELECT COUNT(*) FROM follows WHERE followee_id = ?)`,
		userID, userID, userID, userID,
	).Scan(&stats.LikesGiven, &stats.CommentsMade, &stats.PostsAuthored, &stats.FollowerCount)
	if err != nil {
		return core.UserStats{}, fmt.Errorf("feedstore: query user stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) CountLikes(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("feedstore: count likes: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) GetPost(ctx context.Context, postID int64) (*core.Post, error) {
	posts, err := s.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, postID)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil // 缺失实体不是错误
	}
	return &posts[0], nil
}

func (s *SQLiteStore) ListCandidatePosts(ctx context.Context, q core.CandidateQuery) ([]core.Post, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		where = append(where, "p.created_at >= ?")
		args = append(args, q.Since.Unix())
	}
	if q.ExcludeAuthor != 0 {
		where = append(where, "p.author_id != ?")
		args = append(args, q.ExcludeAuthor)
	}
	if q.ExcludeLikedBy != 0 {
		where = append(where, "p.id NOT IN (SELECT post_id FROM likes WHERE user_id = ?)")
		args = append(args, q.ExcludeLikedBy)
	}
	if len(q.ExcludeIDs) > 0 {
		where = append(where, "p.id NOT IN ("+placeholders(len(q.ExcludeIDs))+")")
		for _, id := range q.ExcludeIDs {
			args = append(args, id)
		}
	}

	query := `SELECT ` + postColumns + ` FROM posts p`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.created_at DESC LIMIT ?"
	args = append(args, q.Limit)

	return s.queryPosts(ctx, query, args...)
}

func (s *SQLiteStore) GetPostsByIDs(ctx context.Context, postIDs []int64) (map[int64]core.FeedPost, error) {
	result := make(map[int64]core.FeedPost, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}

	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}
	query := `SELECT ` + postColumns + `, p.content, u.name
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.id IN (` + placeholders(len(postIDs)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("feedstore: query posts by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fp        core.FeedPost
			createdAt int64
		)
		if err := rows.Scan(&fp.ID, &fp.AuthorID, &fp.LikeCount, &fp.CommentCount,
			&fp.ViewCount, &createdAt, &fp.Content, &fp.AuthorName); err != nil {
			return nil, err
		}
		fp.CreatedAt = time.Unix(createdAt, 0)
		result[fp.ID] = fp
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hashtags, err := s.loadHashtags(ctx, postIDs)
	if err != nil {
		return nil, err
	}
	for id, fp := range result {
		fp.Hashtags = hashtags[id]
		result[id] = fp
	}
	return result, nil
}

func (s *SQLiteStore) GetLikedSet(ctx context.Context, userID int64, postIDs []int64) (map[int64]bool, error) {
	liked := make(map[int64]bool, len(postIDs))
	if len(postIDs) == 0 {
		return liked, nil
	}

	args := make([]any, 0, len(postIDs)+1)
	args = append(args, userID)
	for _, id := range postIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id FROM likes WHERE user_id = ? AND post_id IN (`+placeholders(len(postIDs))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("feedstore: query liked set: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		liked[id] = true
	}
	return liked, rows.Err()
}

func (s *SQLiteStore) ListUsersWithLikes(ctx context.Context, minLikes int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM likes GROUP BY user_id HAVING COUNT(*) >= ? ORDER BY user_id`, minLikes)
	if err != nil {
		return nil, fmt.Errorf("feedstore: query users with likes: %w", err)
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) ListPostHashtags(ctx context.Context) ([][]string, error) {
	return s.listGrouped(ctx,
		`SELECT post_id, LOWER(TRIM(hashtag)) FROM post_hashtags ORDER BY post_id`)
}

func (s *SQLiteStore) ListUserSkills(ctx context.Context) ([][]string, error) {
	return s.listGrouped(ctx,
		`SELECT user_id, LOWER(TRIM(skill)) FROM user_skills ORDER BY user_id`)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// queryPosts 执行帖子查询并补齐话题标签。
func (s *SQLiteStore) queryPosts(ctx context.Context, query string, args ...any) ([]core.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("feedstore: query posts: %w", err)
	}
	defer rows.Close()

	var posts []core.Post
	for rows.Next() {
		var (
			p         core.Post
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.LikeCount, &p.CommentCount, &p.ViewCount, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(createdAt, 0)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return posts, nil
	}

	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	hashtags, err := s.loadHashtags(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Hashtags = hashtags[posts[i].ID]
	}
	return posts, nil
}

func (s *SQLiteStore) loadHashtags(ctx context.Context, postIDs []int64) (map[int64][]string, error) {
	args := make([]any, len(postIDs))
	for i, id := range postIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id, LOWER(TRIM(hashtag)) FROM post_hashtags WHERE post_id IN (`+placeholders(len(postIDs))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("feedstore: query hashtags: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]string)
	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		result[id] = append(result[id], tag)
	}
	return result, rows.Err()
}

// listGrouped 把 (owner_id, term) 行按 owner 分组为词表构建输入。
func (s *SQLiteStore) listGrouped(ctx context.Context, query string) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("feedstore: query grouped terms: %w", err)
	}
	defer rows.Close()

	var (
		groups  [][]string
		current []string
		lastID  int64
		started bool
	)
	for rows.Next() {
		var (
			id   int64
			term string
		)
		if err := rows.Scan(&id, &term); err != nil {
			return nil, err
		}
		if started && id != lastID {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, term)
		lastID = id
		started = true
	}
	if started {
		groups = append(groups, current)
	}
	return groups, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
