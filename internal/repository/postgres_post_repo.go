package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/toxguard/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db DBTX
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db DBTX) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// ExistingPostIDs は指定されたFacebook投稿IDのうち、既に保存済みのものを返す。
func (r *PostgresPostRepo) ExistingPostIDs(ctx context.Context, postIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(postIDs) == 0 {
		return existing, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT post_id FROM posts WHERE post_id = ANY($1)`,
		pq.Array(postIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("既存投稿IDの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("既存投稿IDの読み取りに失敗しました: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("既存投稿IDの走査に失敗しました: %w", err)
	}

	return existing, nil
}

// CreateIfAbsent は投稿が未保存の場合のみ作成する。
// post_idのUNIQUE制約を利用したINSERT ON CONFLICT DO NOTHINGで実装する。
func (r *PostgresPostRepo) CreateIfAbsent(ctx context.Context, post *model.Post) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, post_id, message, created_at, fetched_at, fetched_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (post_id) DO NOTHING`,
		post.ID, post.PostID, post.Message, post.CreatedAt, post.FetchedAt, nullString(post.FetchedBy),
	)
	if err != nil {
		return false, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FindByPostID はFacebook投稿IDで投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByPostID(ctx context.Context, postID string) (*model.Post, error) {
	post := &model.Post{}
	var fetchedBy sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, post_id, message, created_at, fetched_at, fetched_by
		 FROM posts WHERE post_id = $1`,
		postID,
	).Scan(&post.ID, &post.PostID, &post.Message, &post.CreatedAt, &post.FetchedAt, &fetchedBy)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}

	post.FetchedBy = nullStringValue(fetchedBy)
	return post, nil
}

// ListByOwner は指定アカウントが所有する投稿をFacebook上の作成日時の降順で返す。
// searchが空でない場合は投稿IDまたは本文で絞り込む。
func (r *PostgresPostRepo) ListByOwner(ctx context.Context, ownerID, search string) ([]*model.Post, error) {
	query := `SELECT id, post_id, message, created_at, fetched_at, fetched_by
		 FROM posts WHERE fetched_by = $1`
	args := []any{ownerID}
	if search != "" {
		args = append(args, likePattern(search))
		query += ` AND (post_id ILIKE $2 OR message ILIKE $2)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post := &model.Post{}
		var fetchedBy sql.NullString
		if err := rows.Scan(&post.ID, &post.PostID, &post.Message, &post.CreatedAt, &post.FetchedAt, &fetchedBy); err != nil {
			return nil, fmt.Errorf("投稿の読み取りに失敗しました: %w", err)
		}
		post.FetchedBy = nullStringValue(fetchedBy)
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}

	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
