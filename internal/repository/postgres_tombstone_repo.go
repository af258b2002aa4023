package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/toxguard/internal/model"
)

const tombstoneSelectSQL = `SELECT t.id, t.post_id, t.comment_id, t.content, t.user_name,
        t.toxic, t.severe_toxic, t.obscene, t.threat, t.insult, t.identity_hate,
        t.reason_for_deletion, t.deleted_at
 FROM tombstones t`

func scanTombstone(s rowScanner) (*model.Tombstone, error) {
	t := &model.Tombstone{}
	var postID, userName, reason sql.NullString

	err := s.Scan(
		&t.ID, &postID, &t.CommentID, &t.Content, &userName,
		&t.Labels.Toxic, &t.Labels.SevereToxic, &t.Labels.Obscene,
		&t.Labels.Threat, &t.Labels.Insult, &t.Labels.IdentityHate,
		&reason, &t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if postID.Valid {
		t.PostID = &postID.String
	}
	t.UserName = nullStringValue(userName)
	t.ReasonForDeletion = nullStringValue(reason)
	return t, nil
}

// PostgresTombstoneRepo はPostgreSQLを使用した削除済みコメント記録リポジトリ。
type PostgresTombstoneRepo struct {
	db DBTX
}

// NewPostgresTombstoneRepo はPostgresTombstoneRepoを生成する。
func NewPostgresTombstoneRepo(db DBTX) *PostgresTombstoneRepo {
	return &PostgresTombstoneRepo{db: db}
}

// CreateIfAbsent は削除記録を作成する。
// comment_idのUNIQUE制約に衝突した場合は既存の記録を維持し、falseを返す。
// IDが未設定の場合は新規に採番する。
func (r *PostgresTombstoneRepo) CreateIfAbsent(ctx context.Context, t *model.Tombstone) (bool, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO tombstones (id, post_id, comment_id, content, user_name,
		     toxic, severe_toxic, obscene, threat, insult, identity_hate,
		     reason_for_deletion, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (comment_id) DO NOTHING`,
		t.ID, t.PostID, t.CommentID, t.Content, nullString(t.UserName),
		t.Labels.Toxic, t.Labels.SevereToxic, t.Labels.Obscene,
		t.Labels.Threat, t.Labels.Insult, t.Labels.IdentityHate,
		t.ReasonForDeletion, t.DeletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("削除記録の作成に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FindByCommentID はFacebookコメントIDで削除記録を取得する。見つからない場合はnilを返す。
func (r *PostgresTombstoneRepo) FindByCommentID(ctx context.Context, commentID string) (*model.Tombstone, error) {
	row := r.db.QueryRowContext(ctx, tombstoneSelectSQL+` WHERE t.comment_id = $1`, commentID)

	t, err := scanTombstone(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("削除記録の取得に失敗しました: %w", err)
	}
	return t, nil
}

// ListByOwner は指定アカウントが所有する投稿の削除記録を削除日時の降順で返す。
// 投稿が削除されpost_idがNULLとなった記録は対象外となる。
func (r *PostgresTombstoneRepo) ListByOwner(ctx context.Context, ownerID, search string) ([]*model.Tombstone, error) {
	query := tombstoneSelectSQL + ` JOIN posts p ON p.id = t.post_id WHERE p.fetched_by = $1`
	args := []any{ownerID}
	if search != "" {
		args = append(args, likePattern(search))
		query += ` AND (t.content ILIKE $2 OR t.user_name ILIKE $2)`
	}
	query += ` ORDER BY t.deleted_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("削除記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tombstones []*model.Tombstone
	for rows.Next() {
		t, err := scanTombstone(rows)
		if err != nil {
			return nil, fmt.Errorf("削除記録の読み取りに失敗しました: %w", err)
		}
		tombstones = append(tombstones, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("削除記録一覧の走査に失敗しました: %w", err)
	}

	return tombstones, nil
}

// compile-time interface check
var _ TombstoneRepository = (*PostgresTombstoneRepo)(nil)
