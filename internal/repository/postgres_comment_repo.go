package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/toxguard/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しないことを示す。
var ErrNotFound = errors.New("record not found")

// commentSelectSQL はコメントを投稿IDと予測ラベル付きで取得するSELECT句。
const commentSelectSQL = `SELECT c.id, c.post_id, c.comment_id, c.user_name, c.content,
        c.created_at, c.fetched_at, c.is_hidden, p.post_id,
        pr.id, pr.toxic, pr.severe_toxic, pr.obscene, pr.threat, pr.insult, pr.identity_hate,
        pr.source, pr.predicted_at
 FROM comments c
 JOIN posts p ON p.id = c.post_id
 LEFT JOIN predictions pr ON pr.comment_id = c.id`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCommentWithPrediction はcommentSelectSQLの1行を読み取る。
func scanCommentWithPrediction(s rowScanner) (*model.CommentWithPrediction, error) {
	c := &model.CommentWithPrediction{}
	var predID, source sql.NullString
	var toxic, severeToxic, obscene, threat, insult, identityHate sql.NullBool
	var predictedAt sql.NullTime

	err := s.Scan(
		&c.ID, &c.PostID, &c.CommentID, &c.UserName, &c.Content,
		&c.CreatedAt, &c.FetchedAt, &c.IsHidden, &c.RemotePostID,
		&predID, &toxic, &severeToxic, &obscene, &threat, &insult, &identityHate,
		&source, &predictedAt,
	)
	if err != nil {
		return nil, err
	}

	if predID.Valid {
		c.Prediction = &model.Prediction{
			ID:        predID.String,
			CommentID: c.ID,
			Labels: model.LabelSet{
				Toxic:        toxic.Bool,
				SevereToxic:  severeToxic.Bool,
				Obscene:      obscene.Bool,
				Threat:       threat.Bool,
				Insult:       insult.Bool,
				IdentityHate: identityHate.Bool,
			},
			Source:      model.PredictionSource(source.String),
			PredictedAt: predictedAt.Time,
		}
	}

	return c, nil
}

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db DBTX
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db DBTX) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// FindByID はコメントを予測ラベル付きで取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, commentID string) (*model.CommentWithPrediction, error) {
	row := r.db.QueryRowContext(ctx, commentSelectSQL+` WHERE c.comment_id = $1`, commentID)

	c, err := scanCommentWithPrediction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindByIDs は指定IDのコメントを予測ラベル付きで取得する。
// 存在しないIDは無視し、指定順で返す。
func (r *PostgresCommentRepo) FindByIDs(ctx context.Context, commentIDs []string) ([]*model.CommentWithPrediction, error) {
	if len(commentIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		commentSelectSQL+` WHERE c.comment_id = ANY($1::text[])
		 ORDER BY array_position($1::text[], c.comment_id::text)`,
		pq.Array(commentIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("コメントの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

// CreateIfAbsent はコメントが未保存の場合のみ作成する。
// comment_idのUNIQUE制約を利用したINSERT ON CONFLICT DO NOTHINGで実装し、既存の内容は上書きしない。
func (r *PostgresCommentRepo) CreateIfAbsent(ctx context.Context, comment *model.Comment) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, comment_id, user_name, content, created_at, fetched_at, is_hidden)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (comment_id) DO NOTHING`,
		comment.ID, comment.PostID, comment.CommentID, comment.UserName, comment.Content,
		comment.CreatedAt, comment.FetchedAt, comment.IsHidden,
	)
	if err != nil {
		return false, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// SetHidden は非表示フラグを更新する。対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresCommentRepo) SetHidden(ctx context.Context, commentID string, hidden bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE comments SET is_hidden = $2 WHERE comment_id = $1`,
		commentID, hidden,
	)
	if err != nil {
		return fmt.Errorf("非表示フラグの更新に失敗しました: %w", err)
	}
	return requireAffected(result, commentID)
}

// Delete はコメントを削除する。予測ラベルはCASCADE削除される。
// 対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresCommentRepo) Delete(ctx context.Context, commentID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE comment_id = $1`,
		commentID,
	)
	if err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return requireAffected(result, commentID)
}

// ListByOwner は指定アカウントが所有する投稿のコメントを絞り込み条件に従って返す。
// コメントの作成日時の降順で返す。
func (r *PostgresCommentRepo) ListByOwner(ctx context.Context, ownerID string, filter CommentFilter) ([]*model.CommentWithPrediction, error) {
	query := commentSelectSQL + ` WHERE p.fetched_by = $1`
	args := []any{ownerID}

	switch filter.Status {
	case model.CommentStatusAnalyzed:
		query += ` AND pr.id IS NOT NULL`
	case model.CommentStatusUnanalyzed:
		query += ` AND pr.id IS NULL`
	}
	if filter.Search != "" {
		args = append(args, likePattern(filter.Search))
		query += fmt.Sprintf(` AND (c.content ILIKE $%d OR c.user_name ILIKE $%d)`, len(args), len(args))
	}
	query += ` ORDER BY c.created_at DESC, c.comment_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

func collectComments(rows *sql.Rows) ([]*model.CommentWithPrediction, error) {
	var comments []*model.CommentWithPrediction
	for rows.Next() {
		c, err := scanCommentWithPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("コメントの読み取りに失敗しました: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}
	return comments, nil
}

func requireAffected(result sql.Result, commentID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
