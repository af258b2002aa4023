package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/toxguard/internal/model"
)

// PostgresPredictionRepo はPostgreSQLを使用した予測ラベルリポジトリ。
type PostgresPredictionRepo struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresPredictionRepo はPostgresPredictionRepoを生成する。
func NewPostgresPredictionRepo(db DBTX) *PostgresPredictionRepo {
	return &PostgresPredictionRepo{db: db, now: time.Now}
}

// FindByCommentID はコメント（comments.id）の予測ラベルを取得する。見つからない場合はnilを返す。
func (r *PostgresPredictionRepo) FindByCommentID(ctx context.Context, commentRowID string) (*model.Prediction, error) {
	p := &model.Prediction{}
	var source string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, comment_id, toxic, severe_toxic, obscene, threat, insult, identity_hate,
		        source, predicted_at
		 FROM predictions WHERE comment_id = $1`,
		commentRowID,
	).Scan(
		&p.ID, &p.CommentID,
		&p.Labels.Toxic, &p.Labels.SevereToxic, &p.Labels.Obscene,
		&p.Labels.Threat, &p.Labels.Insult, &p.Labels.IdentityHate,
		&source, &p.PredictedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("予測ラベルの取得に失敗しました: %w", err)
	}

	p.Source = model.PredictionSource(source)
	return p, nil
}

// Upsert は予測ラベルを冪等にUPSERTする。
// comment_idのUNIQUE制約を利用したINSERT ON CONFLICT DO UPDATEで実装し、
// 既存行がある場合は同じIDのまま6次元すべてを上書きする。
func (r *PostgresPredictionRepo) Upsert(
	ctx context.Context,
	commentRowID string,
	labels model.LabelSet,
	source model.PredictionSource,
) (*model.Prediction, error) {
	p := &model.Prediction{
		CommentID: commentRowID,
		Labels:    labels,
		Source:    source,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO predictions (id, comment_id, toxic, severe_toxic, obscene, threat, insult, identity_hate, source, predicted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (comment_id) DO UPDATE SET
		     toxic = EXCLUDED.toxic,
		     severe_toxic = EXCLUDED.severe_toxic,
		     obscene = EXCLUDED.obscene,
		     threat = EXCLUDED.threat,
		     insult = EXCLUDED.insult,
		     identity_hate = EXCLUDED.identity_hate,
		     source = EXCLUDED.source,
		     predicted_at = EXCLUDED.predicted_at
		 RETURNING id, predicted_at`,
		uuid.New().String(), commentRowID,
		labels.Toxic, labels.SevereToxic, labels.Obscene,
		labels.Threat, labels.Insult, labels.IdentityHate,
		string(source), r.now().UTC(),
	).Scan(&p.ID, &p.PredictedAt)
	if err != nil {
		return nil, fmt.Errorf("予測ラベルのUPSERTに失敗しました: %w", err)
	}

	return p, nil
}

// compile-time interface check
var _ PredictionRepository = (*PostgresPredictionRepo)(nil)
