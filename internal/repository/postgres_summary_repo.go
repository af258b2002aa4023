package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/toxguard/internal/model"
)

// PostgresSummaryRepo はPostgreSQLを使用した集計リポジトリ。
type PostgresSummaryRepo struct {
	db DBTX
}

// NewPostgresSummaryRepo はPostgresSummaryRepoを生成する。
func NewPostgresSummaryRepo(db DBTX) *PostgresSummaryRepo {
	return &PostgresSummaryRepo{db: db}
}

// ToxicitySummary は指定アカウントが所有する投稿の、現存コメントと削除済みコメントの毒性集計を返す。
// 総数は未解析コメントを含む。NonToxicは総数からtoxicの件数を引いた値とする。
func (r *PostgresSummaryRepo) ToxicitySummary(ctx context.Context, ownerID string) (*model.ToxicitySummary, error) {
	s := &model.ToxicitySummary{}

	err := r.db.QueryRowContext(ctx,
		`WITH labels AS (
		     SELECT pr.toxic, pr.severe_toxic, pr.obscene, pr.threat, pr.insult, pr.identity_hate,
		            (pr.id IS NOT NULL) AS analyzed
		     FROM comments c
		     JOIN posts p ON p.id = c.post_id
		     LEFT JOIN predictions pr ON pr.comment_id = c.id
		     WHERE p.fetched_by = $1
		     UNION ALL
		     SELECT t.toxic, t.severe_toxic, t.obscene, t.threat, t.insult, t.identity_hate, TRUE
		     FROM tombstones t
		     JOIN posts p ON p.id = t.post_id
		     WHERE p.fetched_by = $1
		 )
		 SELECT count(*),
		        count(*) FILTER (WHERE toxic),
		        count(*) FILTER (WHERE severe_toxic),
		        count(*) FILTER (WHERE obscene),
		        count(*) FILTER (WHERE threat),
		        count(*) FILTER (WHERE insult),
		        count(*) FILTER (WHERE identity_hate)
		 FROM labels`,
		ownerID,
	).Scan(&s.TotalComments, &s.Toxic, &s.SevereToxic, &s.Obscene, &s.Threat, &s.Insult, &s.IdentityHate)
	if err != nil {
		return nil, fmt.Errorf("毒性集計の取得に失敗しました: %w", err)
	}

	s.NonToxic = s.TotalComments - s.Toxic
	return s, nil
}

// compile-time interface check
var _ SummaryRepository = (*PostgresSummaryRepo)(nil)
