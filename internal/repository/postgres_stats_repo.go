package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/toxguard/internal/model"
)

const statsSelectSQL = `SELECT moderator_id, comments_analyzed, comments_fetched, comments_deleted,
        comments_hidden, comments_unhidden, comments_manually_tagged, posts_fetched,
        is_model_serving, last_updated
 FROM moderator_stats`

func scanStats(s rowScanner) (*model.ModeratorStats, error) {
	st := &model.ModeratorStats{}
	err := s.Scan(
		&st.ModeratorID, &st.CommentsAnalyzed, &st.CommentsFetched, &st.CommentsDeleted,
		&st.CommentsHidden, &st.CommentsUnhidden, &st.CommentsManuallyTagged, &st.PostsFetched,
		&st.IsModelServing, &st.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// PostgresStatsRepo はPostgreSQLを使用したモデレーター統計リポジトリ。
type PostgresStatsRepo struct {
	db  DBTX
	now func() time.Time
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db DBTX) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db, now: time.Now}
}

// Increment は指定カウンタにnを加算する。
// moderator_idの主キーを利用したINSERT ON CONFLICT DO UPDATEで原子的に加算する。
// 統計レコードが存在しない場合は、そのカウンタのみをnとしたレコードを作成する。
// nが0の場合は何もしない（レコードも作成しない）。
func (r *PostgresStatsRepo) Increment(ctx context.Context, moderatorID string, counter model.Counter, n int) error {
	if !counter.Valid() {
		return fmt.Errorf("unknown counter: %q", counter)
	}
	if n < 0 {
		return fmt.Errorf("counter increment must not be negative: %d", n)
	}
	if n == 0 {
		return nil
	}

	// カラム名はValid()で検証済みの定数のみ
	col := string(counter)
	query := fmt.Sprintf(
		`INSERT INTO moderator_stats (moderator_id, %[1]s, last_updated)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (moderator_id) DO UPDATE SET
		     %[1]s = moderator_stats.%[1]s + EXCLUDED.%[1]s,
		     last_updated = EXCLUDED.last_updated`,
		col,
	)

	if _, err := r.db.ExecContext(ctx, query, moderatorID, n, r.now().UTC()); err != nil {
		return fmt.Errorf("統計カウンタ %s の加算に失敗しました: %w", col, err)
	}
	return nil
}

// SetModelServing は推論サービスの応答状態を記録する。
func (r *PostgresStatsRepo) SetModelServing(ctx context.Context, moderatorID string, serving bool) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO moderator_stats (moderator_id, is_model_serving, last_updated)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (moderator_id) DO UPDATE SET
		     is_model_serving = EXCLUDED.is_model_serving,
		     last_updated = EXCLUDED.last_updated`,
		moderatorID, serving, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("推論サービス状態の更新に失敗しました: %w", err)
	}
	return nil
}

// FindByModerator は指定モデレーターの統計を取得する。見つからない場合はnilを返す。
func (r *PostgresStatsRepo) FindByModerator(ctx context.Context, moderatorID string) (*model.ModeratorStats, error) {
	row := r.db.QueryRowContext(ctx, statsSelectSQL+` WHERE moderator_id = $1`, moderatorID)

	st, err := scanStats(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("統計の取得に失敗しました: %w", err)
	}
	return st, nil
}

// ListAll は全モデレーターの統計を最終更新日時の降順で返す。
func (r *PostgresStatsRepo) ListAll(ctx context.Context) ([]*model.ModeratorStats, error) {
	rows, err := r.db.QueryContext(ctx, statsSelectSQL+` ORDER BY last_updated DESC`)
	if err != nil {
		return nil, fmt.Errorf("統計一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var all []*model.ModeratorStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("統計の読み取りに失敗しました: %w", err)
		}
		all = append(all, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("統計一覧の走査に失敗しました: %w", err)
	}
	return all, nil
}

// compile-time interface check
var _ StatsRepository = (*PostgresStatsRepo)(nil)
