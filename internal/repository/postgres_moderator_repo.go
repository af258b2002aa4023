package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/toxguard/internal/model"
)

// PostgresModeratorRepo はPostgreSQLを使用したモデレーターリポジトリ。
type PostgresModeratorRepo struct {
	db DBTX
}

// NewPostgresModeratorRepo はPostgresModeratorRepoを生成する。
func NewPostgresModeratorRepo(db DBTX) *PostgresModeratorRepo {
	return &PostgresModeratorRepo{db: db}
}

// FindByID は指定IDのモデレーターを取得する。見つからない場合はnilを返す。
// token_activeがfalseの場合、トークンは割り当てられていないものとして扱う。
func (r *PostgresModeratorRepo) FindByID(ctx context.Context, id string) (*model.Moderator, error) {
	m := &model.Moderator{}
	var role string
	var token, pageID, assignedBy sql.NullString
	var tokenActive bool

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, role, facebook_access_token, facebook_page_id, token_active, assigned_by
		 FROM moderators WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Username, &role, &token, &pageID, &tokenActive, &assignedBy)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find moderator by ID: %w", err)
	}

	m.Role = model.Role(role)
	if tokenActive {
		m.AccessToken = nullStringValue(token)
	}
	m.PageID = nullStringValue(pageID)
	if assignedBy.Valid {
		m.AssignedBy = &assignedBy.String
	}

	return m, nil
}

// compile-time interface check
var _ ModeratorRepository = (*PostgresModeratorRepo)(nil)
