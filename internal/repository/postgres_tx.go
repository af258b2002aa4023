package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// PostgresTxManager はPostgreSQLのトランザクションにリポジトリ一式を束ねる。
type PostgresTxManager struct {
	db TxBeginner
}

// NewPostgresTxManager はPostgresTxManagerを生成する。
func NewPostgresTxManager(db TxBeginner) *PostgresTxManager {
	return &PostgresTxManager{db: db}
}

// NewRepositories は指定のDBTXに束ねたリポジトリ一式を生成する。
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Posts:       NewPostgresPostRepo(db),
		Comments:    NewPostgresCommentRepo(db),
		Predictions: NewPostgresPredictionRepo(db),
		Tombstones:  NewPostgresTombstoneRepo(db),
		Stats:       NewPostgresStatsRepo(db),
	}
}

// RunInTx はfnを1つのトランザクション内で実行する。
// fnがエラーを返した場合、またはパニックした場合はロールバックする。
func (m *PostgresTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TxManager = (*PostgresTxManager)(nil)
