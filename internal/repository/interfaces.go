// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/toxguard/internal/model"
)

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
// リポジトリはこれを介してクエリを発行するため、同一トランザクションに束ねることができる。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// ExistingPostIDs は指定されたFacebook投稿IDのうち、既に保存済みのものを返す。
	ExistingPostIDs(ctx context.Context, postIDs []string) (map[string]bool, error)

	// CreateIfAbsent は投稿が未保存の場合のみ作成する。
	// 既存投稿は上書きしない。作成した場合はtrueを返す。
	CreateIfAbsent(ctx context.Context, post *model.Post) (bool, error)

	// FindByPostID はFacebook投稿IDで投稿を取得する。見つからない場合はnilを返す。
	FindByPostID(ctx context.Context, postID string) (*model.Post, error)

	// ListByOwner は指定アカウントが所有する投稿をFacebook上の作成日時の降順で返す。
	// searchが空でない場合は投稿IDまたは本文の部分一致（大文字小文字を区別しない）で絞り込む。
	ListByOwner(ctx context.Context, ownerID, search string) ([]*model.Post, error)
}

// CommentFilter はコメント一覧の絞り込み条件。
type CommentFilter struct {
	Status model.CommentStatus
	Search string // 本文または投稿者名の部分一致（大文字小文字を区別しない）
}

// CommentRepository はコメントデータの永続化インターフェース。
// コメントはFacebook上のコメントIDで識別する。
type CommentRepository interface {
	// FindByID はコメントを予測ラベル付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, commentID string) (*model.CommentWithPrediction, error)

	// FindByIDs は指定IDのコメントを予測ラベル付きで取得する。
	// 存在しないIDは無視し、指定順で返す。
	FindByIDs(ctx context.Context, commentIDs []string) ([]*model.CommentWithPrediction, error)

	// CreateIfAbsent はコメントが未保存の場合のみ作成する。
	// 既存コメントの内容は上書きしない。作成した場合はtrueを返す。
	CreateIfAbsent(ctx context.Context, comment *model.Comment) (bool, error)

	// SetHidden は非表示フラグを更新する。
	SetHidden(ctx context.Context, commentID string, hidden bool) error

	// Delete はコメントを削除する。予測ラベルはCASCADE削除される。
	Delete(ctx context.Context, commentID string) error

	// ListByOwner は指定アカウントが所有する投稿のコメントを絞り込み条件に従って返す。
	ListByOwner(ctx context.Context, ownerID string, filter CommentFilter) ([]*model.CommentWithPrediction, error)
}

// PredictionRepository は予測ラベルの永続化インターフェース。
type PredictionRepository interface {
	// FindByCommentID はコメント（comments.id）の予測ラベルを取得する。見つからない場合はnilを返す。
	FindByCommentID(ctx context.Context, commentRowID string) (*model.Prediction, error)

	// Upsert は予測ラベルを冪等にUPSERTする。
	// 自動予測と手動修正はこの同じ書き込み経路を使用する。
	Upsert(ctx context.Context, commentRowID string, labels model.LabelSet, source model.PredictionSource) (*model.Prediction, error)
}

// TombstoneRepository は削除済みコメント記録の永続化インターフェース。
type TombstoneRepository interface {
	// CreateIfAbsent は削除記録を作成する。
	// 同じコメントIDの記録が既に存在する場合は何もせずfalseを返す。
	CreateIfAbsent(ctx context.Context, tombstone *model.Tombstone) (bool, error)

	// FindByCommentID はFacebookコメントIDで削除記録を取得する。見つからない場合はnilを返す。
	FindByCommentID(ctx context.Context, commentID string) (*model.Tombstone, error)

	// ListByOwner は指定アカウントが所有する投稿の削除記録を削除日時の降順で返す。
	// searchが空でない場合は本文または投稿者名で絞り込む。
	ListByOwner(ctx context.Context, ownerID, search string) ([]*model.Tombstone, error)
}

// StatsRepository はモデレーター統計の永続化インターフェース。
type StatsRepository interface {
	// Increment は指定カウンタにnを加算する。
	// 統計レコードが存在しない場合は、そのカウンタのみをnとしたレコードを作成する。
	// nが0の場合は何もしない。
	Increment(ctx context.Context, moderatorID string, counter model.Counter, n int) error

	// SetModelServing は推論サービスの応答状態を記録する。
	SetModelServing(ctx context.Context, moderatorID string, serving bool) error

	// FindByModerator は指定モデレーターの統計を取得する。見つからない場合はnilを返す。
	FindByModerator(ctx context.Context, moderatorID string) (*model.ModeratorStats, error)

	// ListAll は全モデレーターの統計を返す。
	ListAll(ctx context.Context) ([]*model.ModeratorStats, error)
}

// ModeratorRepository はモデレーター情報の参照インターフェース。
type ModeratorRepository interface {
	// FindByID は指定IDのモデレーターを取得する。見つからない場合はnilを返す。
	// トークンが無効化されている場合はAccessTokenを空とする。
	FindByID(ctx context.Context, id string) (*model.Moderator, error)
}

// SummaryRepository はダッシュボード用の集計インターフェース。
type SummaryRepository interface {
	// ToxicitySummary は指定アカウントが所有する投稿の、現存コメントと削除済みコメントの毒性集計を返す。
	ToxicitySummary(ctx context.Context, ownerID string) (*model.ToxicitySummary, error)
}

// Repositories は同一のDBTXに束ねられたリポジトリ一式。
type Repositories struct {
	Posts       PostRepository
	Comments    CommentRepository
	Predictions PredictionRepository
	Tombstones  TombstoneRepository
	Stats       StatsRepository
}

// TxManager はトランザクション境界を提供する。
type TxManager interface {
	// RunInTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーを返す。
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
