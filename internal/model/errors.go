// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: remote, not_found, precondition, batch, validation, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因となったエラー（ログ用、レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeRemoteUnavailable = "REMOTE_UNAVAILABLE"
	ErrCodeCommentNotFound   = "COMMENT_NOT_FOUND"
	ErrCodePostNotFound      = "POST_NOT_FOUND"
	ErrCodeModeratorNotFound = "MODERATOR_NOT_FOUND"
	ErrCodePredictionMissing = "PREDICTION_MISSING"
	ErrCodeTokenMissing      = "TOKEN_MISSING"
	ErrCodeRoleForbidden     = "ROLE_FORBIDDEN"
	ErrCodeBatchIntegrity    = "BATCH_INTEGRITY"
	ErrCodeAnalysisFailed    = "ANALYSIS_FAILED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
)

// エラーカテゴリ
const (
	CategoryRemote       = "remote"
	CategoryNotFound     = "not_found"
	CategoryPrecondition = "precondition"
	CategoryBatch        = "batch"
	CategoryValidation   = "validation"
)

// NewRemoteUnavailableError は外部サービス（Graph API / 推論サービス）の呼び出し失敗エラーを生成する。
func NewRemoteUnavailableError(service string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteUnavailable,
		Message:  fmt.Sprintf("%s の呼び出しに失敗しました。", service),
		Category: CategoryRemote,
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: CategoryNotFound,
		Action:   "コメント一覧を再読み込みしてください。",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: CategoryNotFound,
		Action:   "先に投稿を取得してください。",
	}
}

// NewModeratorNotFoundError はモデレーター未検出エラーを生成する。
func NewModeratorNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeModeratorNotFound,
		Message:  "モデレーターが見つかりません。",
		Category: CategoryNotFound,
		Action:   "ログインし直してください。",
	}
}

// NewPredictionMissingError は未解析コメントに対する手動ラベル編集エラーを生成する。
func NewPredictionMissingError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodePredictionMissing,
		Message:  fmt.Sprintf("コメントはまだ解析されていません: %s", commentID),
		Category: CategoryPrecondition,
		Action:   "ラベルを編集する前にコメントを解析してください。",
	}
}

// NewTokenMissingError はアクセストークン未割り当てエラーを生成する。
func NewTokenMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenMissing,
		Message:  "有効なアクセストークンまたはページIDが割り当てられていません。",
		Category: CategoryPrecondition,
		Action:   "管理者にトークンの割り当てを依頼してください。",
	}
}

// NewRoleForbiddenError は権限不足エラーを生成する。
func NewRoleForbiddenError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeRoleForbidden,
		Message:  fmt.Sprintf("この操作はモデレーターのみ実行できます: %s", action),
		Category: CategoryPrecondition,
		Action:   "モデレーターアカウントで実行してください。",
	}
}

// NewBatchIntegrityError は一括推論の件数不一致エラーを生成する。
func NewBatchIntegrityError(requested, returned int) *APIError {
	return &APIError{
		Code:     ErrCodeBatchIntegrity,
		Message:  fmt.Sprintf("一括推論の結果件数が一致しません: 要求 %d 件、応答 %d 件", requested, returned),
		Category: CategoryBatch,
		Action:   "推論サービスの状態を確認してから再度お試しください。",
	}
}

// NewAnalysisFailedError はコメント解析失敗エラーを生成する。
func NewAnalysisFailedError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAnalysisFailed,
		Message:  "コメントの解析に失敗しました。",
		Category: CategoryRemote,
		Action:   "推論サービスが起動しているか確認してください。",
		Err:      cause,
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// HasCode はerrがAPIErrorであり、指定コードを持つかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
