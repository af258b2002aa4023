package model

import "time"

// Post はFacebookページから取得した投稿を表す。
// post_idは一意であり、再取得時に既存の投稿が上書きされることはない。
type Post struct {
	ID        string
	PostID    string // Facebook上の投稿ID
	Message   string
	CreatedAt time.Time // Facebook上の作成日時
	FetchedAt time.Time
	FetchedBy string // 取得したアカウント（モデレーターの場合は割り当て元の管理者）
}

// Comment はFacebook投稿に付いたコメントを表す。
// comment_idごとに高々1件のみ保存される。
type Comment struct {
	ID        string
	PostID    string // posts.id への参照
	CommentID string // Facebook上のコメントID
	UserName  string
	Content   string
	CreatedAt time.Time
	FetchedAt time.Time
	IsHidden  bool
}

// CommentWithPrediction はコメントと現在の予測ラベルを結合したモデル。
// Predictionがnilのコメントは未解析として扱う。
type CommentWithPrediction struct {
	Comment
	RemotePostID string
	Prediction   *Prediction
}

// Analyzed はコメントが一度でも解析（自動・手動問わず）されたかを返す。
func (c *CommentWithPrediction) Analyzed() bool {
	return c.Prediction != nil
}

// CommentStatus はコメント一覧の絞り込み種別を表す。
type CommentStatus string

const (
	// CommentStatusAnalyzed は予測ラベルを持つコメントのみを表示する。
	CommentStatusAnalyzed CommentStatus = "analyzed"
	// CommentStatusUnanalyzed は予測ラベルを持たないコメントのみを表示する。
	CommentStatusUnanalyzed CommentStatus = "unanalyzed"
)

// RemotePost はGraph APIから取得した未保存の投稿データ。
type RemotePost struct {
	PostID    string
	Message   string
	CreatedAt time.Time
}

// RemoteComment はGraph APIから取得した未保存のコメントデータ。
type RemoteComment struct {
	CommentID string
	UserName  string
	Content   string
	CreatedAt time.Time
}
