package model

import "time"

// DefaultDeletionReason は削除理由が未入力の場合に記録する値。
const DefaultDeletionReason = "Not specified"

// Tombstone は削除されたコメントの監査レコードを表す。
// コメント本体のライフサイクルとは独立して保持され、作成後は変更されない。
type Tombstone struct {
	ID                string
	PostID            *string // posts.id への参照。投稿削除後はnil
	CommentID         string  // Facebook上のコメントID（一意）
	Content           string
	UserName          string
	Labels            LabelSet
	ReasonForDeletion string
	DeletedAt         time.Time
}

// NewTombstone はコメントと（存在すれば）予測ラベルから削除記録を構築する。
// 予測ラベルが存在しない場合は6次元すべてfalseとなる。
func NewTombstone(c *CommentWithPrediction, reason string, now time.Time) *Tombstone {
	if reason == "" {
		reason = DefaultDeletionReason
	}
	postID := c.PostID
	t := &Tombstone{
		PostID:            &postID,
		CommentID:         c.CommentID,
		Content:           c.Content,
		UserName:          c.UserName,
		ReasonForDeletion: reason,
		DeletedAt:         now,
	}
	if c.Prediction != nil {
		t.Labels = c.Prediction.Labels
	}
	return t
}
