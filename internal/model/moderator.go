package model

import "time"

// Role はアカウントの権限区分を表す。
type Role string

const (
	// RoleAdmin はFacebookトークンを所有する管理者。
	RoleAdmin Role = "admin"
	// RoleModerator は管理者からトークンを引き継ぐモデレーター。
	RoleModerator Role = "moderator"
)

// Moderator は操作を行うアカウントの識別情報とトークン割り当て状態を表す。
// 認証およびトークン割り当て自体は外部の責務であり、ここでは参照のみを行う。
type Moderator struct {
	ID          string
	Username    string
	Role        Role
	AccessToken string
	PageID      string
	AssignedBy  *string // 割り当て元の管理者ID
}

// OwnerID は取得した投稿の所有者として記録するIDを返す。
// 管理者が割り当てられたモデレーターの場合は管理者、それ以外は自身となる。
func (m *Moderator) OwnerID() string {
	if m.Role == RoleModerator && m.AssignedBy != nil && *m.AssignedBy != "" {
		return *m.AssignedBy
	}
	return m.ID
}

// HasToken はFacebookアクセストークンが割り当てられているかを返す。
func (m *Moderator) HasToken() bool {
	return m.AccessToken != ""
}

// Counter はモデレーター統計のカウンタ種別。値はカラム名と一致する。
type Counter string

const (
	CounterCommentsAnalyzed       Counter = "comments_analyzed"
	CounterCommentsFetched        Counter = "comments_fetched"
	CounterCommentsDeleted        Counter = "comments_deleted"
	CounterCommentsHidden         Counter = "comments_hidden"
	CounterCommentsUnhidden       Counter = "comments_unhidden"
	CounterCommentsManuallyTagged Counter = "comments_manually_tagged"
	CounterPostsFetched           Counter = "posts_fetched"
)

// Valid はカウンタ種別が定義済みかを返す。
func (c Counter) Valid() bool {
	switch c {
	case CounterCommentsAnalyzed, CounterCommentsFetched, CounterCommentsDeleted,
		CounterCommentsHidden, CounterCommentsUnhidden, CounterCommentsManuallyTagged,
		CounterPostsFetched:
		return true
	}
	return false
}

// ModeratorStats はモデレーターごとの累積操作カウンタ。
// 初回操作時に遅延作成され、通常運用では削除されない。
type ModeratorStats struct {
	ModeratorID            string
	CommentsAnalyzed       int
	CommentsFetched        int
	CommentsDeleted        int
	CommentsHidden         int
	CommentsUnhidden       int
	CommentsManuallyTagged int
	PostsFetched           int
	IsModelServing         bool
	LastUpdated            time.Time
}

// Get は指定カウンタの現在値を返す。
func (s *ModeratorStats) Get(c Counter) int {
	switch c {
	case CounterCommentsAnalyzed:
		return s.CommentsAnalyzed
	case CounterCommentsFetched:
		return s.CommentsFetched
	case CounterCommentsDeleted:
		return s.CommentsDeleted
	case CounterCommentsHidden:
		return s.CommentsHidden
	case CounterCommentsUnhidden:
		return s.CommentsUnhidden
	case CounterCommentsManuallyTagged:
		return s.CommentsManuallyTagged
	case CounterPostsFetched:
		return s.PostsFetched
	}
	return 0
}

// Add は指定カウンタにnを加算する。
func (s *ModeratorStats) Add(c Counter, n int) {
	switch c {
	case CounterCommentsAnalyzed:
		s.CommentsAnalyzed += n
	case CounterCommentsFetched:
		s.CommentsFetched += n
	case CounterCommentsDeleted:
		s.CommentsDeleted += n
	case CounterCommentsHidden:
		s.CommentsHidden += n
	case CounterCommentsUnhidden:
		s.CommentsUnhidden += n
	case CounterCommentsManuallyTagged:
		s.CommentsManuallyTagged += n
	case CounterPostsFetched:
		s.PostsFetched += n
	}
}

// ToxicitySummary はダッシュボード用の毒性集計。
// 現存コメントと削除済みコメントの両方を対象とする。
type ToxicitySummary struct {
	TotalComments int `json:"total_comments"`
	Toxic         int `json:"toxic"`
	NonToxic      int `json:"non_toxic"`
	SevereToxic   int `json:"severe_toxic"`
	Obscene       int `json:"obscene"`
	Threat        int `json:"threat"`
	Insult        int `json:"insult"`
	IdentityHate  int `json:"identity_hate"`
}
