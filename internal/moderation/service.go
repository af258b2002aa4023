// Package moderation はコメントの解析・削除・非表示とモデレーター統計を整合させる処理を提供する。
//
// 外部サービス（Graph API・推論サービス）の呼び出しはローカルトランザクションの外で行い、
// その結果に応じてトランザクションを実行するかを決める。統計カウンタの加算は、
// 対応する操作のローカル更新と同一トランザクションで行う。
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/toxguard/internal/metrics"
	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/repository"
	"github.com/hitoshi/toxguard/internal/security"
)

// 操作名。メトリクスのラベルとログに使用する。
const (
	ActionAnalyzeOne    = "analyze_one"
	ActionAnalyzeBulk   = "analyze_bulk"
	ActionDelete        = "delete"
	ActionHide          = "hide"
	ActionUnhide        = "unhide"
	ActionManualRelabel = "manual_relabel"
	ActionFetchPosts    = "fetch_posts"
	ActionFetchComments = "fetch_comments"
	ActionProbeModel    = "probe_model"
)

// DefaultProbeText は推論サービスの稼働確認に使うテキスト。
const DefaultProbeText = "model health check"

// GraphClient はGraph APIの呼び出しインターフェース。
type GraphClient interface {
	FetchPosts(ctx context.Context, pageID, token string) ([]model.RemotePost, error)
	FetchComments(ctx context.Context, postID, token string) ([]model.RemoteComment, error)
	DeleteComment(ctx context.Context, commentID, token string) error
	HideComment(ctx context.Context, commentID, token string) error
	UnhideComment(ctx context.Context, commentID, token string) error
}

// Scorer は毒性推論サービスの呼び出しインターフェース。
type Scorer interface {
	PredictOne(ctx context.Context, text string) (model.LabelSet, error)
	PredictMany(ctx context.Context, texts []string) ([]model.LabelSet, error)
}

// Outcome は操作結果。UI側がステータスメッセージを表示するのに必要な情報を持つ。
type Outcome struct {
	Message   string `json:"message"`
	Count     int    `json:"count"`
	CommentID string `json:"comment_id,omitempty"`

	// Flagged は解析の結果いずれかのラベルが立ったコメントの件数。
	Flagged int `json:"flagged,omitempty"`

	// Duplicate は削除時に同じコメントの削除記録が既に存在したことを示す。
	Duplicate bool `json:"duplicate,omitempty"`
}

// Deps はServiceの依存関係。
type Deps struct {
	Tx        repository.TxManager
	Repos     repository.Repositories // トランザクション外の読み取りと削除記録の事前書き込みに使用
	Summary   repository.SummaryRepository
	Graph     GraphClient
	Scorer    Scorer
	Sanitizer security.TextSanitizer
	Metrics   metrics.Recorder
	Logger    *slog.Logger
	Now       func() time.Time
	ProbeText string
}

// Service はモデレーション操作のサービス層。
type Service struct {
	tx        repository.TxManager
	repos     repository.Repositories
	summary   repository.SummaryRepository
	graph     GraphClient
	scorer    Scorer
	sanitizer security.TextSanitizer
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
	probeText string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(d Deps) *Service {
	s := &Service{
		tx:        d.Tx,
		repos:     d.Repos,
		summary:   d.Summary,
		graph:     d.Graph,
		scorer:    d.Scorer,
		sanitizer: d.Sanitizer,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
		probeText: d.ProbeText,
	}
	if s.sanitizer == nil {
		s.sanitizer = security.NewTextSanitizer()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.probeText == "" {
		s.probeText = DefaultProbeText
	}
	return s
}

// finish は操作結果をメトリクスとログに記録し、そのまま返す。
func (s *Service) finish(action string, actor *model.Moderator, out *Outcome, err error) (*Outcome, error) {
	if err != nil {
		s.metrics.RecordAction(action, metrics.OutcomeFailure)
		attrs := []any{
			slog.String("action", action),
			slog.String("error", err.Error()),
		}
		if actor != nil {
			attrs = append(attrs, slog.String("moderator_id", actor.ID))
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.logger.Warn("モデレーション操作に失敗しました", attrs...)
		} else {
			s.logger.Error("モデレーション操作で内部エラーが発生しました", attrs...)
		}
		return nil, err
	}

	s.metrics.RecordAction(action, metrics.OutcomeSuccess)
	s.logger.Info("モデレーション操作が完了しました",
		slog.String("action", action),
		slog.String("moderator_id", actor.ID),
		slog.String("comment_id", out.CommentID),
		slog.Int("count", out.Count),
	)
	return out, nil
}

// requireActor は操作者が特定されていることを確認する。
func requireActor(actor *model.Moderator) error {
	if actor == nil || actor.ID == "" {
		return model.NewModeratorNotFoundError()
	}
	return nil
}

// requireRemoteModerator はFacebook上のコメントを操作する権限を確認する。
// モデレーターロールであり、アクセストークンが割り当てられている必要がある。
func requireRemoteModerator(actor *model.Moderator, action string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if actor.Role != model.RoleModerator {
		return model.NewRoleForbiddenError(action)
	}
	if !actor.HasToken() {
		return model.NewTokenMissingError()
	}
	return nil
}

// findComment はコメントを取得する。存在しない場合はNotFoundエラーを返す。
func findComment(ctx context.Context, comments repository.CommentRepository, commentID string) (*model.CommentWithPrediction, error) {
	c, err := comments.FindByID(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCommentNotFoundError(commentID)
	}
	return c, nil
}

// wrapStoreError はAPIErrorをそのまま返し、それ以外のエラーにはメッセージを付与する。
func wrapStoreError(msg string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
