package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/toxguard/internal/middleware"
	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/moderation"
)

// maxRequestBodyBytes はJSONリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

// --- レスポンス型 ---

// outcomeResponse は状態を変更する操作の共通レスポンス。
type outcomeResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Count     int    `json:"count"`
	CommentID string `json:"comment_id,omitempty"`
	Flagged   int    `json:"flagged,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// postResponse は投稿一覧の1件分。
type postResponse struct {
	PostID    string    `json:"post_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	FetchedAt time.Time `json:"fetched_at"`
}

// commentResponse はコメント一覧の1件分。
type commentResponse struct {
	ID          string          `json:"id"`
	CommentID   string          `json:"comment_id"`
	PostID      string          `json:"post_id"`
	UserName    string          `json:"user_name"`
	Content     string          `json:"content"`
	CreatedAt   time.Time       `json:"created_at"`
	IsHidden    bool            `json:"is_hidden"`
	Analyzed    bool            `json:"analyzed"`
	Labels      *model.LabelSet `json:"labels,omitempty"`
	PredictedAt *time.Time      `json:"predicted_at,omitempty"`
}

// tombstoneResponse は削除記録の1件分。
type tombstoneResponse struct {
	CommentID         string         `json:"comment_id"`
	Content           string         `json:"content"`
	UserName          string         `json:"user_name"`
	Labels            model.LabelSet `json:"labels"`
	ReasonForDeletion string         `json:"reason_for_deletion"`
	DeletedAt         time.Time      `json:"deleted_at"`
}

// statsResponse はモデレーター統計の1件分。
type statsResponse struct {
	ModeratorID            string    `json:"moderator_id"`
	CommentsAnalyzed       int       `json:"comments_analyzed"`
	CommentsFetched        int       `json:"comments_fetched"`
	CommentsDeleted        int       `json:"comments_deleted"`
	CommentsHidden         int       `json:"comments_hidden"`
	CommentsUnhidden       int       `json:"comments_unhidden"`
	CommentsManuallyTagged int       `json:"comments_manually_tagged"`
	PostsFetched           int       `json:"posts_fetched"`
	IsModelServing         bool      `json:"is_model_serving"`
	LastUpdated            time.Time `json:"last_updated"`
}

func toOutcomeResponse(out *moderation.Outcome) outcomeResponse {
	return outcomeResponse{
		Success:   true,
		Message:   out.Message,
		Count:     out.Count,
		CommentID: out.CommentID,
		Flagged:   out.Flagged,
		Duplicate: out.Duplicate,
	}
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		PostID:    p.PostID,
		Message:   p.Message,
		CreatedAt: p.CreatedAt,
		FetchedAt: p.FetchedAt,
	}
}

func toCommentResponse(c *model.CommentWithPrediction) commentResponse {
	resp := commentResponse{
		ID:        c.ID,
		CommentID: c.CommentID,
		PostID:    c.RemotePostID,
		UserName:  c.UserName,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		IsHidden:  c.IsHidden,
		Analyzed:  c.Analyzed(),
	}
	if c.Prediction != nil {
		labels := c.Prediction.Labels
		predictedAt := c.Prediction.PredictedAt
		resp.Labels = &labels
		resp.PredictedAt = &predictedAt
	}
	return resp
}

func toTombstoneResponse(t *model.Tombstone) tombstoneResponse {
	return tombstoneResponse{
		CommentID:         t.CommentID,
		Content:           t.Content,
		UserName:          t.UserName,
		Labels:            t.Labels,
		ReasonForDeletion: t.ReasonForDeletion,
		DeletedAt:         t.DeletedAt,
	}
}

func toStatsResponse(s *model.ModeratorStats) statsResponse {
	return statsResponse{
		ModeratorID:            s.ModeratorID,
		CommentsAnalyzed:       s.CommentsAnalyzed,
		CommentsFetched:        s.CommentsFetched,
		CommentsDeleted:        s.CommentsDeleted,
		CommentsHidden:         s.CommentsHidden,
		CommentsUnhidden:       s.CommentsUnhidden,
		CommentsManuallyTagged: s.CommentsManuallyTagged,
		PostsFetched:           s.PostsFetched,
		IsModelServing:         s.IsModelServing,
		LastUpdated:            s.LastUpdated,
	}
}

// --- ヘルパー ---

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeOutcome は操作結果を200で返す。
func writeOutcome(w http.ResponseWriter, out *moderation.Outcome) {
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

// actorFromRequest はリクエストコンテキストから操作者を取り出す。
// 取得できない場合は401レスポンスを書き込みfalseを返す。
func actorFromRequest(w http.ResponseWriter, r *http.Request) (*model.Moderator, bool) {
	actor, err := middleware.ModeratorFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewModeratorNotFoundError())
		return nil, false
	}
	return actor, true
}

// decodeOptionalJSON はリクエストボディをデコードする。
// ボディが空の場合はvをゼロ値のままとしてnilを返す。
func decodeOptionalJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return model.NewInvalidRequestError("リクエストボディの解析に失敗しました")
	}
	return nil
}
