package handler

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/toxguard/internal/middleware"
	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/moderation"
	"github.com/hitoshi/toxguard/internal/repository"
)

// ModerationServiceInterface はモデレーション操作ハンドラーが必要とするサービスインターフェース。
type ModerationServiceInterface interface {
	FetchPostsIncremental(ctx context.Context, actor *model.Moderator) (*moderation.Outcome, error)
	FetchCommentsIncremental(ctx context.Context, actor *model.Moderator, postRemoteID string) (*moderation.Outcome, error)
	ListPosts(ctx context.Context, actor *model.Moderator, search string) ([]*model.Post, error)
	ListComments(ctx context.Context, actor *model.Moderator, filter repository.CommentFilter) ([]*model.CommentWithPrediction, error)
	AnalyzeOne(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error)
	AnalyzeBulk(ctx context.Context, actor *model.Moderator, commentIDs []string) (*moderation.Outcome, error)
	Delete(ctx context.Context, actor *model.Moderator, commentID, reason string) (*moderation.Outcome, error)
	Hide(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error)
	Unhide(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error)
	ManualRelabel(ctx context.Context, actor *model.Moderator, commentID string, labels model.LabelSet) (*moderation.Outcome, error)
	// ProbeModel は推論サービスの応答可否を確認し、統計に記録する。
	ProbeModel(ctx context.Context, actor *model.Moderator) (bool, error)
}

// ModerationHandler はコメントの取得・解析・削除・非表示を扱うHTTPハンドラー。
type ModerationHandler struct {
	service ModerationServiceInterface
}

// NewModerationHandler はModerationHandlerを生成する。
func NewModerationHandler(service ModerationServiceInterface) *ModerationHandler {
	return &ModerationHandler{service: service}
}

// --- リクエスト型 ---

// analyzeBulkRequest は一括解析リクエストのボディ。
// comment_idsが空の場合は未解析コメントすべてを対象とする。
type analyzeBulkRequest struct {
	CommentIDs []string `json:"comment_ids"`
}

// deleteRequest は削除リクエストのボディ。
type deleteRequest struct {
	Reason string `json:"reason"`
}

// relabelRequest は手動ラベル修正リクエストのボディ。
// 含まれないラベルはfalseとして保存する。
type relabelRequest struct {
	Labels []string `json:"labels"`
}

// probeResponse はモデル稼働確認のレスポンス。
type probeResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	IsModelServing bool   `json:"is_model_serving"`
}

// FetchPosts はFacebookページから新しい投稿を取り込む。
// POST /api/posts/fetch
func (h *ModerationHandler) FetchPosts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	out, err := h.service.FetchPostsIncremental(r.Context(), actor)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOutcome(w, out)
}

// FetchComments は投稿の新しいコメントを取り込む。
// POST /api/posts/:postID/comments/fetch
func (h *ModerationHandler) FetchComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	out, err := h.service.FetchCommentsIncremental(r.Context(), actor, chi.URLParam(r, "postID"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOutcome(w, out)
}

// ListPosts は取り込み済みの投稿一覧を返す。
// GET /api/posts?search=xxx
func (h *ModerationHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	posts, err := h.service.ListPosts(r.Context(), actor, strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": resp})
}

// ListComments はコメント一覧を返す。
// GET /api/comments?status=analyzed|unanalyzed&search=xxx
func (h *ModerationHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	filter := repository.CommentFilter{
		Status: model.CommentStatus(r.URL.Query().Get("status")),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}

	comments, err := h.service.ListComments(r.Context(), actor, filter)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": resp})
}

// AnalyzeOne は1件のコメントを解析する。
// POST /api/comments/:id/analyze
func (h *ModerationHandler) AnalyzeOne(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	out, err := h.service.AnalyzeOne(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOutcome(w, out)
}

// AnalyzeBulk は複数コメントを一括解析する。
// POST /api/comments/analyze
func (h *ModerationHandler) AnalyzeBulk(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req analyzeBulkRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	out, err := h.service.AnalyzeBulk(r.Context(), actor, req.CommentIDs)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOutcome(w, out)
}

// Delete はコメントをFacebook上から削除し、削除記録を残す。
// POST /api/comments/:id/delete
func (h *ModerationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req deleteRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	out, err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id"), strings.TrimSpace(req.Reason))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOutcome(w, out)
}

// Hide はコメントをFacebook上で非表示にする。
// POST /api/comments/:id/hide
func (h *ModerationHandler) Hide(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	out, err := h.service.Hide(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOutcome(w, out)
}

// Unhide はコメントの非表示を解除する。
// POST /api/comments/:id/unhide
func (h *ModerationHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	out, err := h.service.Unhide(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOutcome(w, out)
}

// Relabel は解析済みコメントのラベルを手動で置き換える。
// PUT /api/comments/:id/labels
func (h *ModerationHandler) Relabel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req relabelRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	known := model.LabelNames()
	for _, name := range req.Labels {
		if !slices.Contains(known, name) {
			middleware.WriteError(w, model.NewInvalidRequestError("未知のラベルです: "+name))
			return
		}
	}

	out, err := h.service.ManualRelabel(r.Context(), actor, chi.URLParam(r, "id"), model.LabelSetFromFields(req.Labels))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeOutcome(w, out)
}

// ProbeModel は推論サービスの稼働状態を確認する。
// POST /api/model/probe
func (h *ModerationHandler) ProbeModel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	serving, err := h.service.ProbeModel(r.Context(), actor)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	msg := "推論サービスは稼働しています。"
	if !serving {
		msg = "推論サービスが応答しません。"
	}
	writeJSON(w, http.StatusOK, probeResponse{Success: true, Message: msg, IsModelServing: serving})
}
