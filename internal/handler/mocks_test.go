package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/toxguard/internal/middleware"
	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/moderation"
	"github.com/hitoshi/toxguard/internal/repository"
)

// --- モック定義 ---

// mockModerationService はModerationServiceInterfaceのモック実装。
// 未設定のメソッドは成功のOutcomeを返す。
type mockModerationService struct {
	fetchPostsFn    func(ctx context.Context, actor *model.Moderator) (*moderation.Outcome, error)
	fetchCommentsFn func(ctx context.Context, actor *model.Moderator, postRemoteID string) (*moderation.Outcome, error)
	listPostsFn     func(ctx context.Context, actor *model.Moderator, search string) ([]*model.Post, error)
	listCommentsFn  func(ctx context.Context, actor *model.Moderator, filter repository.CommentFilter) ([]*model.CommentWithPrediction, error)
	analyzeOneFn    func(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error)
	analyzeBulkFn   func(ctx context.Context, actor *model.Moderator, commentIDs []string) (*moderation.Outcome, error)
	deleteFn        func(ctx context.Context, actor *model.Moderator, commentID, reason string) (*moderation.Outcome, error)
	hideFn          func(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error)
	unhideFn        func(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error)
	relabelFn       func(ctx context.Context, actor *model.Moderator, commentID string, labels model.LabelSet) (*moderation.Outcome, error)
	probeFn         func(ctx context.Context, actor *model.Moderator) (bool, error)
}

func okOutcome() *moderation.Outcome {
	return &moderation.Outcome{Message: "ok"}
}

func (m *mockModerationService) FetchPostsIncremental(ctx context.Context, actor *model.Moderator) (*moderation.Outcome, error) {
	if m.fetchPostsFn != nil {
		return m.fetchPostsFn(ctx, actor)
	}
	return okOutcome(), nil
}

func (m *mockModerationService) FetchCommentsIncremental(ctx context.Context, actor *model.Moderator, postRemoteID string) (*moderation.Outcome, error) {
	if m.fetchCommentsFn != nil {
		return m.fetchCommentsFn(ctx, actor, postRemoteID)
	}
	return okOutcome(), nil
}

func (m *mockModerationService) ListPosts(ctx context.Context, actor *model.Moderator, search string) ([]*model.Post, error) {
	if m.listPostsFn != nil {
		return m.listPostsFn(ctx, actor, search)
	}
	return nil, nil
}

func (m *mockModerationService) ListComments(ctx context.Context, actor *model.Moderator, filter repository.CommentFilter) ([]*model.CommentWithPrediction, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, actor, filter)
	}
	return nil, nil
}

func (m *mockModerationService) AnalyzeOne(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error) {
	if m.analyzeOneFn != nil {
		return m.analyzeOneFn(ctx, actor, commentID)
	}
	return okOutcome(), nil
}

func (m *mockModerationService) AnalyzeBulk(ctx context.Context, actor *model.Moderator, commentIDs []string) (*moderation.Outcome, error) {
	if m.analyzeBulkFn != nil {
		return m.analyzeBulkFn(ctx, actor, commentIDs)
	}
	return okOutcome(), nil
}

func (m *mockModerationService) Delete(ctx context.Context, actor *model.Moderator, commentID, reason string) (*moderation.Outcome, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, commentID, reason)
	}
	return okOutcome(), nil
}

func (m *mockModerationService) Hide(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error) {
	if m.hideFn != nil {
		return m.hideFn(ctx, actor, commentID)
	}
	return okOutcome(), nil
}

func (m *mockModerationService) Unhide(ctx context.Context, actor *model.Moderator, commentID string) (*moderation.Outcome, error) {
	if m.unhideFn != nil {
		return m.unhideFn(ctx, actor, commentID)
	}
	return okOutcome(), nil
}

func (m *mockModerationService) ManualRelabel(ctx context.Context, actor *model.Moderator, commentID string, labels model.LabelSet) (*moderation.Outcome, error) {
	if m.relabelFn != nil {
		return m.relabelFn(ctx, actor, commentID, labels)
	}
	return okOutcome(), nil
}

func (m *mockModerationService) ProbeModel(ctx context.Context, actor *model.Moderator) (bool, error) {
	if m.probeFn != nil {
		return m.probeFn(ctx, actor)
	}
	return true, nil
}

// mockReportService はReportServiceInterfaceのモック実装。
type mockReportService struct {
	listTombstonesFn func(ctx context.Context, actor *model.Moderator, search string) ([]*model.Tombstone, error)
	statsFn          func(ctx context.Context, actor *model.Moderator) ([]*model.ModeratorStats, error)
	summaryFn        func(ctx context.Context, actor *model.Moderator) (*model.ToxicitySummary, error)
}

func (m *mockReportService) ListTombstones(ctx context.Context, actor *model.Moderator, search string) ([]*model.Tombstone, error) {
	if m.listTombstonesFn != nil {
		return m.listTombstonesFn(ctx, actor, search)
	}
	return nil, nil
}

func (m *mockReportService) Stats(ctx context.Context, actor *model.Moderator) ([]*model.ModeratorStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, actor)
	}
	return nil, nil
}

func (m *mockReportService) Summary(ctx context.Context, actor *model.Moderator) (*model.ToxicitySummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, actor)
	}
	return &model.ToxicitySummary{}, nil
}

// --- テストヘルパー ---

const testModeratorID = "3f0b1c2e-8a4d-4c6e-9b1a-2d5e7f9a0c11"

// testModerator はテスト用のモデレーターを返す。
func testModerator() *model.Moderator {
	admin := "admin-1"
	return &model.Moderator{
		ID:          testModeratorID,
		Username:    "mod",
		Role:        model.RoleModerator,
		AccessToken: "token",
		PageID:      "page-1",
		AssignedBy:  &admin,
	}
}

// withActor はリクエストのコンテキストに操作者を設定する。
func withActor(req *http.Request, actor *model.Moderator) *http.Request {
	return req.WithContext(middleware.ContextWithModerator(req.Context(), actor))
}

// withURLParam はchiのURLパラメータを設定する。
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
