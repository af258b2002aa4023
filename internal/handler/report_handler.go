package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/toxguard/internal/export"
	"github.com/hitoshi/toxguard/internal/middleware"
	"github.com/hitoshi/toxguard/internal/model"
)

// tombstonesCSVFilename はCSVダウンロード時のファイル名。
const tombstonesCSVFilename = "deleted_comments.csv"

// ReportServiceInterface は削除記録・統計・集計の参照に必要なサービスインターフェース。
type ReportServiceInterface interface {
	ListTombstones(ctx context.Context, actor *model.Moderator, search string) ([]*model.Tombstone, error)
	Stats(ctx context.Context, actor *model.Moderator) ([]*model.ModeratorStats, error)
	Summary(ctx context.Context, actor *model.Moderator) (*model.ToxicitySummary, error)
}

// ReportHandler は参照系エンドポイントのHTTPハンドラー。
type ReportHandler struct {
	service ReportServiceInterface
}

// NewReportHandler はReportHandlerを生成する。
func NewReportHandler(service ReportServiceInterface) *ReportHandler {
	return &ReportHandler{service: service}
}

// ListTombstones は削除記録の一覧を返す。
// GET /api/tombstones?search=xxx
func (h *ReportHandler) ListTombstones(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	tombstones, err := h.service.ListTombstones(r.Context(), actor, strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := make([]tombstoneResponse, 0, len(tombstones))
	for _, t := range tombstones {
		resp = append(resp, toTombstoneResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tombstones": resp})
}

// ExportTombstonesCSV は削除記録をCSVとしてダウンロードさせる。
// GET /api/tombstones.csv
func (h *ReportHandler) ExportTombstonesCSV(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	tombstones, err := h.service.ListTombstones(r.Context(), actor, "")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+tombstonesCSVFilename+`"`)
	w.WriteHeader(http.StatusOK)

	// ヘッダー送信後のため、失敗はログのみ
	if err := export.WriteTombstonesCSV(w, tombstones); err != nil {
		slog.Error("CSV出力に失敗しました",
			slog.String("moderator_id", actor.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Stats はモデレーター統計を返す。管理者には全モデレーター分を返す。
// GET /api/stats
func (h *ReportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), actor)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	resp := make([]statsResponse, 0, len(stats))
	for _, s := range stats {
		resp = append(resp, toStatsResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": resp})
}

// Summary はダッシュボード用の毒性集計を返す。
// GET /api/summary
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Summary(r.Context(), actor)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
