package moderation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/repository"
)

// AnalyzeOne は1件のコメントを推論サービスで解析し、予測ラベルを保存する。
// 推論に失敗した場合はストアを一切変更しない。
// 解析済みコメントの再解析は最新の結果で上書きし、カウンタも加算する
// （comments_analyzedは操作回数であり、コメントの重複は排除しない）。
func (s *Service) AnalyzeOne(ctx context.Context, actor *model.Moderator, commentID string) (*Outcome, error) {
	out, err := s.analyzeOne(ctx, actor, commentID)
	return s.finish(ActionAnalyzeOne, actor, out, err)
}

func (s *Service) analyzeOne(ctx context.Context, actor *model.Moderator, commentID string) (*Outcome, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	c, err := findComment(ctx, s.repos.Comments, commentID)
	if err != nil {
		return nil, err
	}

	labels, err := s.scorer.PredictOne(ctx, c.Content)
	if err != nil {
		return nil, model.NewAnalysisFailedError(err)
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Predictions.Upsert(ctx, c.ID, labels, model.PredictionSourceModel); err != nil {
			return err
		}
		return repos.Stats.Increment(ctx, actor.ID, model.CounterCommentsAnalyzed, 1)
	})
	if err != nil {
		return nil, fmt.Errorf("解析結果の保存に失敗しました: %w", err)
	}
	s.metrics.RecordPredictionsWritten(string(model.PredictionSourceModel), 1)

	out := &Outcome{
		Message:   "コメントを解析しました。有害なラベルは検出されませんでした。",
		Count:     1,
		CommentID: commentID,
	}
	if labels.Any() {
		out.Message = "コメントを解析しました。有害なラベルが検出されました。"
		out.Flagged = 1
	}
	return out, nil
}

// AnalyzeBulk は予測ラベルを持たないコメントをまとめて解析する。
// commentIDsが空の場合は、操作者が閲覧できる未解析コメントすべてを対象とする。
// 推論は1回の呼び出しで行い、結果は要求順に対応付けて保存する。
// 推論の失敗や件数不一致の場合はバッチ全体を失敗とし、何も保存しない。
// 対象が0件の場合は推論サービスを呼び出さずに成功とする。
func (s *Service) AnalyzeBulk(ctx context.Context, actor *model.Moderator, commentIDs []string) (*Outcome, error) {
	out, err := s.analyzeBulk(ctx, actor, commentIDs)
	return s.finish(ActionAnalyzeBulk, actor, out, err)
}

func (s *Service) analyzeBulk(ctx context.Context, actor *model.Moderator, commentIDs []string) (*Outcome, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	pending, err := s.pendingComments(ctx, actor, commentIDs)
	if err != nil {
		return nil, err
	}

	var labels []model.LabelSet
	if len(pending) > 0 {
		texts := make([]string, len(pending))
		for i, c := range pending {
			texts[i] = c.Content
		}

		labels, err = s.scorer.PredictMany(ctx, texts)
		if err != nil {
			if model.HasCode(err, model.ErrCodeBatchIntegrity) {
				return nil, err
			}
			return nil, model.NewAnalysisFailedError(err)
		}
		if len(labels) != len(pending) {
			return nil, model.NewBatchIntegrityError(len(pending), len(labels))
		}
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for i, c := range pending {
			if _, err := repos.Predictions.Upsert(ctx, c.ID, labels[i], model.PredictionSourceModel); err != nil {
				return fmt.Errorf("comment %s: %w", c.CommentID, err)
			}
		}
		return repos.Stats.Increment(ctx, actor.ID, model.CounterCommentsAnalyzed, len(pending))
	})
	if err != nil {
		return nil, fmt.Errorf("一括解析結果の保存に失敗しました: %w", err)
	}
	s.metrics.RecordPredictionsWritten(string(model.PredictionSourceModel), len(pending))

	flagged := 0
	for _, l := range labels {
		if l.Any() {
			flagged++
		}
	}
	return &Outcome{
		Message: fmt.Sprintf("%d 件のコメントを解析しました（有害なラベル: %d 件）。", len(pending), flagged),
		Count:   len(pending),
		Flagged: flagged,
	}, nil
}

// pendingComments は解析対象となる未解析コメントを要求順で返す。
// 存在しないIDと重複したIDは無視する。
func (s *Service) pendingComments(ctx context.Context, actor *model.Moderator, commentIDs []string) ([]*model.CommentWithPrediction, error) {
	var candidates []*model.CommentWithPrediction
	var err error

	if len(commentIDs) == 0 {
		candidates, err = s.repos.Comments.ListByOwner(ctx, actor.OwnerID(), repository.CommentFilter{
			Status: model.CommentStatusUnanalyzed,
		})
	} else {
		candidates, err = s.repos.Comments.FindByIDs(ctx, dedupe(commentIDs))
	}
	if err != nil {
		return nil, fmt.Errorf("解析対象コメントの取得に失敗しました: %w", err)
	}

	pending := make([]*model.CommentWithPrediction, 0, len(candidates))
	for _, c := range candidates {
		if !c.Analyzed() {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// ManualRelabel は予測ラベルをモデレーターの指定値で上書きする。
// 推論サービスは呼び出さない。書き込みは自動予測と同じ経路を使用する。
// 未解析のコメントに対してはPREDICTION_MISSINGエラーを返す。
func (s *Service) ManualRelabel(ctx context.Context, actor *model.Moderator, commentID string, labels model.LabelSet) (*Outcome, error) {
	out, err := s.manualRelabel(ctx, actor, commentID, labels)
	return s.finish(ActionManualRelabel, actor, out, err)
}

func (s *Service) manualRelabel(ctx context.Context, actor *model.Moderator, commentID string, labels model.LabelSet) (*Outcome, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		c, err := findComment(ctx, repos.Comments, commentID)
		if err != nil {
			return err
		}
		// 一覧取得時の結合結果ではなく、トランザクション内で現在の予測を確認する
		current, err := repos.Predictions.FindByCommentID(ctx, c.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NewPredictionMissingError(commentID)
		}
		if _, err := repos.Predictions.Upsert(ctx, c.ID, labels, model.PredictionSourceManual); err != nil {
			return err
		}
		return repos.Stats.Increment(ctx, actor.ID, model.CounterCommentsManuallyTagged, 1)
	})
	if err != nil {
		return nil, wrapStoreError("ラベルの更新に失敗しました", err)
	}
	s.metrics.RecordPredictionsWritten(string(model.PredictionSourceManual), 1)

	return &Outcome{
		Message:   fmt.Sprintf("コメント %s のラベルを手動で更新しました。", commentID),
		Count:     1,
		CommentID: commentID,
	}, nil
}

// ProbeModel は推論サービスが応答するかを確認し、結果を操作者の統計に記録する。
// 予測ラベルは保存しない。
func (s *Service) ProbeModel(ctx context.Context, actor *model.Moderator) (bool, error) {
	if err := requireActor(actor); err != nil {
		return false, err
	}

	_, probeErr := s.scorer.PredictOne(ctx, s.probeText)
	serving := probeErr == nil
	if !serving {
		s.logger.Warn("推論サービスが応答しません",
			slog.String("moderator_id", actor.ID),
			slog.String("error", probeErr.Error()),
		)
	}

	if err := s.repos.Stats.SetModelServing(ctx, actor.ID, serving); err != nil {
		_, err = s.finish(ActionProbeModel, actor, nil, fmt.Errorf("推論サービス状態の記録に失敗しました: %w", err))
		return false, err
	}

	s.finish(ActionProbeModel, actor, &Outcome{Message: "推論サービスの状態を確認しました。"}, nil)
	return serving, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
