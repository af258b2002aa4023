package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/repository"
)

// Delete はコメントをFacebookとローカルの両方から削除する。
//
// 削除記録はGraph APIの呼び出し前に書き込むため、呼び出しが失敗しても監査記録は残る。
// 同じコメントの削除記録が既に存在する場合（失敗した削除の再試行など）は既存の記録を維持する。
// ローカルのコメント削除とカウンタ加算は、Graph APIでの削除が成功した場合のみ行う。
func (s *Service) Delete(ctx context.Context, actor *model.Moderator, commentID, reason string) (*Outcome, error) {
	out, err := s.delete(ctx, actor, commentID, reason)
	return s.finish(ActionDelete, actor, out, err)
}

func (s *Service) delete(ctx context.Context, actor *model.Moderator, commentID, reason string) (*Outcome, error) {
	if err := requireRemoteModerator(actor, ActionDelete); err != nil {
		return nil, err
	}

	c, err := findComment(ctx, s.repos.Comments, commentID)
	if err != nil {
		return nil, err
	}

	tombstone := model.NewTombstone(c, reason, s.now().UTC())
	created, err := s.repos.Tombstones.CreateIfAbsent(ctx, tombstone)
	if err != nil {
		return nil, fmt.Errorf("削除記録の作成に失敗しました: %w", err)
	}
	storedReason := tombstone.ReasonForDeletion
	if !created {
		existing, err := s.repos.Tombstones.FindByCommentID(ctx, commentID)
		if err != nil {
			return nil, fmt.Errorf("既存の削除記録の取得に失敗しました: %w", err)
		}
		if existing != nil {
			storedReason = existing.ReasonForDeletion
		}
		s.logger.Info("既存の削除記録を維持します",
			slog.String("moderator_id", actor.ID),
			slog.String("comment_id", commentID),
			slog.String("stored_reason", storedReason),
		)
	}

	if err := s.graph.DeleteComment(ctx, c.CommentID, actor.AccessToken); err != nil {
		return nil, err
	}

	locallyRemoved := true
	err = s.tx.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Comments.Delete(ctx, commentID); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			locallyRemoved = false
		}
		return repos.Stats.Increment(ctx, actor.ID, model.CounterCommentsDeleted, 1)
	})
	if err != nil {
		return nil, fmt.Errorf("コメントのローカル削除に失敗しました: %w", err)
	}

	msg := fmt.Sprintf("コメント %s をFacebookとローカルから削除しました。", commentID)
	if !locallyRemoved {
		msg = fmt.Sprintf("コメント %s をFacebookから削除しましたが、ローカルには既に存在しませんでした。", commentID)
	}
	if !created {
		msg += fmt.Sprintf("削除記録は既存のもの（理由: %s）を維持しています。", storedReason)
	}
	return &Outcome{
		Message:   msg,
		Count:     1,
		CommentID: commentID,
		Duplicate: !created,
	}, nil
}

// Hide はFacebook上でコメントを非表示にし、成功した場合のみローカルの非表示フラグを立てる。
func (s *Service) Hide(ctx context.Context, actor *model.Moderator, commentID string) (*Outcome, error) {
	out, err := s.setHidden(ctx, actor, commentID, true)
	return s.finish(ActionHide, actor, out, err)
}

// Unhide はFacebook上でコメントを再表示し、成功した場合のみローカルの非表示フラグを下ろす。
func (s *Service) Unhide(ctx context.Context, actor *model.Moderator, commentID string) (*Outcome, error) {
	out, err := s.setHidden(ctx, actor, commentID, false)
	return s.finish(ActionUnhide, actor, out, err)
}

// setHidden はFacebook側を正とし、ローカルへの事前書き込みは行わない。
func (s *Service) setHidden(ctx context.Context, actor *model.Moderator, commentID string, hidden bool) (*Outcome, error) {
	action, counter, verb := ActionUnhide, model.CounterCommentsUnhidden, "再表示"
	remote := s.graph.UnhideComment
	if hidden {
		action, counter, verb = ActionHide, model.CounterCommentsHidden, "非表示に"
		remote = s.graph.HideComment
	}

	if err := requireRemoteModerator(actor, action); err != nil {
		return nil, err
	}

	c, err := findComment(ctx, s.repos.Comments, commentID)
	if err != nil {
		return nil, err
	}

	if err := remote(ctx, c.CommentID, actor.AccessToken); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Comments.SetHidden(ctx, commentID, hidden); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewCommentNotFoundError(commentID)
			}
			return err
		}
		return repos.Stats.Increment(ctx, actor.ID, counter, 1)
	})
	if err != nil {
		return nil, wrapStoreError("非表示フラグの更新に失敗しました", err)
	}

	return &Outcome{
		Message:   fmt.Sprintf("コメント %s をFacebook上で%sしました。", commentID, verb),
		Count:     1,
		CommentID: commentID,
	}, nil
}
