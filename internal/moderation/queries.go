package moderation

import (
	"context"
	"fmt"

	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/repository"
)

// ListPosts は操作者が閲覧できる投稿を返す。searchは投稿IDと本文に対する部分一致。
func (s *Service) ListPosts(ctx context.Context, actor *model.Moderator, search string) ([]*model.Post, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	posts, err := s.repos.Posts.ListByOwner(ctx, actor.OwnerID(), search)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// ListComments は操作者が閲覧できるコメントを予測ラベル付きで返す。
func (s *Service) ListComments(ctx context.Context, actor *model.Moderator, filter repository.CommentFilter) ([]*model.CommentWithPrediction, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	switch filter.Status {
	case "", model.CommentStatusAnalyzed, model.CommentStatusUnanalyzed:
	default:
		return nil, model.NewInvalidRequestError("status は analyzed または unanalyzed を指定してください")
	}

	comments, err := s.repos.Comments.ListByOwner(ctx, actor.OwnerID(), filter)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// ListTombstones は操作者が閲覧できる削除記録を返す。
func (s *Service) ListTombstones(ctx context.Context, actor *model.Moderator, search string) ([]*model.Tombstone, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	tombstones, err := s.repos.Tombstones.ListByOwner(ctx, actor.OwnerID(), search)
	if err != nil {
		return nil, fmt.Errorf("削除記録の取得に失敗しました: %w", err)
	}
	return tombstones, nil
}

// Stats はモデレーター統計を返す。
// 管理者には全モデレーターの統計を、それ以外には自身の統計のみを返す。
// 統計レコードが未作成の場合はすべて0の統計を返す。
func (s *Service) Stats(ctx context.Context, actor *model.Moderator) ([]*model.ModeratorStats, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	if actor.Role == model.RoleAdmin {
		all, err := s.repos.Stats.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("統計の取得に失敗しました: %w", err)
		}
		return all, nil
	}

	stats, err := s.repos.Stats.FindByModerator(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("統計の取得に失敗しました: %w", err)
	}
	if stats == nil {
		stats = &model.ModeratorStats{ModeratorID: actor.ID}
	}
	return []*model.ModeratorStats{stats}, nil
}

// Summary はダッシュボード用の毒性集計を返す。
func (s *Service) Summary(ctx context.Context, actor *model.Moderator) (*model.ToxicitySummary, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	summary, err := s.summary.ToxicitySummary(ctx, actor.OwnerID())
	if err != nil {
		return nil, fmt.Errorf("毒性集計の取得に失敗しました: %w", err)
	}
	return summary, nil
}
