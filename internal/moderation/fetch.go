package moderation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/repository"
)

// FetchPostsIncremental は操作者に割り当てられたページの投稿を取得し、未保存のものだけを保存する。
// 重複判定はFacebook投稿IDで行い、本文の一致は考慮しない。
// posts_fetchedには取得件数ではなく新規作成件数を加算する。
func (s *Service) FetchPostsIncremental(ctx context.Context, actor *model.Moderator) (*Outcome, error) {
	out, err := s.fetchPosts(ctx, actor)
	return s.finish(ActionFetchPosts, actor, out, err)
}

func (s *Service) fetchPosts(ctx context.Context, actor *model.Moderator) (*Outcome, error) {
	if err := requireRemoteModerator(actor, ActionFetchPosts); err != nil {
		return nil, err
	}
	if actor.PageID == "" {
		return nil, model.NewTokenMissingError()
	}

	remote, err := s.graph.FetchPosts(ctx, actor.PageID, actor.AccessToken)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(remote))
	for _, p := range remote {
		ids = append(ids, p.PostID)
	}
	existing, err := s.repos.Posts.ExistingPostIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("既存投稿の確認に失敗しました: %w", err)
	}

	now := s.now().UTC()
	owner := actor.OwnerID()
	created := 0
	err = s.tx.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, p := range remote {
			if existing[p.PostID] {
				continue
			}
			ok, err := repos.Posts.CreateIfAbsent(ctx, &model.Post{
				ID:        uuid.New().String(),
				PostID:    p.PostID,
				Message:   s.sanitizer.Sanitize(p.Message),
				CreatedAt: p.CreatedAt,
				FetchedAt: now,
				FetchedBy: owner,
			})
			if err != nil {
				return err
			}
			// 同一レスポンス内の重複IDも1件として数える
			existing[p.PostID] = true
			if ok {
				created++
			}
		}
		return repos.Stats.Increment(ctx, actor.ID, model.CounterPostsFetched, created)
	})
	if err != nil {
		return nil, fmt.Errorf("投稿の保存に失敗しました: %w", err)
	}

	return &Outcome{
		Message: fmt.Sprintf("%d 件の新しい投稿を取得しました。", created),
		Count:   created,
	}, nil
}

// FetchCommentsIncremental は投稿のコメントを取得し、未保存のものだけを保存する。
// 既存コメントの本文は再取得時にも上書きしない。
// comments_fetchedには新規作成件数を加算する。
func (s *Service) FetchCommentsIncremental(ctx context.Context, actor *model.Moderator, postRemoteID string) (*Outcome, error) {
	out, err := s.fetchComments(ctx, actor, postRemoteID)
	return s.finish(ActionFetchComments, actor, out, err)
}

func (s *Service) fetchComments(ctx context.Context, actor *model.Moderator, postRemoteID string) (*Outcome, error) {
	if err := requireRemoteModerator(actor, ActionFetchComments); err != nil {
		return nil, err
	}

	post, err := s.repos.Posts.FindByPostID(ctx, postRemoteID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postRemoteID)
	}

	remote, err := s.graph.FetchComments(ctx, post.PostID, actor.AccessToken)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	created := 0
	err = s.tx.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, c := range remote {
			ok, err := repos.Comments.CreateIfAbsent(ctx, &model.Comment{
				ID:        uuid.New().String(),
				PostID:    post.ID,
				CommentID: c.CommentID,
				UserName:  s.sanitizer.Sanitize(c.UserName),
				Content:   s.sanitizer.Sanitize(c.Content),
				CreatedAt: c.CreatedAt,
				FetchedAt: now,
			})
			if err != nil {
				return fmt.Errorf("comment %s: %w", c.CommentID, err)
			}
			if ok {
				created++
			}
		}
		return repos.Stats.Increment(ctx, actor.ID, model.CounterCommentsFetched, created)
	})
	if err != nil {
		return nil, fmt.Errorf("コメントの保存に失敗しました: %w", err)
	}

	return &Outcome{
		Message: fmt.Sprintf("%d 件の新しいコメントを取得しました。", created),
		Count:   created,
	}, nil
}
