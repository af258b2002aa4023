package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/toxguard/internal/model"
)

func remotePost(id, message string) model.RemotePost {
	return model.RemotePost{PostID: id, Message: message, CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func remoteComment(id, author, text string) model.RemoteComment {
	return model.RemoteComment{CommentID: id, UserName: author, Content: text, CreatedAt: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}
}

// TestFetchPostsIncremental_Dedup は既存の投稿IDが再作成されず、新規作成件数のみ加算されることを検証する。
func TestFetchPostsIncremental_Dedup(t *testing.T) {
	env := newTestEnv()
	actor := newModerator("mod-1")
	ctx := context.Background()

	env.graph.posts = []model.RemotePost{remotePost("p1", "first"), remotePost("p2", "second")}
	out, err := env.svc.FetchPostsIncremental(ctx, actor)
	if err != nil {
		t.Fatalf("first fetch returned error: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("first count = %d, want 2", out.Count)
	}

	env.graph.posts = []model.RemotePost{remotePost("p1", "edited"), remotePost("p3", "third")}
	out, err = env.svc.FetchPostsIncremental(ctx, actor)
	if err != nil {
		t.Fatalf("second fetch returned error: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("second count = %d, want 1", out.Count)
	}

	out, err = env.svc.FetchPostsIncremental(ctx, actor)
	if err != nil {
		t.Fatalf("third fetch returned error: %v", err)
	}
	if out.Count != 0 {
		t.Errorf("third count = %d, want 0", out.Count)
	}

	if env.store.postCount() != 3 {
		t.Errorf("post count = %d, want 3", env.store.postCount())
	}
	p1, _ := env.store.repos().Posts.FindByPostID(ctx, "p1")
	if p1.Message != "first" {
		t.Errorf("p1 message = %q, existing post must not be overwritten", p1.Message)
	}
	st, _ := env.store.statsOf("mod-1")
	if st.PostsFetched != 3 {
		t.Errorf("posts_fetched = %d, want 3", st.PostsFetched)
	}
}

// TestFetchPostsIncremental_OwnerAndMessage は所有者が割り当て元の管理者となり、本文がそのまま保存されることを検証する。
func TestFetchPostsIncremental_OwnerAndMessage(t *testing.T) {
	env := newTestEnv()
	env.graph.posts = []model.RemotePost{remotePost("p1", "<b>Sale</b> &amp; more\x00")}

	if _, err := env.svc.FetchPostsIncremental(context.Background(), newModerator("mod-1")); err != nil {
		t.Fatalf("FetchPostsIncremental returned error: %v", err)
	}

	p, _ := env.store.repos().Posts.FindByPostID(context.Background(), "p1")
	if p.FetchedBy != "admin-1" {
		t.Errorf("FetchedBy = %q, want admin-1", p.FetchedBy)
	}
	if p.Message != "<b>Sale</b> &amp; more" {
		t.Errorf("Message = %q, want %q", p.Message, "<b>Sale</b> &amp; more")
	}
	if !p.FetchedAt.Equal(fixedNow) {
		t.Errorf("FetchedAt = %v, want %v", p.FetchedAt, fixedNow)
	}
	if env.graph.calls[0] != "fetch_posts:page-1" {
		t.Errorf("graph call = %q, want fetch_posts:page-1", env.graph.calls[0])
	}
}

// TestFetchPostsIncremental_DuplicateInResponse は同一レスポンス内の重複IDを1件として扱うことを検証する。
func TestFetchPostsIncremental_DuplicateInResponse(t *testing.T) {
	env := newTestEnv()
	env.graph.posts = []model.RemotePost{remotePost("p1", "a"), remotePost("p1", "a")}

	out, err := env.svc.FetchPostsIncremental(context.Background(), newModerator("mod-1"))
	if err != nil {
		t.Fatalf("FetchPostsIncremental returned error: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("count = %d, want 1", out.Count)
	}
}

// TestFetchPostsIncremental_RemoteFailure はGraph APIの失敗時に何も保存されないことを検証する。
func TestFetchPostsIncremental_RemoteFailure(t *testing.T) {
	env := newTestEnv()
	env.graph.errs["fetch_posts"] = errRemote

	_, err := env.svc.FetchPostsIncremental(context.Background(), newModerator("mod-1"))
	if !model.HasCode(err, model.ErrCodeRemoteUnavailable) {
		t.Fatalf("expected REMOTE_UNAVAILABLE, got %v", err)
	}
	if env.store.postCount() != 0 {
		t.Error("expected no posts after remote failure")
	}
	if _, ok := env.store.statsOf("mod-1"); ok {
		t.Error("expected no stats row after remote failure")
	}
}

// TestFetchPostsIncremental_MissingPageID はページIDが未割り当ての場合にTOKEN_MISSINGとなることを検証する。
func TestFetchPostsIncremental_MissingPageID(t *testing.T) {
	env := newTestEnv()
	actor := newModerator("mod-1")
	actor.PageID = ""

	_, err := env.svc.FetchPostsIncremental(context.Background(), actor)
	if !model.HasCode(err, model.ErrCodeTokenMissing) {
		t.Fatalf("expected TOKEN_MISSING, got %v", err)
	}
	if env.graph.callCount() != 0 {
		t.Error("graph must not be called without page id")
	}
}

// TestFetchCommentsIncremental は新規コメントのみ作成され、既存コメントの本文が上書きされないことを検証する。
func TestFetchCommentsIncremental(t *testing.T) {
	env := newTestEnv()
	post := env.store.addPost("p1", "admin-1")
	env.store.addComment(post, "c1", "original")
	actor := newModerator("mod-1")
	ctx := context.Background()

	env.graph.comments["p1"] = []model.RemoteComment{
		remoteComment("c1", "alice", "edited on facebook"),
		remoteComment("c2", "bob", "new comment"),
		remoteComment("c3", "carol", "another"),
	}

	out, err := env.svc.FetchCommentsIncremental(ctx, actor, "p1")
	if err != nil {
		t.Fatalf("FetchCommentsIncremental returned error: %v", err)
	}
	if out.Count != 2 {
		t.Errorf("count = %d, want 2", out.Count)
	}

	c1, _ := env.store.comment("c1")
	if c1.Content != "original" {
		t.Errorf("c1 content = %q, existing comment must not be overwritten", c1.Content)
	}
	c2, ok := env.store.comment("c2")
	if !ok {
		t.Fatal("expected c2 to be created")
	}
	if c2.Content != "new comment" || c2.PostID != post.ID || c2.IsHidden {
		t.Errorf("c2 = %+v", c2)
	}

	out, err = env.svc.FetchCommentsIncremental(ctx, actor, "p1")
	if err != nil {
		t.Fatalf("refetch returned error: %v", err)
	}
	if out.Count != 0 {
		t.Errorf("refetch count = %d, want 0", out.Count)
	}

	st, _ := env.store.statsOf("mod-1")
	if st.CommentsFetched != 2 {
		t.Errorf("comments_fetched = %d, want 2", st.CommentsFetched)
	}
}

// TestFetchCommentsIncremental_KeepsAngleBrackets は山括弧を含む本文が切り詰められずに保存され、
// その全文が推論サービスに渡ることを検証する。
func TestFetchCommentsIncremental_KeepsAngleBrackets(t *testing.T) {
	env := newTestEnv()
	env.store.addPost("p1", "admin-1")
	actor := newModerator("mod-1")
	ctx := context.Background()

	texts := map[string]string{
		"c1": "nice a<b ... you are an idiot and I will hurt you",
		"c2": "if a<b then you lose",
		"c3": "x <y and z",
	}
	env.graph.comments["p1"] = []model.RemoteComment{
		remoteComment("c1", "<mallory", texts["c1"]),
		remoteComment("c2", "bob", texts["c2"]),
		remoteComment("c3", "carol", texts["c3"]),
	}

	if _, err := env.svc.FetchCommentsIncremental(ctx, actor, "p1"); err != nil {
		t.Fatalf("FetchCommentsIncremental returned error: %v", err)
	}

	for id, want := range texts {
		c, ok := env.store.comment(id)
		if !ok {
			t.Fatalf("expected %s to be created", id)
		}
		if c.Content != want {
			t.Errorf("%s content = %q, want %q", id, c.Content, want)
		}
	}
	c1, _ := env.store.comment("c1")
	if c1.UserName != "<mallory" {
		t.Errorf("c1 user name = %q, want %q", c1.UserName, "<mallory")
	}

	// 推論サービスは全文に対してのみ有害と判定する
	env.scorer.labels[texts["c1"]] = model.LabelSet{Toxic: true, Threat: true}
	if _, err := env.svc.AnalyzeOne(ctx, actor, "c1"); err != nil {
		t.Fatalf("AnalyzeOne returned error: %v", err)
	}
	pred, ok := env.store.prediction("c1")
	if !ok || !pred.Labels.Toxic || !pred.Labels.Threat {
		t.Errorf("prediction = %+v, want toxic and threat from the full text", pred)
	}
}

// TestFetchCommentsIncremental_Empty は空の応答が成功として扱われることを検証する。
func TestFetchCommentsIncremental_Empty(t *testing.T) {
	env := newTestEnv()
	env.store.addPost("p1", "admin-1")

	out, err := env.svc.FetchCommentsIncremental(context.Background(), newModerator("mod-1"), "p1")
	if err != nil {
		t.Fatalf("FetchCommentsIncremental returned error: %v", err)
	}
	if out.Count != 0 {
		t.Errorf("count = %d, want 0", out.Count)
	}
	if _, ok := env.store.statsOf("mod-1"); ok {
		t.Error("expected no stats row when nothing was fetched")
	}
}

// TestFetchCommentsIncremental_UnknownPost は未保存の投稿でPOST_NOT_FOUNDとなることを検証する。
func TestFetchCommentsIncremental_UnknownPost(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.FetchCommentsIncremental(context.Background(), newModerator("mod-1"), "nope")
	if !model.HasCode(err, model.ErrCodePostNotFound) {
		t.Fatalf("expected POST_NOT_FOUND, got %v", err)
	}
	if env.graph.callCount() != 0 {
		t.Error("graph must not be called for unknown post")
	}
}

// TestFetchCommentsIncremental_RemoteFailure はGraph APIのエラー応答で何も保存されないことを検証する。
func TestFetchCommentsIncremental_RemoteFailure(t *testing.T) {
	env := newTestEnv()
	env.store.addPost("p1", "admin-1")
	env.graph.comments["p1"] = []model.RemoteComment{remoteComment("c1", "a", "b")}
	env.graph.errs["fetch_comments"] = errRemote

	_, err := env.svc.FetchCommentsIncremental(context.Background(), newModerator("mod-1"), "p1")
	if !model.HasCode(err, model.ErrCodeRemoteUnavailable) {
		t.Fatalf("expected REMOTE_UNAVAILABLE, got %v", err)
	}
	if _, ok := env.store.comment("c1"); ok {
		t.Error("expected no comment after remote failure")
	}
}
