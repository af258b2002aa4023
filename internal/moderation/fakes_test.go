package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/toxguard/internal/model"
	"github.com/hitoshi/toxguard/internal/repository"
)

// --- インメモリストア ---

// memStore はPostgreSQLの各テーブルを模したインメモリストア。
// RunInTxはfnの実行前にスナップショットを取り、エラー時に復元する。
type memStore struct {
	mu sync.Mutex

	posts       map[string]model.Post       // key: Facebook投稿ID
	comments    map[string]model.Comment    // key: FacebookコメントID
	predictions map[string]model.Prediction // key: comments.id
	tombstones  map[string]model.Tombstone  // key: FacebookコメントID
	stats       map[string]model.ModeratorStats
	seq         int

	// 障害注入
	failUpsert    map[string]error // key: comments.id
	failIncrement error
	failTombstone error
}

func newMemStore() *memStore {
	return &memStore{
		posts:       map[string]model.Post{},
		comments:    map[string]model.Comment{},
		predictions: map[string]model.Prediction{},
		tombstones:  map[string]model.Tombstone{},
		stats:       map[string]model.ModeratorStats{},
		failUpsert:  map[string]error{},
	}
}

type memSnapshot struct {
	posts       map[string]model.Post
	comments    map[string]model.Comment
	predictions map[string]model.Prediction
	tombstones  map[string]model.Tombstone
	stats       map[string]model.ModeratorStats
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	return memSnapshot{
		posts:       copyMap(s.posts),
		comments:    copyMap(s.comments),
		predictions: copyMap(s.predictions),
		tombstones:  copyMap(s.tombstones),
		stats:       copyMap(s.stats),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.posts = snap.posts
	s.comments = snap.comments
	s.predictions = snap.predictions
	s.tombstones = snap.tombstones
	s.stats = snap.stats
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// repos はストアに束ねたリポジトリ一式を返す。
func (s *memStore) repos() repository.Repositories {
	return repository.Repositories{
		Posts:       &memPosts{s},
		Comments:    &memComments{s},
		Predictions: &memPredictions{s},
		Tombstones:  &memTombstones{s},
		Stats:       &memStats{s},
	}
}

// RunInTx はTxManagerを実装する。
func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(ctx, s.repos()); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

// --- テスト用ヘルパー ---

func (s *memStore) addPost(postID, owner string) model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := model.Post{
		ID:        s.nextID("post"),
		PostID:    postID,
		Message:   "post " + postID,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FetchedBy: owner,
	}
	s.posts[postID] = p
	return p
}

func (s *memStore) addComment(post model.Post, commentID, content string) model.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := model.Comment{
		ID:        s.nextID("comment"),
		PostID:    post.ID,
		CommentID: commentID,
		UserName:  "user " + commentID,
		Content:   content,
		CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, s.seq, time.UTC),
	}
	s.comments[commentID] = c
	return c
}

func (s *memStore) prediction(commentID string) (model.Prediction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	if !ok {
		return model.Prediction{}, false
	}
	p, ok := s.predictions[c.ID]
	return p, ok
}

func (s *memStore) comment(commentID string) (model.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[commentID]
	return c, ok
}

func (s *memStore) tombstone(commentID string) (model.Tombstone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tombstones[commentID]
	return t, ok
}

func (s *memStore) statsOf(moderatorID string) (model.ModeratorStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[moderatorID]
	return st, ok
}

func (s *memStore) predictionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.predictions)
}

func (s *memStore) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// withPrediction はロック取得済みの状態でコメントに予測ラベルを結合する。
func (s *memStore) withPrediction(c model.Comment) *model.CommentWithPrediction {
	cwp := &model.CommentWithPrediction{Comment: c}
	for _, p := range s.posts {
		if p.ID == c.PostID {
			cwp.RemotePostID = p.PostID
		}
	}
	if p, ok := s.predictions[c.ID]; ok {
		pp := p
		cwp.Prediction = &pp
	}
	return cwp
}

// --- PostRepository ---

type memPosts struct{ s *memStore }

func (r *memPosts) ExistingPostIDs(ctx context.Context, postIDs []string) (map[string]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing := map[string]bool{}
	for _, id := range postIDs {
		if _, ok := r.s.posts[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func (r *memPosts) CreateIfAbsent(ctx context.Context, post *model.Post) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[post.PostID]; ok {
		return false, nil
	}
	r.s.posts[post.PostID] = *post
	return true, nil
}

func (r *memPosts) FindByPostID(ctx context.Context, postID string) (*model.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[postID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPosts) ListByOwner(ctx context.Context, ownerID, search string) ([]*model.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Post
	q := strings.ToLower(search)
	for _, p := range r.s.posts {
		if p.FetchedBy != ownerID {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(p.PostID), q) || strings.Contains(strings.ToLower(p.Message), q) {
			pp := p
			out = append(out, &pp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- CommentRepository ---

type memComments struct{ s *memStore }

func (r *memComments) FindByID(ctx context.Context, commentID string) (*model.CommentWithPrediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[commentID]
	if !ok {
		return nil, nil
	}
	return r.s.withPrediction(c), nil
}

func (r *memComments) FindByIDs(ctx context.Context, commentIDs []string) ([]*model.CommentWithPrediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.CommentWithPrediction
	for _, id := range commentIDs {
		if c, ok := r.s.comments[id]; ok {
			out = append(out, r.s.withPrediction(c))
		}
	}
	return out, nil
}

func (r *memComments) CreateIfAbsent(ctx context.Context, comment *model.Comment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.comments[comment.CommentID]; ok {
		return false, nil
	}
	r.s.comments[comment.CommentID] = *comment
	return true, nil
}

func (r *memComments) SetHidden(ctx context.Context, commentID string, hidden bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[commentID]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsHidden = hidden
	r.s.comments[commentID] = c
	return nil
}

func (r *memComments) Delete(ctx context.Context, commentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[commentID]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.s.comments, commentID)
	delete(r.s.predictions, c.ID)
	return nil
}

func (r *memComments) ListByOwner(ctx context.Context, ownerID string, filter repository.CommentFilter) ([]*model.CommentWithPrediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	owned := map[string]bool{}
	for _, p := range r.s.posts {
		if p.FetchedBy == ownerID {
			owned[p.ID] = true
		}
	}
	search := strings.ToLower(filter.Search)

	var out []*model.CommentWithPrediction
	for _, c := range r.s.comments {
		if !owned[c.PostID] {
			continue
		}
		cwp := r.s.withPrediction(c)
		switch filter.Status {
		case model.CommentStatusAnalyzed:
			if !cwp.Analyzed() {
				continue
			}
		case model.CommentStatusUnanalyzed:
			if cwp.Analyzed() {
				continue
			}
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Content), search) &&
			!strings.Contains(strings.ToLower(c.UserName), search) {
			continue
		}
		out = append(out, cwp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- PredictionRepository ---

type memPredictions struct{ s *memStore }

func (r *memPredictions) FindByCommentID(ctx context.Context, commentRowID string) (*model.Prediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.predictions[commentRowID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memPredictions) Upsert(ctx context.Context, commentRowID string, labels model.LabelSet, source model.PredictionSource) (*model.Prediction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failUpsert[commentRowID]; err != nil {
		return nil, err
	}
	p, ok := r.s.predictions[commentRowID]
	if !ok {
		p = model.Prediction{ID: r.s.nextID("prediction"), CommentID: commentRowID}
	}
	p.Labels = labels
	p.Source = source
	p.PredictedAt = time.Now()
	r.s.predictions[commentRowID] = p
	return &p, nil
}

// --- TombstoneRepository ---

type memTombstones struct{ s *memStore }

func (r *memTombstones) CreateIfAbsent(ctx context.Context, t *model.Tombstone) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failTombstone != nil {
		return false, r.s.failTombstone
	}
	if _, ok := r.s.tombstones[t.CommentID]; ok {
		return false, nil
	}
	if t.ID == "" {
		t.ID = r.s.nextID("tombstone")
	}
	r.s.tombstones[t.CommentID] = *t
	return true, nil
}

func (r *memTombstones) FindByCommentID(ctx context.Context, commentID string) (*model.Tombstone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tombstones[commentID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *memTombstones) ListByOwner(ctx context.Context, ownerID, search string) ([]*model.Tombstone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	owned := map[string]bool{}
	for _, p := range r.s.posts {
		if p.FetchedBy == ownerID {
			owned[p.ID] = true
		}
	}
	var out []*model.Tombstone
	for _, t := range r.s.tombstones {
		if t.PostID == nil || !owned[*t.PostID] {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Content), strings.ToLower(search)) {
			continue
		}
		tt := t
		out = append(out, &tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(out[j].DeletedAt) })
	return out, nil
}

// --- StatsRepository ---

type memStats struct{ s *memStore }

func (r *memStats) Increment(ctx context.Context, moderatorID string, counter model.Counter, n int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failIncrement != nil {
		return r.s.failIncrement
	}
	if !counter.Valid() {
		return fmt.Errorf("unknown counter: %q", counter)
	}
	if n == 0 {
		return nil
	}
	st := r.s.stats[moderatorID]
	st.ModeratorID = moderatorID
	st.Add(counter, n)
	st.LastUpdated = time.Now()
	r.s.stats[moderatorID] = st
	return nil
}

func (r *memStats) SetModelServing(ctx context.Context, moderatorID string, serving bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.stats[moderatorID]
	st.ModeratorID = moderatorID
	st.IsModelServing = serving
	r.s.stats[moderatorID] = st
	return nil
}

func (r *memStats) FindByModerator(ctx context.Context, moderatorID string) (*model.ModeratorStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stats[moderatorID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *memStats) ListAll(ctx context.Context) ([]*model.ModeratorStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ModeratorStats
	for _, st := range r.s.stats {
		ss := st
		out = append(out, &ss)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModeratorID < out[j].ModeratorID })
	return out, nil
}

// --- SummaryRepository ---

type mockSummaryRepo struct {
	toxicitySummaryFn func(ctx context.Context, ownerID string) (*model.ToxicitySummary, error)
}

func (m *mockSummaryRepo) ToxicitySummary(ctx context.Context, ownerID string) (*model.ToxicitySummary, error) {
	return m.toxicitySummaryFn(ctx, ownerID)
}

// --- 外部サービス ---

var errRemote = model.NewRemoteUnavailableError("Facebook Graph API", errors.New("connection refused"))

type fakeGraph struct {
	mu       sync.Mutex
	posts    []model.RemotePost
	comments map[string][]model.RemoteComment
	errs     map[string]error // key: 操作名
	calls    []string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{comments: map[string][]model.RemoteComment{}, errs: map[string]error{}}
}

func (g *fakeGraph) record(op, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, op+":"+id)
	return g.errs[op]
}

func (g *fakeGraph) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGraph) FetchPosts(ctx context.Context, pageID, token string) ([]model.RemotePost, error) {
	if err := g.record("fetch_posts", pageID); err != nil {
		return nil, err
	}
	return g.posts, nil
}

func (g *fakeGraph) FetchComments(ctx context.Context, postID, token string) ([]model.RemoteComment, error) {
	if err := g.record("fetch_comments", postID); err != nil {
		return nil, err
	}
	return g.comments[postID], nil
}

func (g *fakeGraph) DeleteComment(ctx context.Context, commentID, token string) error {
	return g.record("delete", commentID)
}

func (g *fakeGraph) HideComment(ctx context.Context, commentID, token string) error {
	return g.record("hide", commentID)
}

func (g *fakeGraph) UnhideComment(ctx context.Context, commentID, token string) error {
	return g.record("unhide", commentID)
}

// fakeScorer はテキストごとのラベルを返す推論サービスのモック。
// 未登録のテキストはすべてfalseのラベルとなる。
type fakeScorer struct {
	mu        sync.Mutex
	labels    map[string]model.LabelSet
	oneErr    error
	manyErr   error
	truncate  bool // trueの場合は一括推論の結果を1件少なく返す
	oneCalls  int
	manyCalls int
}

func newFakeScorer() *fakeScorer {
	return &fakeScorer{labels: map[string]model.LabelSet{}}
}

func (f *fakeScorer) PredictOne(ctx context.Context, text string) (model.LabelSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oneCalls++
	if f.oneErr != nil {
		return model.LabelSet{}, f.oneErr
	}
	return f.labels[text], nil
}

func (f *fakeScorer) PredictMany(ctx context.Context, texts []string) ([]model.LabelSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manyCalls++
	if f.manyErr != nil {
		return nil, f.manyErr
	}
	out := make([]model.LabelSet, 0, len(texts))
	for _, t := range texts {
		out = append(out, f.labels[t])
	}
	if f.truncate && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// recordingMetrics は記録されたアクションを保持するRecorder。
type recordingMetrics struct {
	mu          sync.Mutex
	actions     []string
	predictions map[string]int
}

func (m *recordingMetrics) RecordAction(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action+"/"+outcome)
}

func (m *recordingMetrics) ObserveRemoteCall(service, operation string, elapsed time.Duration, err error) {
}

func (m *recordingMetrics) RecordPredictionsWritten(source string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = map[string]int{}
	}
	m.predictions[source] += count
}

func (m *recordingMetrics) RecordHTTPStatus(statusCode int) {}

// --- セットアップ ---

type testEnv struct {
	store   *memStore
	graph   *fakeGraph
	scorer  *fakeScorer
	metrics *recordingMetrics
	svc     *Service
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv() *testEnv {
	env := &testEnv{
		store:   newMemStore(),
		graph:   newFakeGraph(),
		scorer:  newFakeScorer(),
		metrics: &recordingMetrics{},
	}
	summary := &mockSummaryRepo{
		toxicitySummaryFn: func(ctx context.Context, ownerID string) (*model.ToxicitySummary, error) {
			return &model.ToxicitySummary{TotalComments: 3, Toxic: 1, NonToxic: 2}, nil
		},
	}
	env.svc = NewService(Deps{
		Tx:      env.store,
		Repos:   env.store.repos(),
		Summary: summary,
		Graph:   env.graph,
		Scorer:  env.scorer,
		Metrics: env.metrics,
		Now:     func() time.Time { return fixedNow },
	})
	return env
}

func newModerator(id string) *model.Moderator {
	admin := "admin-1"
	return &model.Moderator{
		ID:          id,
		Username:    id,
		Role:        model.RoleModerator,
		AccessToken: "token-" + id,
		PageID:      "page-1",
		AssignedBy:  &admin,
	}
}

func newAdmin() *model.Moderator {
	return &model.Moderator{
		ID:          "admin-1",
		Username:    "admin",
		Role:        model.RoleAdmin,
		AccessToken: "token-admin",
		PageID:      "page-1",
	}
}
