// Package facebook はFacebook Graph APIのクライアントを提供する。
// 投稿・コメントの取得とコメントの削除・非表示・再表示のみを扱う。
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/toxguard/internal/model"
)

const (
	// DefaultBaseURL はGraph APIのベースURL。
	DefaultBaseURL = "https://graph.facebook.com"
	// APIVersion は固定で使用するGraph APIのバージョン。
	APIVersion = "v21.0"
	// postsPageLimit は投稿取得1回あたりの最大件数。
	postsPageLimit = 100
	// graphTimeLayout はGraph APIが返す日時の形式。
	graphTimeLayout = "2006-01-02T15:04:05-0700"
	// unknownAuthor は投稿者名が取得できない場合の表示名。
	unknownAuthor = "Unknown"

	serviceName = "Facebook Graph API"
)

// CallObserver は外部呼び出しの所要時間と結果を受け取る。
type CallObserver interface {
	ObserveRemoteCall(service, operation string, elapsed time.Duration, err error)
}

// Options はClientの設定。
type Options struct {
	BaseURL    string        // 空の場合はDefaultBaseURL
	Timeout    time.Duration // 1呼び出しあたりのタイムアウト
	RatePerSec float64       // 呼び出しレートの上限。0以下の場合は制限しない
	Observer   CallObserver  // nilの場合は計測しない
}

// Client はGraph APIのクライアント。
// タイムアウトした呼び出しは失敗した呼び出しと同様に扱う。
type Client struct {
	http     *resty.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	observer CallObserver
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(opts Options, logger *slog.Logger) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
		burst = max(1, int(opts.RatePerSec))
	}

	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/") + "/" + APIVersion).
			SetTimeout(timeout).
			SetHeader("User-Agent", "toxguard/1.0"),
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		observer: opts.Observer,
	}
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type postsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		CreatedTime string `json:"created_time"`
	} `json:"data"`
	Error *graphError `json:"error"`
}

type commentsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		CreatedTime string `json:"created_time"`
		From        *struct {
			Name string `json:"name"`
		} `json:"from"`
	} `json:"data"`
	Error *graphError `json:"error"`
}

type successResponse struct {
	Success bool        `json:"success"`
	Error   *graphError `json:"error"`
}

// FetchPosts はページの投稿を取得する。
// HTTPステータスが成功以外の場合はエラーを返し、部分的な結果は返さない。
func (c *Client) FetchPosts(ctx context.Context, pageID, token string) ([]model.RemotePost, error) {
	var body postsResponse
	err := c.call(ctx, "fetch_posts", func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetAuthToken(token).
			SetPathParam("pageID", pageID).
			SetQueryParams(map[string]string{
				"fields": "id,message,created_time",
				"limit":  fmt.Sprint(postsPageLimit),
			}).
			Get("/{pageID}/posts")
	}, &body)
	if err != nil {
		return nil, err
	}

	posts := make([]model.RemotePost, 0, len(body.Data))
	for _, p := range body.Data {
		createdAt, err := parseGraphTime(p.CreatedTime)
		if err != nil {
			return nil, c.remoteError("fetch_posts", fmt.Errorf("post %s: %w", p.ID, err))
		}
		posts = append(posts, model.RemotePost{
			PostID:    p.ID,
			Message:   p.Message,
			CreatedAt: createdAt,
		})
	}
	return posts, nil
}

// FetchComments は投稿のコメントを取得する。
// レスポンスにerrorが含まれる場合はエラーを返す。0件は正常な結果として扱う。
func (c *Client) FetchComments(ctx context.Context, postID, token string) ([]model.RemoteComment, error) {
	var body commentsResponse
	err := c.call(ctx, "fetch_comments", func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetPathParam("postID", postID).
			SetQueryParam("access_token", token).
			Get("/{postID}/comments")
	}, &body)
	if err != nil {
		return nil, err
	}

	comments := make([]model.RemoteComment, 0, len(body.Data))
	for _, rc := range body.Data {
		createdAt, err := parseGraphTime(rc.CreatedTime)
		if err != nil {
			return nil, c.remoteError("fetch_comments", fmt.Errorf("comment %s: %w", rc.ID, err))
		}
		author := unknownAuthor
		if rc.From != nil && rc.From.Name != "" {
			author = rc.From.Name
		}
		comments = append(comments, model.RemoteComment{
			CommentID: rc.ID,
			UserName:  author,
			Content:   rc.Message,
			CreatedAt: createdAt,
		})
	}
	return comments, nil
}

// DeleteComment はコメントを削除する。
// 失敗を「既に存在しない」とは解釈せず、そのままエラーとして返す。
func (c *Client) DeleteComment(ctx context.Context, commentID, token string) error {
	return c.call(ctx, "delete_comment", func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetPathParam("commentID", commentID).
			SetQueryParam("access_token", token).
			Delete("/{commentID}")
	}, nil)
}

// HideComment はコメントを非表示にする。
func (c *Client) HideComment(ctx context.Context, commentID, token string) error {
	return c.setHidden(ctx, "hide_comment", commentID, token, true)
}

// UnhideComment はコメントを再表示する。
func (c *Client) UnhideComment(ctx context.Context, commentID, token string) error {
	return c.setHidden(ctx, "unhide_comment", commentID, token, false)
}

// setHidden はHTTP 200かつレスポンスのsuccessが真の場合のみ成功とする。
func (c *Client) setHidden(ctx context.Context, op, commentID, token string, hidden bool) error {
	var body successResponse
	err := c.call(ctx, op, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetPathParam("commentID", commentID).
			SetFormData(map[string]string{
				"is_hidden":    strings.ToUpper(fmt.Sprint(hidden)),
				"access_token": token,
			}).
			Post("/{commentID}")
	}, &body)
	if err != nil {
		return err
	}
	if !body.Success {
		return c.remoteError(op, errors.New("response did not acknowledge success"))
	}
	return nil
}

// call はレート制限の待機、呼び出し、ステータス確認、JSONデコードを行う。
// outがnilの場合はボディをデコードしない。
func (c *Client) call(
	ctx context.Context,
	op string,
	do func(req *resty.Request) (*resty.Response, error),
	out any,
) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRemoteCall("facebook", op, time.Since(start), err)
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return c.remoteError(op, err)
	}

	resp, err := do(c.http.R().SetContext(ctx))
	if err != nil {
		return c.remoteError(op, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return c.remoteError(op, fmt.Errorf("status %d: %s", resp.StatusCode(), graphErrorMessage(resp.Body())))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return c.remoteError(op, fmt.Errorf("failed to parse response: %w", err))
	}
	if msg := embeddedError(out); msg != "" {
		return c.remoteError(op, errors.New(msg))
	}
	return nil
}

func (c *Client) remoteError(op string, cause error) error {
	c.logger.Error("Graph APIの呼び出しに失敗しました",
		slog.String("operation", op),
		slog.String("error", cause.Error()),
	)
	return model.NewRemoteUnavailableError(serviceName, cause)
}

// embeddedError はHTTP 200でもボディに含まれるerrorオブジェクトのメッセージを返す。
func embeddedError(out any) string {
	var ge *graphError
	switch v := out.(type) {
	case *postsResponse:
		ge = v.Error
	case *commentsResponse:
		ge = v.Error
	case *successResponse:
		ge = v.Error
	}
	if ge == nil {
		return ""
	}
	if ge.Message == "" {
		return "graph api returned an error object"
	}
	return ge.Message
}

func graphErrorMessage(body []byte) string {
	var wrapper struct {
		Error *graphError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// parseGraphTime はGraph APIの日時を解析する。RFC3339形式も受け付ける。
func parseGraphTime(s string) (time.Time, error) {
	if t, err := time.Parse(graphTimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_time %q", s)
	}
	return t, nil
}
