// Package scoring は毒性推論サービスのクライアントを提供する。
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/toxguard/internal/model"
)

const (
	// DefaultBaseURL は推論サービスのデフォルトURL。
	DefaultBaseURL = "http://127.0.0.1:5000"
	// DefaultTimeout は1呼び出しあたりのデフォルトタイムアウト。
	DefaultTimeout = 10 * time.Second

	serviceName = "推論サービス"
)

// CallObserver は外部呼び出しの所要時間と結果を受け取る。
type CallObserver interface {
	ObserveRemoteCall(service, operation string, elapsed time.Duration, err error)
}

// Options はClientの設定。
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Observer CallObserver
}

// Client は推論サービスのクライアント。
// 失敗時に部分的なラベルを返すことはない。
type Client struct {
	http     *resty.Client
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
		timeout = DefaultTimeout
	}

	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		logger:   logger,
		observer: opts.Observer,
	}
}

// flag は推論結果の1次元。JSONの真偽値と0/1の数値を受け付ける。
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1", "1.0":
		*f = true
	case "false", "0", "0.0":
		*f = false
	default:
		return fmt.Errorf("invalid label value: %s", b)
	}
	return nil
}

// labels は推論サービスのラベル表現。欠損した次元はエラーとして扱う。
type labels struct {
	Toxic        *flag `json:"toxic"`
	SevereToxic  *flag `json:"severe_toxic"`
	Obscene      *flag `json:"obscene"`
	Threat       *flag `json:"threat"`
	Insult       *flag `json:"insult"`
	IdentityHate *flag `json:"identity_hate"`
}

func (l labels) toLabelSet() (model.LabelSet, error) {
	fields := []struct {
		name string
		v    *flag
	}{
		{model.LabelToxic, l.Toxic},
		{model.LabelSevereToxic, l.SevereToxic},
		{model.LabelObscene, l.Obscene},
		{model.LabelThreat, l.Threat},
		{model.LabelInsult, l.Insult},
		{model.LabelIdentityHate, l.IdentityHate},
	}
	for _, f := range fields {
		if f.v == nil {
			return model.LabelSet{}, fmt.Errorf("missing label %q", f.name)
		}
	}
	return model.LabelSet{
		Toxic:        bool(*l.Toxic),
		SevereToxic:  bool(*l.SevereToxic),
		Obscene:      bool(*l.Obscene),
		Threat:       bool(*l.Threat),
		Insult:       bool(*l.Insult),
		IdentityHate: bool(*l.IdentityHate),
	}, nil
}

type bulkItem struct {
	Prediction *labels `json:"prediction"`
}

// PredictOne は1件のテキストの毒性ラベルを推論する。
func (c *Client) PredictOne(ctx context.Context, text string) (model.LabelSet, error) {
	var out labels
	if err := c.post(ctx, "predict", "/predict", map[string]string{"text": text}, &out); err != nil {
		return model.LabelSet{}, err
	}

	ls, err := out.toLabelSet()
	if err != nil {
		return model.LabelSet{}, c.remoteError("predict", err)
	}
	return ls, nil
}

// PredictMany は複数テキストの毒性ラベルを1回の呼び出しで推論する。
// 結果は入力と同じ順序で対応する。件数が一致しない場合はバッチ全体を失敗とする。
// 入力が空の場合は呼び出しを行わずに空の結果を返す。
func (c *Client) PredictMany(ctx context.Context, texts []string) ([]model.LabelSet, error) {
	if len(texts) == 0 {
		return []model.LabelSet{}, nil
	}

	var out []bulkItem
	if err := c.post(ctx, "predict_bulk", "/predict_bulk", map[string][]string{"comments": texts}, &out); err != nil {
		return nil, err
	}

	if len(out) != len(texts) {
		c.logger.Error("一括推論の結果件数が一致しません",
			slog.Int("requested", len(texts)),
			slog.Int("returned", len(out)),
		)
		return nil, model.NewBatchIntegrityError(len(texts), len(out))
	}

	result := make([]model.LabelSet, len(out))
	for i, item := range out {
		if item.Prediction == nil {
			return nil, c.remoteError("predict_bulk", fmt.Errorf("item %d: missing prediction", i))
		}
		ls, err := item.Prediction.toLabelSet()
		if err != nil {
			return nil, c.remoteError("predict_bulk", fmt.Errorf("item %d: %w", i, err))
		}
		result[i] = ls
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRemoteCall("scoring", op, time.Since(start), err)
		}
	}()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return c.remoteError(op, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return c.remoteError(op, fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body()))))
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return c.remoteError(op, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func (c *Client) remoteError(op string, cause error) error {
	c.logger.Error("推論サービスの呼び出しに失敗しました",
		slog.String("operation", op),
		slog.String("error", cause.Error()),
	)
	return model.NewRemoteUnavailableError(serviceName, cause)
}
