// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/toxguard/internal/model"
)

// ModeratorIDHeader は上流の認証プロキシが設定する操作者IDのヘッダー名。
const ModeratorIDHeader = "X-Moderator-ID"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// moderatorContextKey はリクエストコンテキストに操作者を格納するためのキー。
var moderatorContextKey = contextKey("moderator")

// moderatorSlotKey は前段のミドルウェアが特定後の操作者IDを受け取るためのキー。
var moderatorSlotKey = contextKey("moderator_slot")

// ModeratorFinder は操作者の検索に必要なインターフェース。
// repository.ModeratorRepositoryの部分集合として定義する。
type ModeratorFinder interface {
	FindByID(ctx context.Context, id string) (*model.Moderator, error)
}

// NewIdentityMiddleware はX-Moderator-IDヘッダーから操作者を特定するミドルウェアを返す。
// 認証自体は上流の責務であり、ここではIDに対応するアカウントの存在とロールを解決する。
// 操作者が特定できないリクエストには401 Unauthorizedを返す。
// UUID形式でないIDはデータベースに問い合わせずに拒否する。
func NewIdentityMiddleware(finder ModeratorFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(ModeratorIDHeader))
			if id == "" {
				writeUnauthorized(w)
				return
			}

			parsed, err := uuid.Parse(id)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			id = parsed.String()

			moderator, err := finder.FindByID(r.Context(), id)
			if err != nil {
				slog.Error("failed to find moderator",
					slog.String("moderator_id", id),
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w)
				return
			}
			if moderator == nil {
				writeUnauthorized(w)
				return
			}

			if slot, ok := r.Context().Value(moderatorSlotKey).(*string); ok {
				*slot = moderator.ID
			}
			next.ServeHTTP(w, r.WithContext(ContextWithModerator(r.Context(), moderator)))
		})
	}
}

// ModeratorFromContext はリクエストコンテキストから操作者を取得する。
// IdentityMiddlewareを通過したリクエストでのみ有効。
func ModeratorFromContext(ctx context.Context) (*model.Moderator, error) {
	m, ok := ctx.Value(moderatorContextKey).(*model.Moderator)
	if !ok || m == nil || m.ID == "" {
		return nil, fmt.Errorf("moderator not found in context")
	}
	return m, nil
}

// ContextWithModerator はコンテキストに操作者を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithModerator(ctx context.Context, m *model.Moderator) context.Context {
	return context.WithValue(ctx, moderatorContextKey, m)
}

func withModeratorSlot(ctx context.Context, slot *string) context.Context {
	return context.WithValue(ctx, moderatorSlotKey, slot)
}

func writeUnauthorized(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewModeratorNotFoundError())
}
