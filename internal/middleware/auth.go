// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/cabinet/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
// bearerPrefix はAuthorizationヘッダーの必須接頭辞。
const bearerPrefix = "Bearer "

type contextKey string

// principalContextKey はリクエストコンテキストに認証主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// ガード名。ログとメトリクスのラベルに使用する。
const (
	GuardSession = "session"
	GuardAPIKey  = "api_key"
)

// TokenValidator はセッショントークンの検証に必要なインターフェース。
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.Account, error)
}

// KeyValidator はAPIキーの検証に必要なインターフェース。
type KeyValidator interface {
	Validate(ctx context.Context, key string) error
}

// AuthFailureRecorder は認証失敗の記録先。metrics.Collectorが満たす。
type AuthFailureRecorder interface {
	RecordAuthFailure(guard string)
}

// guardMessages はガードごとの失敗メッセージ。
type guardMessages struct {
	missing string
	invalid string
	failed  string
}

var (
	sessionMessages = guardMessages{
		missing: "token not provided",
		invalid: "invalid token",
		failed:  "authentication failed",
	}
	apiKeyMessages = guardMessages{
		missing: "API key not provided",
		invalid: "invalid API key",
		failed:  "API key validation failed",
	}
)

// NewSessionGuard は Authorization: Bearer <token> を検証するミドルウェアを返す。
// 検証に成功した場合はアカウントを認証主体としてコンテキストに注入する。
// ストアの障害も含め、失敗はすべて401で応答する。
func NewSessionGuard(validator TokenValidator, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				rejectRequest(w, r, recorder, GuardSession, sessionMessages.missing)
				return
			}

			account, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				rejectRequest(w, r, recorder, GuardSession, failureMessage(err, sessionMessages))
				return
			}

			ctx := ContextWithPrincipal(r.Context(), model.Principal{
				Kind:     model.PrincipalSession,
				Username: account.Username,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAPIKeyGuard は Authorization: Bearer <api key> を検証するミドルウェアを返す。
// 応答の形式はセッションガードと同じ。
func NewAPIKeyGuard(validator KeyValidator, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := bearerToken(r)
			if !ok {
				rejectRequest(w, r, recorder, GuardAPIKey, apiKeyMessages.missing)
				return
			}

			if err := validator.Validate(r.Context(), key); err != nil {
				rejectRequest(w, r, recorder, GuardAPIKey, failureMessage(err, apiKeyMessages))
				return
			}

			ctx := ContextWithPrincipal(r.Context(), model.Principal{Kind: model.PrincipalAPIKey})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキームは大文字小文字を区別し、区切りは空白1文字のみを受け付ける。
// トークンはその後の次の空白までとする。
func bearerToken(r *http.Request) (string, bool) {
	rest, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok {
		return "", false
	}
	token, _, _ := strings.Cut(rest, " ")
	return token, token != ""
}

// failureMessage は検証エラーを応答メッセージに変換する。
// APIError以外（ストアの障害）は原因を伏せたメッセージになる。
func failureMessage(err error, msgs guardMessages) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return msgs.invalid
	}
	slog.Error("credential store unavailable during authentication",
		slog.String("error", err.Error()),
	)
	return msgs.failed
}

func rejectRequest(w http.ResponseWriter, r *http.Request, recorder AuthFailureRecorder, guard, message string) {
	recorder.RecordAuthFailure(guard)
	slog.Warn("authentication rejected",
		slog.String("guard", guard),
		slog.String("reason", message),
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestIDFromContext(r.Context())),
	)
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(message))
}

// PrincipalFromContext はリクエストコンテキストから認証主体を取得する。
// 認証ガードを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(model.Principal)
	return p, ok
}

// ContextWithPrincipal はコンテキストに認証主体を注入する。
func ContextWithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// NopAuthFailureRecorder は何も記録しないAuthFailureRecorder。
type NopAuthFailureRecorder struct{}

// RecordAuthFailure は何もしない。
func (NopAuthFailureRecorder) RecordAuthFailure(string) {}
