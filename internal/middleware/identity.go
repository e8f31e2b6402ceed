// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/photoroom/internal/model"
)

// SessionCookieName は匿名セッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey         = contextKey("user_id")
	sessionIDContextKey      = contextKey("session_id")
	sessionCreatedContextKey = contextKey("session_created")
)

// IdentityProvider は匿名セッションの解決・発行を行うインターフェース。
// identity.Serviceが実装する。
type IdentityProvider interface {
	EnsureSignedIn(ctx context.Context, sessionID string) (*model.Session, bool, error)
	MaxAge() int
}

// CookieConfig はミドルウェアが発行するCookieの属性。
type CookieConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewIdentityMiddleware はすべてのリクエストで匿名セッションを確立するミドルウェアを返す。
// 新しいセッションを発行した場合はCookieを設定し、ユーザーIDをコンテキストに注入する。
// 確立に失敗してもリクエストは拒否せず、ユーザーIDなしで続行する。
func NewIdentityMiddleware(provider IdentityProvider, config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			session, created, err := provider.EnsureSignedIn(r.Context(), sessionID)
			if err != nil {
				slog.Warn("匿名セッションの確立に失敗しました。ユーザーIDなしで続行します",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    session.ID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   provider.MaxAge(),
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, session.UserID)
			ctx = context.WithValue(ctx, sessionIDContextKey, session.ID)
			ctx = context.WithValue(ctx, sessionCreatedContextKey, created)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 匿名セッションの確立に失敗したリクエストではエラーを返す。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。見つからない場合は空文字列。
func SessionIDFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionIDContextKey).(string)
	return sessionID
}

// SessionCreatedFromContext はこのリクエストでセッションが新規発行されたかを返す。
// Cookieを持たないクライアントはリクエストごとに新しいユーザーになるため、識別子として信頼できない。
func SessionCreatedFromContext(ctx context.Context) bool {
	created, _ := ctx.Value(sessionCreatedContextKey).(bool)
	return created
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
