package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/photoroom/internal/middleware"
	"github.com/hitoshi/photoroom/internal/model"
)

// IdentityResetter は匿名セッションを破棄するインターフェース。
// identity.Serviceが実装する。
type IdentityResetter interface {
	Reset(ctx context.Context, sessionID string) error
}

// IdentityHandler は匿名ユーザーのHTTPハンドラー。
type IdentityHandler struct {
	resetter IdentityResetter
	cookie   middleware.CookieConfig
}

// NewIdentityHandler はIdentityHandlerを生成する。
func NewIdentityHandler(resetter IdentityResetter, cookie middleware.CookieConfig) *IdentityHandler {
	return &IdentityHandler{
		resetter: resetter,
		cookie:   cookie,
	}
}

// Me は現在の匿名ユーザーIDを返す。
// GET /api/me
func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewIdentityRequiredError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID})
}

// Reset は匿名セッションを破棄する。次のリクエストで新しいユーザーIDが払い出される。
// POST /api/me/reset
func (h *IdentityHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.resetter.Reset(r.Context(), middleware.SessionIDFromContext(r.Context())); err != nil {
		// 失敗してもCookieはクリアする
		slog.Error("failed to reset identity", slog.String("error", err.Error()))
	}

	middleware.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}
