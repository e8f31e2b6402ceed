package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/photoroom/internal/live"
	"github.com/hitoshi/photoroom/internal/middleware"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/upload"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	IdentityProvider  middleware.IdentityProvider
	Cookie            middleware.CookieConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           middleware.StatusRecorder
	MetricsHandler    http.Handler
	Logger            *slog.Logger

	// ヘルスチェック
	HealthChecker HealthChecker

	// ルームと写真
	Rooms          RoomDirectory
	Photos         PhotoService
	LiveStore      live.Subscriber
	LiveShutdown   context.Context
	Uploader       upload.Uploader
	Sanitizer      TextCleaner
	MaxUploadBytes int64
	Invite         InviteConfig

	// 匿名ユーザー
	IdentityResetter IdentityResetter
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Metrics → CORS → Identity → Logging → RateLimit(General) → CSRF
//
// /health と /metrics は匿名セッションを発行しないようIdentityより外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	roomHandler := NewRoomHandler(deps.Rooms, deps.Invite)
	photoHandler := NewPhotoHandler(deps.Rooms, deps.Photos, deps.Uploader, deps.Sanitizer, deps.MaxUploadBytes)
	liveHandler := NewLiveHandler(deps.Rooms, deps.LiveStore, live.NewUpgrader(deps.CORSAllowedOrigin), deps.Logger, deps.LiveShutdown)
	identityHandler := NewIdentityHandler(deps.IdentityResetter, deps.Cookie)
	viewHandler := NewViewHandler(deps.Rooms, deps.Photos, deps.Uploader, deps.Sanitizer, deps.Invite, deps.MaxUploadBytes)

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookie.CookieSecure,
		CookieDomain: deps.Cookie.CookieDomain,
		MaxFormBytes: deps.MaxUploadBytes,
		BodyTooLarge: bodyTooLargeHandler(viewHandler),
	}

	// --- 匿名セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

	// --- 匿名セッションを確立するルート ---
	// ミドルウェアスタック: Identity → Logging → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.IdentityProvider, deps.Cookie))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		// 画面
		r.Get("/", viewHandler.Index)
		r.With(deps.RateLimiter.RoomCreateMiddleware()).Post("/create", viewHandler.Create)
		r.Post("/join", viewHandler.Join)
		r.Get("/rooms/{code}", viewHandler.Room)
		r.With(deps.RateLimiter.UploadMiddleware()).Post("/rooms/{code}/photos", viewHandler.UploadPhoto)

		// 匿名ユーザー
		r.Route("/api/me", func(r chi.Router) {
			r.Get("/", identityHandler.Me)
			r.Post("/reset", identityHandler.Reset)
		})

		// ルーム
		r.Route("/api/rooms", func(r chi.Router) {
			// POST /api/rooms - ルーム作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.RoomCreateMiddleware()).Post("/", roomHandler.CreateRoom)
			r.Post("/join", roomHandler.JoinRoom)

			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", roomHandler.GetRoom)
				r.Get("/photos", photoHandler.ListPhotos)
				r.With(deps.RateLimiter.UploadMiddleware()).Post("/photos", photoHandler.UploadPhoto)
				r.Get("/live", liveHandler.Live)
			})
		})
	})

	return r
}

// bodyTooLargeHandler はCSRFトークンを読む前にフォームが上限を超えたリクエストに応答する。
// ルーム画面からのアップロードはフォームにメッセージを表示し、APIは統一エラーを返す。
// 読み取りのみで状態は変更しない。
func bodyTooLargeHandler(view *ViewHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tooLarge := model.NewFileTooLargeError()
		switch code := chi.URLParam(r, "code"); {
		case strings.HasPrefix(r.URL.Path, "/api/"):
			handleServiceError(w, tooLarge)
		case code != "":
			view.renderUploadError(w, r, code, nil, tooLarge)
		default:
			view.renderIndex(w, r, http.StatusRequestEntityTooLarge, "", tooLarge.Message)
		}
	})
}

// NewHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
