package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/photoroom/internal/live"
)

// LiveHandler はルームの写真一覧をWebSocketで配信するハンドラー。
type LiveHandler struct {
	rooms    RoomDirectory
	store    live.Subscriber
	upgrader *websocket.Upgrader
	logger   *slog.Logger
	// shutdown がキャンセルされると配信中の接続をすべて閉じる。
	shutdown context.Context
}

// NewLiveHandler はLiveHandlerを生成する。
// shutdownはリクエストのコンテキストとは独立に、サーバー停止時に配信を終わらせるために使う。nilなら停止しない。
func NewLiveHandler(rooms RoomDirectory, store live.Subscriber, upgrader *websocket.Upgrader, logger *slog.Logger, shutdown context.Context) *LiveHandler {
	if shutdown == nil {
		shutdown = context.Background()
	}
	return &LiveHandler{
		rooms:    rooms,
		store:    store,
		upgrader: upgrader,
		logger:   logger,
		shutdown: shutdown,
	}
}

// Live はWebSocketにアップグレードし、切断までルームの写真一覧を送り続ける。
// ルームが存在しない場合はアップグレードせずにエラーを返す。
// GET /api/rooms/{code}/live
func (h *LiveHandler) Live(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeが失敗時のレスポンスを書き込み済み
		h.logger.Debug("WebSocketへのアップグレードに失敗しました",
			slog.String("room_code", rm.Code),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.shutdown, cancel)
	defer stop()

	if err := live.Serve(ctx, conn, h.store, rm.Code, h.logger); err != nil {
		h.logger.Warn("ライブ配信を開始できませんでした",
			slog.String("room_code", rm.Code),
			slog.String("error", err.Error()),
		)
	}
}
