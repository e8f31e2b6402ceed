package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/photoroom/internal/invite"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/room"
)

// RoomDirectory はルームハンドラーが必要とするサービスインターフェース。
// room.Directoryが実装する。
type RoomDirectory interface {
	// Resolve はコードに一致する既存ルームを返す。
	Resolve(ctx context.Context, code string) (*model.Room, error)
	// CreateUnique は未使用のコードで新しいルームを作成する。
	CreateUnique(ctx context.Context) (*model.Room, error)
}

// InviteConfig は招待リンクとQR画像の組み立てに使う設定。
type InviteConfig struct {
	BaseURL    string
	QREndpoint string
}

// RoomHandler はルームの参加・作成のHTTPハンドラー。
type RoomHandler struct {
	rooms  RoomDirectory
	invite InviteConfig
}

// NewRoomHandler はRoomHandlerを生成する。
func NewRoomHandler(rooms RoomDirectory, inviteConfig InviteConfig) *RoomHandler {
	return &RoomHandler{
		rooms:  rooms,
		invite: inviteConfig,
	}
}

// joinRoomRequest はルーム参加リクエストのボディ。
type joinRoomRequest struct {
	Code string `json:"code"`
}

// roomResponse はルーム情報のAPIレスポンス。
type roomResponse struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	Avatar    string    `json:"avatar"`
	InviteURL string    `json:"invite_url"`
	QRURL     string    `json:"qr_url"`
}

// JoinRoom はコードで既存ルームに参加する。
// POST /api/rooms/join
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, invalidRequestError())
		return
	}

	rm, err := h.rooms.Resolve(r.Context(), room.NormalizeCode(req.Code))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toRoomResponse(rm))
}

// CreateRoom は新しいルームを作成する。
// POST /api/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.CreateUnique(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toRoomResponse(rm))
}

// GetRoom はルーム情報と招待情報を返す。
// GET /api/rooms/{code}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toRoomResponse(rm))
}

func (h *RoomHandler) toRoomResponse(rm *model.Room) roomResponse {
	inviteURL := invite.InviteURL(h.invite.BaseURL, rm.Code)
	return roomResponse{
		Code:      rm.Code,
		CreatedAt: rm.CreatedAt,
		Avatar:    invite.RoomAvatar(rm.Code),
		InviteURL: inviteURL,
		QRURL:     invite.QRImageURL(h.invite.QREndpoint, inviteURL),
	}
}
