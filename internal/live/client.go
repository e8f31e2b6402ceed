// Package live はルームの写真一覧をWebSocketでブラウザへ配信する。
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/photoroom/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// MessageTypeSnapshot は写真一覧全体を送るメッセージの種別。
const MessageTypeSnapshot = "photos.snapshot"

// Message はクライアントへ送るメッセージ。
type Message struct {
	Type      string            `json:"type"`
	Room      string            `json:"room"`
	Photos    []model.PhotoView `json:"photos"`
	UserCount int               `json:"user_count"`
}

// NewSnapshotMessage は写真一覧のスナップショットメッセージを生成する。
// 写真はユーザーごとに1枚なので、参加人数は写真の枚数と等しい。
func NewSnapshotMessage(roomCode string, photos []model.PhotoView) Message {
	if photos == nil {
		photos = []model.PhotoView{}
	}
	return Message{
		Type:      MessageTypeSnapshot,
		Room:      roomCode,
		Photos:    photos,
		UserCount: len(photos),
	}
}

// Subscriber はルームの写真一覧を購読するインターフェース。
// photo.Storeが実装する。
type Subscriber interface {
	Subscribe(ctx context.Context, roomCode string, onUpdate func([]model.PhotoView)) (unsubscribe func(), err error)
}

// NewUpgrader は同一オリジン、またはallowedOriginからの接続のみ受け付けるUpgraderを返す。
func NewUpgrader(allowedOrigin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if allowedOrigin != "" && origin == allowedOrigin {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return u.Host == r.Host
		},
	}
}

// Client は1つのWebSocket接続と、それが保持する1つの写真購読を表す。
type Client struct {
	conn     *websocket.Conn
	roomCode string
	send     chan []byte
	logger   *slog.Logger
}

// Serve は接続が閉じるかctxがキャンセルされるまで、ルームの写真一覧を配信する。
// 接続ごとに購読は1つだけで、戻る前に必ず解除される。
func Serve(ctx context.Context, conn *websocket.Conn, store Subscriber, roomCode string, logger *slog.Logger) error {
	c := &Client{
		conn:     conn,
		roomCode: roomCode,
		send:     make(chan []byte, 1),
		logger:   logger,
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe, err := store.Subscribe(ctx, roomCode, c.enqueue)
	if err != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to load photos"))
		return err
	}
	defer unsubscribe()

	go c.readPump(cancel)
	c.writePump(ctx)
	return nil
}

// enqueue はスナップショットを送信キューに入れる。
// 未送信のスナップショットがあれば新しいもので置き換える。購読のgoroutineをブロックしない。
func (c *Client) enqueue(photos []model.PhotoView) {
	payload, err := json.Marshal(NewSnapshotMessage(c.roomCode, photos))
	if err != nil {
		c.logger.Error("スナップショットのエンコードに失敗しました",
			slog.String("room_code", c.roomCode),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case c.send <- payload:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

// readPump はクライアントからの切断とpongを検知する。受信したメッセージは使わない。
func (c *Client) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("WebSocket接続が予期せず切断されました",
					slog.String("room_code", c.roomCode),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump は送信キューのスナップショットとpingを書き込む。
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
