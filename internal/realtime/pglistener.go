package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// ChannelPhotoChanges はphotosテーブルのトリガーが通知するチャネル名。
// ペイロードは変更されたルームコード。
const ChannelPhotoChanges = "photo_changes"

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// PostgresListener はLISTEN/NOTIFYで受けた写真の変更をPublisherへ転送する。
// 複数のサーバーインスタンスがあっても、全インスタンスが全書き込みを受け取る。
type PostgresListener struct {
	listener  *pq.Listener
	notify    <-chan *pq.Notification
	ping      func() error
	publisher Publisher
	logger    *slog.Logger
}

// NewPostgresListener はphoto_changesチャネルをLISTENするリスナーを生成する。
func NewPostgresListener(databaseURL string, publisher Publisher, logger *slog.Logger) (*PostgresListener, error) {
	eventCallback := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			if err != nil {
				logger.Warn("LISTEN接続でエラーが発生しました", slog.String("error", err.Error()))
			}
		case pq.ListenerEventReconnected:
			logger.Info("LISTEN接続を再確立しました")
		}
	}

	l := pq.NewListener(databaseURL, minReconnectInterval, maxReconnectInterval, eventCallback)
	if err := l.Listen(ChannelPhotoChanges); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ChannelPhotoChanges, err)
	}

	return &PostgresListener{
		listener:  l,
		notify:    l.Notify,
		ping:      l.Ping,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Run はコンテキストがキャンセルされるまで通知を転送する。
// nilの通知は再接続を意味するため、全ルームへ再同期を通知する。
func (l *PostgresListener) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	l.logger.Info("写真変更通知の受信を開始しました", slog.String("channel", ChannelPhotoChanges))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("写真変更通知の受信を停止しました")
			return
		case n, ok := <-l.notify:
			if !ok {
				l.logger.Warn("通知チャネルがクローズされました")
				return
			}
			if n == nil {
				l.publisher.PublishAll()
				continue
			}
			if n.Extra == "" {
				continue
			}
			l.publisher.Publish(n.Extra)
		case <-ticker.C:
			if l.ping == nil {
				continue
			}
			go func() {
				if err := l.ping(); err != nil {
					l.logger.Warn("LISTEN接続のpingに失敗しました", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

// Close はLISTEN接続を閉じる。
func (l *PostgresListener) Close() error {
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}
