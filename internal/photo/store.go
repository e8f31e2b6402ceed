// Package photo はルームの写真コレクションへの購読と書き込みを提供する。
package photo

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/photoroom/internal/metrics"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/repository"
)

// Notifier はルーム単位の変更通知を購読するインターフェース。
// realtime.Brokerが実装する。
type Notifier interface {
	Subscribe(roomCode string, notify func()) (unsubscribe func())
	Publish(roomCode string)
}

// Store は写真ストアのサービス層。
type Store struct {
	photos       repository.PhotoRepository
	notifier     Notifier
	metrics      metrics.MetricsCollector
	logger       *slog.Logger
	localPublish bool
	now          func() time.Time
}

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithLocalPublish は書き込み成功時に自プロセスの購読者へ直接通知する。
// LISTEN/NOTIFYを使わない構成で指定する。
func WithLocalPublish() Option {
	return func(s *Store) {
		s.localPublish = true
	}
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(
	photos repository.PhotoRepository,
	notifier Notifier,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	opts ...Option,
) *Store {
	s := &Store{
		photos:   photos,
		notifier: notifier,
		metrics:  mc,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List はルームの写真を初回投稿順で返す。
func (s *Store) List(ctx context.Context, roomCode string) ([]model.PhotoView, error) {
	photos, err := s.photos.ListByRoom(ctx, strings.TrimSpace(roomCode))
	if err != nil {
		return nil, model.NewLoadFailedError(err)
	}

	views := make([]model.PhotoView, 0, len(photos))
	for _, p := range photos {
		views = append(views, p.View())
	}
	return views, nil
}

// Subscribe はルームの写真一覧を購読する。
//
// onUpdateは購読直後に1回、その後は写真の作成・更新・削除のたびに
// 最新の一覧全体を受け取る。呼び出しは1つのgoroutine上で直列に行われ、
// 処理中に届いた複数の変更は1回の再取得にまとめられる。
// 再取得に失敗した場合はログに残し、直前に配信した一覧を維持する。
//
// 戻り値の解除関数は何度呼んでもよく、戻った時点でonUpdateは呼ばれなくなる。
// onUpdateの中から解除関数を呼んではならない。ctxのキャンセルでも購読は解除される。
func (s *Store) Subscribe(ctx context.Context, roomCode string, onUpdate func([]model.PhotoView)) (unsubscribe func(), err error) {
	roomCode = strings.TrimSpace(roomCode)
	if roomCode == "" {
		return nil, model.NewInvalidRoomCodeError()
	}

	// 通知を先に登録し、初回取得との間の変更を取りこぼさないようにする
	dirty := make(chan struct{}, 1)
	unregister := s.notifier.Subscribe(roomCode, func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})

	initial, err := s.List(ctx, roomCode)
	if err != nil {
		unregister()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	release := func() {
		once.Do(func() {
			unregister()
			cancel()
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer release()

		onUpdate(initial)
		for {
			select {
			case <-ctx.Done():
				return
			case <-dirty:
			}

			views, err := s.List(ctx, roomCode)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("写真一覧の再取得に失敗したため、直前の一覧を維持します",
					slog.String("room_code", roomCode),
					slog.String("error", err.Error()),
				)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			onUpdate(views)
		}
	}()

	return func() {
		release()
		<-done
	}, nil
}

// Upsert はuserIDをキーに写真を作成または置換し、投稿日時を更新する。
// roomCodeかuserIDが空の場合は準備中とみなし、何もせずnilを返す。
func (s *Store) Upsert(ctx context.Context, roomCode, userID, userName, url, caption string) error {
	roomCode = strings.TrimSpace(roomCode)
	if roomCode == "" || userID == "" {
		s.logger.Debug("ルームコードまたはユーザーIDが未確定のため写真の保存をスキップします",
			slog.String("room_code", roomCode),
			slog.Bool("has_user_id", userID != ""),
		)
		return nil
	}

	photo := &model.Photo{
		RoomCode:   roomCode,
		UserID:     userID,
		UserName:   userName,
		URL:        url,
		Caption:    caption,
		UploadedAt: s.now(),
	}
	if err := s.photos.Upsert(ctx, photo); err != nil {
		s.logger.Error("写真の保存に失敗しました",
			slog.String("room_code", roomCode),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.NewSaveFailedError(err)
	}

	s.metrics.RecordPhotoUpserted()
	if s.localPublish {
		s.notifier.Publish(roomCode)
	}
	return nil
}
