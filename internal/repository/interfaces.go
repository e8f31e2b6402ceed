// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/photoroom/internal/model"
)

// RoomRepository はルームデータの永続化インターフェース。
type RoomRepository interface {
	// FindByCode は指定コードのルームを取得する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.Room, error)

	// Exists は指定コードのルームが存在するかを返す。
	Exists(ctx context.Context, code string) (bool, error)

	// CreateIfAbsent はルームが存在しない場合のみ作成する。
	// 作成した場合はtrue、同じコードのルームが既に存在した場合はfalseを返す。
	CreateIfAbsent(ctx context.Context, room *model.Room) (bool, error)
}

// PhotoRepository は写真データの永続化インターフェース。
type PhotoRepository interface {
	// ListByRoom はルームの写真を初回登録順で取得する。
	ListByRoom(ctx context.Context, roomCode string) ([]*model.Photo, error)

	// Upsert は(room_code, user_id)をキーに写真を作成または置換する。
	// 置換時もcreated_atは維持し、uploaded_atを更新する。
	Upsert(ctx context.Context, photo *model.Photo) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}
