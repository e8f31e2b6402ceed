package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/photoroom/internal/model"
)

// PostgresRoomRepo はPostgreSQLを使用したルームリポジトリ。
type PostgresRoomRepo struct {
	db *sql.DB
}

// NewPostgresRoomRepo はPostgresRoomRepoを生成する。
func NewPostgresRoomRepo(db *sql.DB) *PostgresRoomRepo {
	return &PostgresRoomRepo{db: db}
}

// FindByCode は指定コードのルームを取得する。見つからない場合はnilを返す。
func (r *PostgresRoomRepo) FindByCode(ctx context.Context, code string) (*model.Room, error) {
	room := &model.Room{}
	err := r.db.QueryRowContext(ctx,
		`SELECT code, created_at FROM rooms WHERE code = $1`,
		code,
	).Scan(&room.Code, &room.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find room: %w", err)
	}

	return room, nil
}

// Exists は指定コードのルームが存在するかを返す。
func (r *PostgresRoomRepo) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE code = $1)`,
		code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check room existence: %w", err)
	}
	return exists, nil
}

// CreateIfAbsent はルームが存在しない場合のみ作成する。
// ON CONFLICT DO NOTHINGにより既存ルームを上書きしない。
func (r *PostgresRoomRepo) CreateIfAbsent(ctx context.Context, room *model.Room) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (code, created_at) VALUES ($1, $2)
		 ON CONFLICT (code) DO NOTHING`,
		room.Code, room.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create room: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

// compile-time interface check
var _ RoomRepository = (*PostgresRoomRepo)(nil)
