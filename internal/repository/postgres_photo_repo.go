package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/photoroom/internal/model"
)

// PostgresPhotoRepo はPostgreSQLを使用した写真リポジトリ。
type PostgresPhotoRepo struct {
	db *sql.DB
}

// NewPostgresPhotoRepo はPostgresPhotoRepoを生成する。
func NewPostgresPhotoRepo(db *sql.DB) *PostgresPhotoRepo {
	return &PostgresPhotoRepo{db: db}
}

// ListByRoom はルームの写真を初回登録順で取得する。
// 同時刻の登録はuser_idで順序を固定する。
func (r *PostgresPhotoRepo) ListByRoom(ctx context.Context, roomCode string) ([]*model.Photo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT room_code, user_id, user_name, url, caption, uploaded_at, created_at
		 FROM photos
		 WHERE room_code = $1
		 ORDER BY created_at ASC, user_id ASC`,
		roomCode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []*model.Photo
	for rows.Next() {
		p := &model.Photo{}
		if err := rows.Scan(
			&p.RoomCode, &p.UserID, &p.UserName, &p.URL, &p.Caption,
			&p.UploadedAt, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photos: %w", err)
	}

	return photos, nil
}

// Upsert は(room_code, user_id)をキーに写真を作成または置換する。
// 2回目以降のアップロードはURL・キャプション・ユーザー名・uploaded_atを上書きし、
// created_atは初回の値を維持する。
func (r *PostgresPhotoRepo) Upsert(ctx context.Context, photo *model.Photo) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO photos (room_code, user_id, user_name, url, caption, uploaded_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (room_code, user_id) DO UPDATE SET
		   user_name = EXCLUDED.user_name,
		   url = EXCLUDED.url,
		   caption = EXCLUDED.caption,
		   uploaded_at = EXCLUDED.uploaded_at
		 RETURNING created_at`,
		photo.RoomCode, photo.UserID, photo.UserName, photo.URL, photo.Caption, photo.UploadedAt,
	).Scan(&photo.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert photo: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PhotoRepository = (*PostgresPhotoRepo)(nil)
