package model

import "time"

// Photo はルーム内でユーザーが投稿した1枚の写真を表す。
// (RoomCode, UserID) の複合キーで、同一ユーザーの再投稿は上書きとなる。
type Photo struct {
	RoomCode   string
	UserID     string
	UserName   string
	URL        string
	Caption    string
	UploadedAt time.Time // 最終投稿日時。上書きのたびに更新される
	CreatedAt  time.Time // 初回投稿日時。ギャラリーの並び順に使う
}

// PhotoView はギャラリー購読者に配信する写真のスナップショット要素。
// IDはドキュメントキーであるユーザーIDと同じ値になる。
type PhotoView struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Caption    string    `json:"caption"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// View はPhotoをPhotoViewに変換する。
func (p *Photo) View() PhotoView {
	return PhotoView{
		ID:         p.UserID,
		URL:        p.URL,
		Caption:    p.Caption,
		UserID:     p.UserID,
		UserName:   p.UserName,
		UploadedAt: p.UploadedAt,
	}
}
