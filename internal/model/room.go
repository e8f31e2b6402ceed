// Package model はドメインモデルを定義する。
package model

import "time"

// RoomCodeLength はルームコードの桁数。
const RoomCodeLength = 6

// Room は写真を共有する単位となるルームを表す。
// 6桁の数字コードが唯一のキーで、作成後は変更・削除されない。
type Room struct {
	Code      string
	CreatedAt time.Time
}
