// Package invite はルームへの招待に使う表示用の値を組み立てる。
// いずれも副作用のない純粋関数。
package invite

import (
	"net/url"
	"strings"
)

// avatars はルームのアバターに使う記号。
var avatars = []string{"🦊", "🐼", "🐙", "🦉", "🐝", "🐢", "🦋", "🐳"}

// UnknownAvatar はコードが空の場合のアバター。
const UnknownAvatar = "❔"

// RoomAvatar はコードの各文字のコードポイントの和からアバターを決める。
// 同じコードには常に同じアバターを返す。
func RoomAvatar(code string) string {
	if code == "" {
		return UnknownAvatar
	}
	sum := 0
	for _, r := range code {
		sum += int(r)
	}
	return avatars[sum%len(avatars)]
}

// InviteURL はoriginにルームコードのクエリパラメータを付けた招待URLを返す。
func InviteURL(origin, code string) string {
	return strings.TrimSuffix(origin, "/") + "/?room=" + url.QueryEscape(code)
}

// QRImageURL は招待URLをdataパラメータに載せたQR画像生成エンドポイントのURLを返す。
// エンドポイントに既存のクエリがあれば維持する。
func QRImageURL(endpoint, inviteURL string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("data", inviteURL)
	u.RawQuery = q.Encode()
	return u.String()
}
