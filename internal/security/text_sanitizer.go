package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// 入力テキストの最大文字数
const (
	MaxUserNameLength = 100
	MaxCaptionLength  = 500
)

// TextSanitizer はユーザー名やキャプションなどの自由入力テキストから
// マークアップを取り除き、プレーンテキストとして保存できる形にする。
// 出力時のエスケープはテンプレート側で行う。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はタグを除去し、前後の空白を取り除いたうえでmaxLen文字に切り詰める。
// bluemondayがエスケープした文字実体参照は元の文字に戻す。
func (s *TextSanitizer) Clean(text string, maxLen int) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(text))
	cleaned = strings.TrimSpace(cleaned)
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxLen]))
	}
	return cleaned
}

// UserName はユーザー名を整形する。
func (s *TextSanitizer) UserName(name string) string {
	return s.Clean(name, MaxUserNameLength)
}

// Caption はキャプションを整形する。
func (s *TextSanitizer) Caption(caption string) string {
	return s.Clean(caption, MaxCaptionLength)
}
