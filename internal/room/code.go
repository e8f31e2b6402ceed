package room

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/hitoshi/photoroom/internal/model"
)

// ルームコードの範囲（6桁の数値全体）
const (
	minCode = 100000
	maxCode = 999999
)

// CodeGenerator はルームコードの候補を生成する。
// テストでは決まった列を返す実装に差し替える。
type CodeGenerator interface {
	Next() string
}

// CodeGeneratorFunc は関数をCodeGeneratorとして扱うアダプタ。
type CodeGeneratorFunc func() string

// Next はf()を呼び出す。
func (f CodeGeneratorFunc) Next() string {
	return f()
}

// RandomCodeGenerator は100000〜999999から一様にコードを選ぶ。
type RandomCodeGenerator struct{}

// Next はランダムな6桁のコードを返す。
func (RandomCodeGenerator) Next() string {
	return strconv.Itoa(minCode + rand.IntN(maxCode-minCode+1))
}

// NormalizeCode はユーザー入力から数字以外を取り除き、先頭6桁に切り詰める。
func NormalizeCode(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == model.RoomCodeLength {
			break
		}
	}
	return b.String()
}
