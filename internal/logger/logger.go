// Package logger はJSON構造化ログのセットアップを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// levelEnvKey はログレベルを指定する環境変数名。
// 設定読み込み前にロガーを使えるよう、configを経由せず直接参照する。
const levelEnvKey = "LOG_LEVEL"

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
// レベルはLOG_LEVEL（debug, info, warn, error）で指定でき、未指定ならinfo。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, ParseLevel(os.Getenv(levelEnvKey))))
}

// ParseLevel は文字列をslog.Levelに変換する。解釈できない場合はinfoを返す。
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Component はcomponent属性付きのロガーを返す。
// 各サービスに注入するロガーはこれで生成する。
func Component(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}
