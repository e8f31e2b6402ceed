package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/photoroom/internal/model"
)

// ErrInternalCode は内部エラーのエラーコード。
const ErrInternalCode = "INTERNAL_ERROR"

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。元エラー（Cause）は含めない。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// InternalError は内部エラーのAPIErrorを返す。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func InternalError() *model.APIError {
	return &model.APIError{
		Code:     ErrInternalCode,
		Message:  "Something went wrong.",
		Category: model.CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, InternalError())
}
