package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/photoroom/internal/middleware"
	"github.com/hitoshi/photoroom/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if asAPIError(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// asAPIError はerrがAPIErrorであれば取り出す。原因エラーはログに残す。
func asAPIError(err error, target **model.APIError) bool {
	if !errors.As(err, target) {
		return false
	}
	if (*target).Cause != nil {
		slog.Warn("service error",
			slog.String("code", (*target).Code),
			slog.String("error", (*target).Cause.Error()),
		)
	}
	return true
}

// mapAPIErrorToHTTPStatus はAPIErrorからHTTPステータスコードにマッピングする。
// コード固有の対応を優先し、なければカテゴリで決める。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeUploadFailed:
		return http.StatusBadGateway
	case model.ErrCodeIdentityRequired:
		return http.StatusServiceUnavailable
	}

	switch apiErr.Category {
	case model.CategoryValidation:
		return http.StatusBadRequest
	case model.CategoryNotFound:
		return http.StatusNotFound
	case model.CategoryUploadRejected:
		return http.StatusBadGateway
	case model.CategoryNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// invalidRequestError はリクエストボディの解析失敗エラーを返す。
func invalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "Invalid request.",
		Category: model.CategoryValidation,
		Action:   "正しい形式でリクエストしてください。",
	}
}
