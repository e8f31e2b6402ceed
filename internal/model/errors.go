package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, not-found, network, upload-rejected, system
	Action   string // ユーザー向け対処方法
	Cause    error  // ログ用の元エラー。レスポンスには含めない
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は元エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// エラーカテゴリ
const (
	CategoryValidation     = "validation"
	CategoryNotFound       = "not-found"
	CategoryNetwork        = "network"
	CategoryUploadRejected = "upload-rejected"
	CategorySystem         = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidRoomCode  = "INVALID_ROOM_CODE"
	ErrCodeRoomNotFound     = "ROOM_NOT_FOUND"
	ErrCodeJoinFailed       = "JOIN_FAILED"
	ErrCodeCreateFailed     = "CREATE_FAILED"
	ErrCodeFileRequired     = "FILE_REQUIRED"
	ErrCodeUserNameRequired = "USERNAME_REQUIRED"
	ErrCodeFileTooLarge     = "FILE_TOO_LARGE"
	ErrCodeUploadRejected   = "UPLOAD_REJECTED"
	ErrCodeUploadFailed     = "UPLOAD_FAILED"
	ErrCodeSaveFailed       = "SAVE_FAILED"
	ErrCodeLoadFailed       = "LOAD_FAILED"
	ErrCodeIdentityRequired = "IDENTITY_REQUIRED"
)

// NewInvalidRoomCodeError はルームコード未入力エラーを生成する。
func NewInvalidRoomCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRoomCode,
		Message:  "Enter a 6-digit room code.",
		Category: CategoryValidation,
		Action:   "招待されたルームの6桁のコードを入力してください。",
	}
}

// NewRoomNotFoundError はルーム未検出エラーを生成する。
func NewRoomNotFoundError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeRoomNotFound,
		Message:  "Room not found",
		Category: CategoryNotFound,
		Action:   fmt.Sprintf("ルームコード %q を確認するか、新しいルームを作成してください。", code),
	}
}

// NewJoinFailedError はルーム参加時のバックエンド障害エラーを生成する。
func NewJoinFailedError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeJoinFailed,
		Message:  "Failed to join room",
		Category: CategoryNetwork,
		Action:   "しばらく待ってから再度お試しください。",
		Cause:    cause,
	}
}

// NewCreateFailedError はルーム作成時のバックエンド障害エラーを生成する。
func NewCreateFailedError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeCreateFailed,
		Message:  "Failed to create room",
		Category: CategoryNetwork,
		Action:   "しばらく待ってから再度お試しください。",
		Cause:    cause,
	}
}

// NewFileRequiredError はファイル未選択エラーを生成する。
func NewFileRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeFileRequired,
		Message:  "Please select a photo to upload.",
		Category: CategoryValidation,
		Action:   "アップロードする画像ファイルを選択してください。",
	}
}

// NewFileTooLargeError はアップロードサイズ超過エラーを生成する。
func NewFileTooLargeError() *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  "The photo is too large.",
		Category: CategoryValidation,
		Action:   "より小さい画像を選択してください。",
	}
}

// NewUserNameRequiredError はユーザー名未入力エラーを生成する。
func NewUserNameRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNameRequired,
		Message:  "Please enter your name.",
		Category: CategoryValidation,
		Action:   "ギャラリーに表示する名前を入力してください。",
	}
}

// NewUploadRejectedError はアップロード先がURLを返さなかった場合のエラーを生成する。
func NewUploadRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadRejected,
		Message:  fmt.Sprintf("Upload failed: %s", reason),
		Category: CategoryUploadRejected,
		Action:   "別の画像を選択するか、しばらく待ってから再度お試しください。",
	}
}

// NewUploadNetworkError はアップロード通信失敗エラーを生成する。
// メッセージは元エラーから組み立てる。
func NewUploadNetworkError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("Upload failed: %s", cause.Error()),
		Category: CategoryNetwork,
		Action:   "ネットワーク接続を確認して再度お試しください。",
		Cause:    cause,
	}
}

// NewSaveFailedError は写真の保存失敗エラーを生成する。
func NewSaveFailedError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeSaveFailed,
		Message:  "Failed to save photo",
		Category: CategoryNetwork,
		Action:   "しばらく待ってから再度お試しください。",
		Cause:    cause,
	}
}

// NewLoadFailedError は写真一覧の取得失敗エラーを生成する。
func NewLoadFailedError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeLoadFailed,
		Message:  "Failed to load photos",
		Category: CategoryNetwork,
		Action:   "ページを再読み込みしてください。",
		Cause:    cause,
	}
}

// NewIdentityRequiredError はセッション未確立エラーを生成する。
func NewIdentityRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityRequired,
		Message:  "Session is not ready yet.",
		Category: CategoryValidation,
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// IsCategory はerrがAPIErrorで、指定カテゴリに属するかを判定する。
func IsCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}
