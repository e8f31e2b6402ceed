package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/photoroom/internal/live"
	"github.com/hitoshi/photoroom/internal/middleware"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/upload"
)

// multipartMaxMemory はフォーム解析時にメモリに保持する上限。超過分は一時ファイルに書き出される。
const multipartMaxMemory = 8 << 20

// PhotoService は写真ハンドラーが必要とするサービスインターフェース。
// photo.Storeが実装する。
type PhotoService interface {
	List(ctx context.Context, roomCode string) ([]model.PhotoView, error)
	Upsert(ctx context.Context, roomCode, userID, userName, url, caption string) error
}

// TextCleaner はユーザー入力の文字列からマークアップを除去する。
// security.TextSanitizerが実装する。
type TextCleaner interface {
	UserName(name string) string
	Caption(caption string) string
}

// photoForm はアップロードフォームの入力値。
type photoForm struct {
	UserName string
	Caption  string
	FileName string
	File     multipart.File
}

// submitResult はアップロード結果。
// Savedは写真ストアに書き込めたかどうかで、匿名セッション未確立時はfalseになる。
type submitResult struct {
	URL   string `json:"url"`
	Saved bool   `json:"saved"`
}

// photoSubmitter はアップロードと写真ストアへの書き込みをまとめて行う。
// JSON APIとHTML画面の両方から使う。
type photoSubmitter struct {
	rooms     RoomDirectory
	photos    PhotoService
	uploader  upload.Uploader
	sanitizer TextCleaner
	maxBytes  int64
}

func newPhotoSubmitter(rooms RoomDirectory, photos PhotoService, uploader upload.Uploader, sanitizer TextCleaner, maxBytes int64) *photoSubmitter {
	return &photoSubmitter{
		rooms:     rooms,
		photos:    photos,
		uploader:  uploader,
		sanitizer: sanitizer,
		maxBytes:  maxBytes,
	}
}

// readPhotoForm はmultipartフォームを解析する。
// 解析済み（CSRFミドルウェアがフォームからトークンを読んだ場合）であれば再利用する。
func (s *photoSubmitter) readPhotoForm(w http.ResponseWriter, r *http.Request) (*photoForm, error) {
	if r.MultipartForm == nil && s.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMaxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, model.NewFileTooLargeError()
		}
		return nil, invalidRequestError()
	}

	form := &photoForm{
		UserName: s.sanitizer.UserName(r.FormValue("username")),
		Caption:  s.sanitizer.Caption(r.FormValue("caption")),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// 未選択はアップロード側のバリデーションでエラーにする
	case err != nil:
		return nil, invalidRequestError()
	default:
		form.File = file
		form.FileName = header.Filename
	}
	return form, nil
}

// submit はルームの存在を確認し、画像をアップロードして写真ストアに書き込む。
// userIDが空の場合はアップロードのみ行い、Saved=falseを返す。
func (s *photoSubmitter) submit(ctx context.Context, roomCode, userID string, form *photoForm) (*submitResult, error) {
	rm, err := s.rooms.Resolve(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	req := upload.Request{UserName: form.UserName, FileName: form.FileName}
	if form.File != nil {
		req.File = form.File
	}
	url, err := s.uploader.Upload(ctx, req)
	if err != nil {
		return nil, err
	}

	if userID == "" {
		slog.Warn("匿名セッションが未確立のため写真を保存しません",
			slog.String("room_code", rm.Code),
		)
		return &submitResult{URL: url, Saved: false}, nil
	}

	if err := s.photos.Upsert(ctx, rm.Code, userID, form.UserName, url, form.Caption); err != nil {
		return nil, err
	}
	return &submitResult{URL: url, Saved: true}, nil
}

// PhotoHandler は写真一覧とアップロードのHTTPハンドラー。
type PhotoHandler struct {
	rooms     RoomDirectory
	photos    PhotoService
	submitter *photoSubmitter
}

// NewPhotoHandler はPhotoHandlerを生成する。
// maxUploadBytesはアップロードリクエストのボディ上限。
func NewPhotoHandler(rooms RoomDirectory, photos PhotoService, uploader upload.Uploader, sanitizer TextCleaner, maxUploadBytes int64) *PhotoHandler {
	return &PhotoHandler{
		rooms:     rooms,
		photos:    photos,
		submitter: newPhotoSubmitter(rooms, photos, uploader, sanitizer, maxUploadBytes),
	}
}

// ListPhotos はルームの写真一覧と参加人数を返す。
// GET /api/rooms/{code}/photos
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	photos, err := h.photos.List(r.Context(), rm.Code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, live.NewSnapshotMessage(rm.Code, photos))
}

// UploadPhoto は画像をアップロードし、自分の写真として保存する。
// POST /api/rooms/{code}/photos (multipart: username, file, caption)
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	form, err := h.submitter.readPhotoForm(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if form.File != nil {
		defer form.File.Close()
	}

	userID, _ := middleware.UserIDFromContext(r.Context())
	result, err := h.submitter.submit(r.Context(), chi.URLParam(r, "code"), userID, form)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
