package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/photoroom/internal/invite"
	"github.com/hitoshi/photoroom/internal/middleware"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/room"
	"github.com/hitoshi/photoroom/internal/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// indexPage は参加・作成画面のテンプレートデータ。
type indexPage struct {
	Title     string
	Code      string
	Error     string
	CSRFToken string
}

// roomPage はルーム画面のテンプレートデータ。
type roomPage struct {
	Title     string
	Code      string
	Avatar    string
	InviteURL string
	QRURL     string
	Photos    []model.PhotoView
	UserCount int
	Error     string
	UserName  string
	Caption   string
	CSRFToken string
}

// ViewHandler はブラウザ向けのHTML画面を提供するハンドラー。
// 参加・作成フォームとルーム画面の2画面で構成する。
type ViewHandler struct {
	rooms     RoomDirectory
	photos    PhotoService
	submitter *photoSubmitter
	invite    InviteConfig
}

// NewViewHandler はViewHandlerを生成する。
func NewViewHandler(
	rooms RoomDirectory,
	photos PhotoService,
	uploader upload.Uploader,
	sanitizer TextCleaner,
	inviteConfig InviteConfig,
	maxUploadBytes int64,
) *ViewHandler {
	return &ViewHandler{
		rooms:     rooms,
		photos:    photos,
		submitter: newPhotoSubmitter(rooms, photos, uploader, sanitizer, maxUploadBytes),
		invite:    inviteConfig,
	}
}

// Index は参加・作成フォームを表示する。招待リンクの?room=でコードを入力済みにする。
// GET /
func (h *ViewHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.renderIndex(w, r, http.StatusOK, room.NormalizeCode(r.URL.Query().Get("room")), "")
}

// Join はフォームのコードでルームに参加し、ルーム画面へリダイレクトする。
// POST /join
func (h *ViewHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := room.NormalizeCode(r.FormValue("code"))

	rm, err := h.rooms.Resolve(r.Context(), code)
	if err != nil {
		status, message := viewError(err)
		h.renderIndex(w, r, status, code, message)
		return
	}

	http.Redirect(w, r, roomPath(rm.Code), http.StatusSeeOther)
}

// Create は新しいルームを作成し、ルーム画面へリダイレクトする。
// POST /create
func (h *ViewHandler) Create(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.CreateUnique(r.Context())
	if err != nil {
		status, message := viewError(err)
		h.renderIndex(w, r, status, "", message)
		return
	}

	http.Redirect(w, r, roomPath(rm.Code), http.StatusSeeOther)
}

// Room はルーム画面を表示する。存在しないルームは参加フォームに戻してメッセージを出す。
// GET /rooms/{code}
func (h *ViewHandler) Room(w http.ResponseWriter, r *http.Request) {
	rm, err := h.rooms.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		status, message := viewError(err)
		h.renderIndex(w, r, status, room.NormalizeCode(chi.URLParam(r, "code")), message)
		return
	}

	page := h.newRoomPage(r, rm)
	status := http.StatusOK
	if err := h.loadPhotos(r, page); err != nil {
		status, page.Error = viewError(err)
	}
	h.render(w, status, "room.html", page)
}

// UploadPhoto はフォームから写真をアップロードし、ルーム画面に戻る。
// エラー時は入力値を保ったままルーム画面にメッセージを表示する。
// POST /rooms/{code}/photos
func (h *ViewHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	form, err := h.submitter.readPhotoForm(w, r)
	if err == nil {
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}
		if form.File != nil {
			defer form.File.Close()
		}

		userID, _ := middleware.UserIDFromContext(r.Context())
		if _, err = h.submitter.submit(r.Context(), code, userID, form); err == nil {
			http.Redirect(w, r, roomPath(code), http.StatusSeeOther)
			return
		}
	}

	h.renderUploadError(w, r, code, form, err)
}

// renderUploadError はアップロードの失敗をルーム画面のフォームに表示する。
// formがnilでなければ入力値を画面に戻す。
func (h *ViewHandler) renderUploadError(w http.ResponseWriter, r *http.Request, code string, form *photoForm, err error) {
	rm, resolveErr := h.rooms.Resolve(r.Context(), code)
	if resolveErr != nil {
		status, message := viewError(resolveErr)
		h.renderIndex(w, r, status, room.NormalizeCode(code), message)
		return
	}

	page := h.newRoomPage(r, rm)
	if form != nil {
		page.UserName = form.UserName
		page.Caption = form.Caption
	}
	if loadErr := h.loadPhotos(r, page); loadErr != nil {
		slog.Warn("写真一覧の取得に失敗しました",
			slog.String("room_code", rm.Code),
			slog.String("error", loadErr.Error()),
		)
	}

	status, message := viewError(err)
	page.Error = message
	h.render(w, status, "room.html", page)
}

func (h *ViewHandler) newRoomPage(r *http.Request, rm *model.Room) *roomPage {
	inviteURL := invite.InviteURL(h.invite.BaseURL, rm.Code)
	return &roomPage{
		Title:     "Room " + rm.Code,
		Code:      rm.Code,
		Avatar:    invite.RoomAvatar(rm.Code),
		InviteURL: inviteURL,
		QRURL:     invite.QRImageURL(h.invite.QREndpoint, inviteURL),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
}

func (h *ViewHandler) loadPhotos(r *http.Request, page *roomPage) error {
	photos, err := h.photos.List(r.Context(), page.Code)
	if err != nil {
		return err
	}
	page.Photos = photos
	page.UserCount = len(photos)
	return nil
}

func (h *ViewHandler) renderIndex(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.render(w, status, "index.html", &indexPage{
		Title:     "Photo Room",
		Code:      code,
		Error:     message,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

func (h *ViewHandler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
	}
}

// viewError はエラーを画面表示用のステータスとメッセージに変換する。
func viewError(err error) (int, string) {
	var apiErr *model.APIError
	if asAPIError(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr), apiErr.Message
	}
	slog.Error("internal server error", slog.String("error", err.Error()))
	internal := middleware.InternalError()
	return http.StatusInternalServerError, internal.Message
}

func roomPath(code string) string {
	return "/rooms/" + url.PathEscape(code)
}
