package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/upload"
)

func newTestViewHandler(rooms RoomDirectory, photos PhotoService, uploader upload.Uploader) *ViewHandler {
	return NewViewHandler(rooms, photos, uploader, newSanitizer(), testInvite, 1<<20)
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestViewHandler_Index_PrefillsInviteCode(t *testing.T) {
	h := newTestViewHandler(roomsWith(), &mockPhotoService{}, &mockUploader{})

	w := httptest.NewRecorder()
	h.Index(w, httptest.NewRequest(http.MethodGet, "/?room=12a3456", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `value="123456"`) {
		t.Error("invite code should be pre-filled")
	}
}

func TestViewHandler_Join(t *testing.T) {
	t.Run("redirects to room", func(t *testing.T) {
		h := newTestViewHandler(roomsWith("123456"), &mockPhotoService{}, &mockUploader{})

		w := httptest.NewRecorder()
		h.Join(w, postForm("/join", url.Values{"code": {"123-456"}}))

		if w.Code != http.StatusSeeOther {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
		}
		if loc := w.Header().Get("Location"); loc != "/rooms/123456" {
			t.Errorf("Location = %q, want /rooms/123456", loc)
		}
	})

	t.Run("room not found", func(t *testing.T) {
		h := newTestViewHandler(roomsWith("123456"), &mockPhotoService{}, &mockUploader{})

		w := httptest.NewRecorder()
		h.Join(w, postForm("/join", url.Values{"code": {"999999"}}))

		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
		body := w.Body.String()
		if !strings.Contains(body, "Room not found") {
			t.Error("form should show the not-found message")
		}
		if !strings.Contains(body, `value="999999"`) {
			t.Error("typed code should be kept")
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		rooms := &mockRoomDirectory{
			resolveFn: func(ctx context.Context, code string) (*model.Room, error) {
				return nil, model.NewJoinFailedError(errors.New("pq: connection refused"))
			},
		}
		h := newTestViewHandler(rooms, &mockPhotoService{}, &mockUploader{})

		w := httptest.NewRecorder()
		h.Join(w, postForm("/join", url.Values{"code": {"123456"}}))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		if strings.Contains(w.Body.String(), "connection refused") {
			t.Error("internal cause must not be rendered")
		}
	})
}

func TestViewHandler_Create(t *testing.T) {
	h := newTestViewHandler(&mockRoomDirectory{}, &mockPhotoService{}, &mockUploader{})

	w := httptest.NewRecorder()
	h.Create(w, postForm("/create", url.Values{}))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/rooms/482913" {
		t.Errorf("Location = %q, want /rooms/482913", loc)
	}
}

func TestViewHandler_Room(t *testing.T) {
	t.Run("empty gallery", func(t *testing.T) {
		h := newTestViewHandler(roomsWith("123456"), &mockPhotoService{}, &mockUploader{})

		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/rooms/123456", nil), "code", "123456")
		w := httptest.NewRecorder()
		h.Room(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		body := w.Body.String()
		for _, want := range []string{
			`<p id="empty" >No photos yet</p>`,
			`<span id="user-count">0</span>`,
			"https://photos.example.com/?room=123456",
			"https://qr.example.com/create?",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("body should contain %q", want)
			}
		}
	})

	t.Run("gallery escapes user text", func(t *testing.T) {
		photos := &mockPhotoService{
			listFn: func(ctx context.Context, roomCode string) ([]model.PhotoView, error) {
				return []model.PhotoView{{
					ID:         "u1",
					UserID:     "u1",
					UserName:   "<b>bob</b>",
					Caption:    "at the beach",
					URL:        "https://res.cloudinary.com/demo/image/upload/v1/beach.jpg",
					UploadedAt: time.Now(),
				}}, nil
			},
		}
		h := newTestViewHandler(roomsWith("123456"), photos, &mockUploader{})

		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/rooms/123456", nil), "code", "123456")
		w := httptest.NewRecorder()
		h.Room(w, req)

		body := w.Body.String()
		if !strings.Contains(body, `<p id="empty" hidden>`) {
			t.Error("empty message should be hidden")
		}
		if !strings.Contains(body, "&lt;b&gt;bob&lt;/b&gt;") {
			t.Error("user name should be HTML-escaped")
		}
		if !strings.Contains(body, `<span id="user-count">1</span>`) {
			t.Error("user count should be 1")
		}
		if !strings.Contains(body, `<span id="user-count-label">person</span>`) {
			t.Error("singular label expected")
		}
	})

	t.Run("missing room falls back to join form", func(t *testing.T) {
		h := newTestViewHandler(roomsWith(), &mockPhotoService{}, &mockUploader{})

		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/rooms/999999", nil), "code", "999999")
		w := httptest.NewRecorder()
		h.Room(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
		if !strings.Contains(w.Body.String(), "Room not found") {
			t.Error("not-found message expected")
		}
	})

	t.Run("load failure shows message", func(t *testing.T) {
		photos := &mockPhotoService{
			listFn: func(ctx context.Context, roomCode string) ([]model.PhotoView, error) {
				return nil, model.NewLoadFailedError(errors.New("timeout"))
			},
		}
		h := newTestViewHandler(roomsWith("123456"), photos, &mockUploader{})

		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/rooms/123456", nil), "code", "123456")
		w := httptest.NewRecorder()
		h.Room(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		if !strings.Contains(w.Body.String(), `role="alert"`) {
			t.Error("error message should be rendered")
		}
	})
}

func TestViewHandler_UploadPhoto(t *testing.T) {
	t.Run("success redirects back", func(t *testing.T) {
		var saved bool
		photos := &mockPhotoService{
			upsertFn: func(ctx context.Context, roomCode, userID, userName, url, caption string) error {
				saved = roomCode == "123456" && userID == "user-1"
				return nil
			},
		}
		h := newTestViewHandler(roomsWith("123456"), photos, &mockUploader{})

		body, contentType := photoUploadBody(t, map[string]string{"username": "alice"}, "beach.jpg", "jpeg-bytes")
		req := httptest.NewRequest(http.MethodPost, "/rooms/123456/photos", body)
		req.Header.Set("Content-Type", contentType)
		req = withUserID(withChiURLParam(req, "code", "123456"), "user-1")
		w := httptest.NewRecorder()
		h.UploadPhoto(w, req)

		if w.Code != http.StatusSeeOther {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
		}
		if loc := w.Header().Get("Location"); loc != "/rooms/123456" {
			t.Errorf("Location = %q", loc)
		}
		if !saved {
			t.Error("photo should be saved under the caller's user id")
		}
	})

	t.Run("error keeps form input", func(t *testing.T) {
		h := newTestViewHandler(roomsWith("123456"), &mockPhotoService{}, &mockUploader{})

		body, contentType := photoUploadBody(t, map[string]string{"username": "alice", "caption": "sunset"}, "", "")
		req := httptest.NewRequest(http.MethodPost, "/rooms/123456/photos", body)
		req.Header.Set("Content-Type", contentType)
		req = withUserID(withChiURLParam(req, "code", "123456"), "user-1")
		w := httptest.NewRecorder()
		h.UploadPhoto(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		page := w.Body.String()
		if !strings.Contains(page, model.NewFileRequiredError().Message) {
			t.Error("file-required message expected")
		}
		if !strings.Contains(page, `value="alice"`) || !strings.Contains(page, `value="sunset"`) {
			t.Error("user name and caption should be kept")
		}
	})

	t.Run("missing room", func(t *testing.T) {
		uploader := &mockUploader{}
		h := newTestViewHandler(roomsWith(), &mockPhotoService{}, uploader)

		body, contentType := photoUploadBody(t, map[string]string{"username": "alice"}, "beach.jpg", "jpeg-bytes")
		req := httptest.NewRequest(http.MethodPost, "/rooms/999999/photos", body)
		req.Header.Set("Content-Type", contentType)
		req = withChiURLParam(req, "code", "999999")
		w := httptest.NewRecorder()
		h.UploadPhoto(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
		if uploader.calls != 0 {
			t.Errorf("uploader called %d times, want 0", uploader.calls)
		}
	})
}
