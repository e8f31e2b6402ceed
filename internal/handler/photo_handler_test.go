package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/photoroom/internal/live"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/upload"
)

// uploadRequest はPOST /api/rooms/{code}/photos のリクエストを組み立てる。
func uploadRequest(t *testing.T, code string, fields map[string]string, fileContent string) *http.Request {
	t.Helper()
	body, contentType := photoUploadBody(t, fields, "beach.jpg", fileContent)
	req := httptest.NewRequest(http.MethodPost, "/api/rooms/"+code+"/photos", body)
	req.Header.Set("Content-Type", contentType)
	return withChiURLParam(req, "code", code)
}

func TestPhotoHandler_ListPhotos(t *testing.T) {
	uploadedAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	photos := &mockPhotoService{
		listFn: func(ctx context.Context, roomCode string) ([]model.PhotoView, error) {
			if roomCode != "123456" {
				t.Errorf("roomCode = %q, want 123456", roomCode)
			}
			return []model.PhotoView{
				{ID: "u1", UserID: "u1", UserName: "alice", URL: "https://img.example.com/a.jpg", UploadedAt: uploadedAt},
				{ID: "u2", UserID: "u2", UserName: "bob", URL: "https://img.example.com/b.jpg", UploadedAt: uploadedAt},
			}, nil
		},
	}
	h := NewPhotoHandler(roomsWith("123456"), photos, &mockUploader{}, newSanitizer(), 1<<20)

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/rooms/123456/photos", nil), "code", "123456")
	w := httptest.NewRecorder()
	h.ListPhotos(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp live.Message
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.UserCount != 2 || len(resp.Photos) != 2 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Photos[0].UserName != "alice" || resp.Photos[1].UserName != "bob" {
		t.Errorf("order = %q, %q", resp.Photos[0].UserName, resp.Photos[1].UserName)
	}
}

func TestPhotoHandler_ListPhotos_Errors(t *testing.T) {
	t.Run("room not found", func(t *testing.T) {
		h := NewPhotoHandler(roomsWith(), &mockPhotoService{}, &mockUploader{}, newSanitizer(), 1<<20)

		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/rooms/999999/photos", nil), "code", "999999")
		w := httptest.NewRecorder()
		h.ListPhotos(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("load failed", func(t *testing.T) {
		photos := &mockPhotoService{
			listFn: func(ctx context.Context, roomCode string) ([]model.PhotoView, error) {
				return nil, model.NewLoadFailedError(errors.New("timeout"))
			},
		}
		h := NewPhotoHandler(roomsWith("123456"), photos, &mockUploader{}, newSanitizer(), 1<<20)

		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/api/rooms/123456/photos", nil), "code", "123456")
		w := httptest.NewRecorder()
		h.ListPhotos(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestPhotoHandler_UploadPhoto_SavesUnderOwnUserID(t *testing.T) {
	type upsertCall struct {
		roomCode, userID, userName, url, caption string
	}
	var got *upsertCall
	photos := &mockPhotoService{
		upsertFn: func(ctx context.Context, roomCode, userID, userName, url, caption string) error {
			got = &upsertCall{roomCode, userID, userName, url, caption}
			return nil
		},
	}
	uploader := &mockUploader{
		uploadFn: func(ctx context.Context, req upload.Request) (string, error) {
			data, _ := io.ReadAll(req.File)
			if string(data) != "jpeg-bytes" {
				t.Errorf("file content = %q", data)
			}
			if req.FileName != "beach.jpg" {
				t.Errorf("FileName = %q", req.FileName)
			}
			return "https://res.cloudinary.com/demo/image/upload/v1/beach.jpg", nil
		},
	}
	h := NewPhotoHandler(roomsWith("123456"), photos, uploader, newSanitizer(), 1<<20)

	req := uploadRequest(t, "123456", map[string]string{
		"username": "  <b>alice</b> ",
		"caption":  "sunset <script>alert(1)</script>",
	}, "jpeg-bytes")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()
	h.UploadPhoto(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp submitResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Saved || resp.URL != "https://res.cloudinary.com/demo/image/upload/v1/beach.jpg" {
		t.Errorf("response = %+v", resp)
	}

	if got == nil {
		t.Fatal("Upsert was not called")
	}
	if got.roomCode != "123456" || got.userID != "user-1" || got.url != resp.URL {
		t.Errorf("upsert = %+v", got)
	}
	if got.userName != "alice" {
		t.Errorf("userName = %q, want sanitized %q", got.userName, "alice")
	}
	if strings.Contains(got.caption, "<") {
		t.Errorf("caption = %q, markup should be stripped", got.caption)
	}
}

// 匿名セッションがない場合はアップロードのみ行い、保存しない
func TestPhotoHandler_UploadPhoto_WithoutIdentity_NotSaved(t *testing.T) {
	photos := &mockPhotoService{
		upsertFn: func(ctx context.Context, roomCode, userID, userName, url, caption string) error {
			t.Error("Upsert should not be called without identity")
			return nil
		},
	}
	h := NewPhotoHandler(roomsWith("123456"), photos, &mockUploader{}, newSanitizer(), 1<<20)

	w := httptest.NewRecorder()
	h.UploadPhoto(w, uploadRequest(t, "123456", map[string]string{"username": "alice"}, "jpeg-bytes"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp submitResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Saved {
		t.Error("saved = true, want false")
	}
	if resp.URL == "" {
		t.Error("url should be returned even when not saved")
	}
}

func TestPhotoHandler_UploadPhoto_Errors(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	tests := []struct {
		name        string
		code        string
		fields      map[string]string
		file        string
		uploadErr   error
		upsertErr   error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:       "missing file",
			code:       "123456",
			fields:     map[string]string{"username": "alice"},
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeFileRequired,
		},
		{
			name:       "blank user name",
			code:       "123456",
			fields:     map[string]string{"username": "   "},
			file:       "jpeg-bytes",
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeUserNameRequired,
		},
		{
			name:        "upload rejected",
			code:        "123456",
			fields:      map[string]string{"username": "alice"},
			file:        "jpeg-bytes",
			uploadErr:   model.NewUploadRejectedError("Invalid image file"),
			wantStatus:  http.StatusBadGateway,
			wantCode:    model.ErrCodeUploadRejected,
			wantMessage: "Upload failed: Invalid image file",
		},
		{
			name:       "upload network failure",
			code:       "123456",
			fields:     map[string]string{"username": "alice"},
			file:       "jpeg-bytes",
			uploadErr:  model.NewUploadNetworkError(cause),
			wantStatus: http.StatusBadGateway,
			wantCode:   model.ErrCodeUploadFailed,
		},
		{
			name:       "save failed",
			code:       "123456",
			fields:     map[string]string{"username": "alice"},
			file:       "jpeg-bytes",
			upsertErr:  model.NewSaveFailedError(cause),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   model.ErrCodeSaveFailed,
		},
		{
			name:       "room not found",
			code:       "999999",
			fields:     map[string]string{"username": "alice"},
			file:       "jpeg-bytes",
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeRoomNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploader := &mockUploader{}
			if tt.uploadErr != nil {
				uploader.uploadFn = func(ctx context.Context, req upload.Request) (string, error) {
					return "", tt.uploadErr
				}
			}
			photos := &mockPhotoService{
				upsertFn: func(ctx context.Context, roomCode, userID, userName, url, caption string) error {
					return tt.upsertErr
				},
			}
			h := NewPhotoHandler(roomsWith("123456"), photos, uploader, newSanitizer(), 1<<20)

			req := withUserID(uploadRequest(t, tt.code, tt.fields, tt.file), "user-1")
			w := httptest.NewRecorder()
			h.UploadPhoto(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := parseAPIErrorResponse(t, w)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
			if tt.wantMessage != "" && body["message"] != tt.wantMessage {
				t.Errorf("message = %q, want %q", body["message"], tt.wantMessage)
			}
		})
	}
}

func TestPhotoHandler_UploadPhoto_RoomNotFound_SkipsUpload(t *testing.T) {
	uploader := &mockUploader{}
	h := NewPhotoHandler(roomsWith(), &mockPhotoService{}, uploader, newSanitizer(), 1<<20)

	w := httptest.NewRecorder()
	h.UploadPhoto(w, uploadRequest(t, "999999", map[string]string{"username": "alice"}, "jpeg-bytes"))

	if uploader.calls != 0 {
		t.Errorf("uploader called %d times, want 0", uploader.calls)
	}
}

func TestPhotoHandler_UploadPhoto_TooLarge(t *testing.T) {
	uploader := &mockUploader{}
	h := NewPhotoHandler(roomsWith("123456"), &mockPhotoService{}, uploader, newSanitizer(), 1024)

	req := withUserID(uploadRequest(t, "123456", map[string]string{"username": "alice"}, strings.Repeat("x", 64<<10)), "user-1")
	w := httptest.NewRecorder()
	h.UploadPhoto(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if uploader.calls != 0 {
		t.Errorf("uploader called %d times, want 0", uploader.calls)
	}
}
