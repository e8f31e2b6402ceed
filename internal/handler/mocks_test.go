package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/photoroom/internal/middleware"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/security"
	"github.com/hitoshi/photoroom/internal/upload"
)

// --- モック定義 ---

// mockRoomDirectory はRoomDirectoryのモック実装。
type mockRoomDirectory struct {
	resolveFn      func(ctx context.Context, code string) (*model.Room, error)
	createUniqueFn func(ctx context.Context) (*model.Room, error)
}

func (m *mockRoomDirectory) Resolve(ctx context.Context, code string) (*model.Room, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, code)
	}
	return &model.Room{Code: code, CreatedAt: time.Now()}, nil
}

func (m *mockRoomDirectory) CreateUnique(ctx context.Context) (*model.Room, error) {
	if m.createUniqueFn != nil {
		return m.createUniqueFn(ctx)
	}
	return &model.Room{Code: "482913", CreatedAt: time.Now()}, nil
}

// roomsWith は指定コードのルームだけが存在するRoomDirectoryを返す。
func roomsWith(codes ...string) *mockRoomDirectory {
	return &mockRoomDirectory{
		resolveFn: func(ctx context.Context, code string) (*model.Room, error) {
			if code == "" {
				return nil, model.NewInvalidRoomCodeError()
			}
			for _, c := range codes {
				if c == code {
					return &model.Room{Code: code, CreatedAt: time.Now()}, nil
				}
			}
			return nil, model.NewRoomNotFoundError(code)
		},
	}
}

// mockPhotoService はPhotoServiceのモック実装。
type mockPhotoService struct {
	listFn   func(ctx context.Context, roomCode string) ([]model.PhotoView, error)
	upsertFn func(ctx context.Context, roomCode, userID, userName, url, caption string) error
}

func (m *mockPhotoService) List(ctx context.Context, roomCode string) ([]model.PhotoView, error) {
	if m.listFn != nil {
		return m.listFn(ctx, roomCode)
	}
	return []model.PhotoView{}, nil
}

func (m *mockPhotoService) Upsert(ctx context.Context, roomCode, userID, userName, url, caption string) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, roomCode, userID, userName, url, caption)
	}
	return nil
}

// mockUploader はupload.Uploaderのモック実装。
// uploadFnが未設定の場合はリレーと同じ順でバリデーションし、固定URLを返す。
type mockUploader struct {
	uploadFn func(ctx context.Context, req upload.Request) (string, error)
	calls    int
}

func (m *mockUploader) Upload(ctx context.Context, req upload.Request) (string, error) {
	m.calls++
	if m.uploadFn != nil {
		return m.uploadFn(ctx, req)
	}
	if req.File == nil {
		return "", model.NewFileRequiredError()
	}
	if req.UserName == "" {
		return "", model.NewUserNameRequiredError()
	}
	return "https://res.cloudinary.com/demo/image/upload/v1/" + req.FileName, nil
}

// mockIdentityResetter はIdentityResetterのモック実装。
type mockIdentityResetter struct {
	resetFn func(ctx context.Context, sessionID string) error
}

func (m *mockIdentityResetter) Reset(ctx context.Context, sessionID string) error {
	if m.resetFn != nil {
		return m.resetFn(ctx, sessionID)
	}
	return nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// photoUploadBody はアップロードフォームのmultipartボディを組み立てるヘルパー。
// fileContentが空の場合はファイルパートを含めない。
func photoUploadBody(t *testing.T, fields map[string]string, fileName, fileContent string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if fileContent != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte(fileContent))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func newSanitizer() *security.TextSanitizer {
	return security.NewTextSanitizer()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
