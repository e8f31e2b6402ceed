package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/photoroom/internal/metrics"
	"github.com/hitoshi/photoroom/internal/model"
)

type uploadMetrics struct {
	metrics.Nop
	results []string
}

func (m *uploadMetrics) RecordUpload(result string, duration time.Duration) {
	m.results = append(m.results, result)
}

func newTestRelay(server *httptest.Server, mc metrics.MetricsCollector) *Relay {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewRelay(server.Client(), server.URL+"/v1_1/demo/image/upload", "unsigned-preset", mc, logger)
}

func validRequest() Request {
	return Request{
		UserName: "alice",
		FileName: "cat.jpg",
		File:     strings.NewReader("\xff\xd8\xff fake jpeg bytes"),
	}
}

func TestRelay_Upload_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1_1/demo/image/upload" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipartのパースに失敗: %v", err)
			return
		}
		if got := r.FormValue("upload_preset"); got != "unsigned-preset" {
			t.Errorf("upload_preset = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("fileフィールドがない: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "cat.jpg" {
			t.Errorf("ファイル名 = %q, want cat.jpg", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if !bytes.HasSuffix(data, []byte("fake jpeg bytes")) {
			t.Errorf("ファイル内容 = %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"public_id":"abc","secure_url":"https://res.example.com/demo/abc.jpg"}`)
	}))
	defer server.Close()

	mc := &uploadMetrics{}
	url, err := newTestRelay(server, mc).Upload(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if url != "https://res.example.com/demo/abc.jpg" {
		t.Errorf("url = %q", url)
	}
	if len(mc.results) != 1 || mc.results[0] != metrics.ResultOK {
		t.Errorf("results = %v, want [ok]", mc.results)
	}
}

// 入力不備は送信前に検出し、アップロード先を呼ばない
func TestRelay_Upload_ValidationBeforeNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	tests := []struct {
		name     string
		req      Request
		wantCode string
	}{
		{"ファイル未選択", Request{UserName: "alice"}, model.ErrCodeFileRequired},
		{"ユーザー名未入力", Request{UserName: "  ", File: strings.NewReader("x")}, model.ErrCodeUserNameRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestRelay(server, metrics.Nop{}).Upload(context.Background(), tt.req)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want APIError", err)
			}
			if apiErr.Category != model.CategoryValidation || apiErr.Code != tt.wantCode {
				t.Errorf("error = %s/%s, want validation/%s", apiErr.Category, apiErr.Code, tt.wantCode)
			}
		})
	}

	if called {
		t.Error("入力不備なのにアップロード先が呼ばれた")
	}
}

func TestRelay_Upload_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"secure_urlなし", http.StatusOK, `{"public_id":"abc"}`, "Upload failed: no URL returned (HTTP 200)"},
		{"エラーメッセージ付き", http.StatusBadRequest, `{"error":{"message":"Upload preset not found"}}`, "Upload failed: Upload preset not found"},
		{"JSONでない", http.StatusBadGateway, `<html>bad gateway</html>`, "Upload failed: unexpected response (HTTP 502)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			mc := &uploadMetrics{}
			_, err := newTestRelay(server, mc).Upload(context.Background(), validRequest())

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want APIError", err)
			}
			if apiErr.Category != model.CategoryUploadRejected {
				t.Errorf("Category = %q, want upload-rejected", apiErr.Category)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if len(mc.results) != 1 || mc.results[0] != metrics.ResultRejected {
				t.Errorf("results = %v, want [rejected]", mc.results)
			}
		})
	}
}

func TestRelay_Upload_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	relay := newTestRelay(server, metrics.Nop{})
	// サーバーを閉じて接続失敗を起こす
	server.Close()

	_, err := relay.Upload(context.Background(), validRequest())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.Category != model.CategoryNetwork {
		t.Errorf("Category = %q, want network", apiErr.Category)
	}
	if !strings.HasPrefix(apiErr.Message, "Upload failed: ") || len(apiErr.Message) <= len("Upload failed: ") {
		t.Errorf("Message = %q, 元エラーから組み立てられていない", apiErr.Message)
	}
}

func TestRelay_Upload_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestRelay(server, metrics.Nop{}).Upload(ctx, validRequest())
	if !model.IsCategory(err, model.CategoryNetwork) {
		t.Errorf("error = %v, want network", err)
	}
}
