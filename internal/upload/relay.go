// Package upload は画像ファイルを外部の画像ホスティングへ中継する。
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/photoroom/internal/metrics"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/telemetry"
)

// maxResponseSize はアップロード先レスポンスの読み取り上限。
const maxResponseSize = 1 << 20

// Request はアップロード1件分の入力。
type Request struct {
	UserName string
	FileName string
	File     io.Reader
}

// Uploader はファイルを外部へ送り、公開URLを返すインターフェース。
// ハンドラーのテストでモックに差し替える。
type Uploader interface {
	Upload(ctx context.Context, req Request) (string, error)
}

// Relay はunsignedプリセットを使うCloudinary形式のアップロードAPIのクライアント。
type Relay struct {
	httpClient *http.Client
	endpoint   string
	preset     string
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewRelay はRelayの新しいインスタンスを生成する。
// endpointはmultipartをPOSTするURL、presetはupload_presetフィールドの値。
func NewRelay(httpClient *http.Client, endpoint, preset string, mc metrics.MetricsCollector, logger *slog.Logger) *Relay {
	return &Relay{
		httpClient: httpClient,
		endpoint:   endpoint,
		preset:     preset,
		metrics:    mc,
		logger:     logger,
		tracer:     telemetry.Tracer("upload"),
	}
}

// uploadResponse はアップロード先のレスポンスのうち使用するフィールド。
type uploadResponse struct {
	SecureURL string         `json:"secure_url"`
	Error     *responseError `json:"error"`
}

type responseError struct {
	Message string `json:"message"`
}

// Upload はファイルをmultipart（file, upload_preset）で送信し、secure_urlを返す。
//
// ファイル未選択・ユーザー名未入力は送信前にvalidationエラーとする。
// レスポンスにsecure_urlがなければupload-rejected、通信失敗はnetworkエラーを返す。
// 内部での再試行は行わない。
func (r *Relay) Upload(ctx context.Context, req Request) (string, error) {
	if req.File == nil {
		return "", model.NewFileRequiredError()
	}
	if strings.TrimSpace(req.UserName) == "" {
		return "", model.NewUserNameRequiredError()
	}

	ctx, span := r.tracer.Start(ctx, "upload.Relay")
	defer span.End()
	span.SetAttributes(attribute.String("upload.file_name", req.FileName))

	start := time.Now()
	url, err := r.send(ctx, req)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.metrics.RecordUpload(metrics.ResultOK, elapsed)
		r.logger.Info("画像をアップロードしました",
			slog.String("file_name", req.FileName),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
		return url, nil
	case model.IsCategory(err, model.CategoryUploadRejected):
		r.metrics.RecordUpload(metrics.ResultRejected, elapsed)
	default:
		r.metrics.RecordUpload(metrics.ResultError, elapsed)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "upload failed")
	r.logger.Warn("画像のアップロードに失敗しました",
		slog.String("file_name", req.FileName),
		slog.String("error", err.Error()),
	)
	return "", err
}

func (r *Relay) send(ctx context.Context, req Request) (string, error) {
	body, contentType, err := r.encode(req)
	if err != nil {
		return "", model.NewUploadNetworkError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return "", model.NewUploadNetworkError(fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return "", model.NewUploadNetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", model.NewUploadNetworkError(err)
	}

	var result uploadResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", model.NewUploadRejectedError(fmt.Sprintf("unexpected response (HTTP %d)", resp.StatusCode))
	}
	if result.SecureURL == "" {
		reason := fmt.Sprintf("no URL returned (HTTP %d)", resp.StatusCode)
		if result.Error != nil && result.Error.Message != "" {
			reason = result.Error.Message
		}
		return "", model.NewUploadRejectedError(reason)
	}

	return result.SecureURL, nil
}

// encode はfileとupload_presetを含むmultipartボディを組み立てる。
func (r *Relay) encode(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fileName := req.FileName
	if fileName == "" {
		fileName = "photo"
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(part, req.File); err != nil {
		return nil, "", fmt.Errorf("ファイルの読み込みに失敗しました: %w", err)
	}
	if err := w.WriteField("upload_preset", r.preset); err != nil {
		return nil, "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("multipartの終端に失敗しました: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

var _ Uploader = (*Relay)(nil)
