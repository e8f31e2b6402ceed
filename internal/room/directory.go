// Package room はルームの参加（コード解決）と作成を提供する。
package room

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/photoroom/internal/metrics"
	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/repository"
	"github.com/hitoshi/photoroom/internal/telemetry"
)

// Directory はルームディレクトリのサービス層。
type Directory struct {
	rooms   repository.RoomRepository
	codes   CodeGenerator
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewDirectory はDirectoryの新しいインスタンスを生成する。
// codesがnilの場合はRandomCodeGeneratorを使う。
func NewDirectory(
	rooms repository.RoomRepository,
	codes CodeGenerator,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Directory {
	if codes == nil {
		codes = RandomCodeGenerator{}
	}
	return &Directory{
		rooms:   rooms,
		codes:   codes,
		metrics: mc,
		logger:  logger,
		tracer:  telemetry.Tracer("room"),
		now:     time.Now,
	}
}

// Resolve はコードに一致する既存ルームを返す。
// 前後の空白以外の正規化は行わない。
// 空のコードはvalidation、該当なしはnot-found、バックエンド障害はnetworkのAPIErrorを返す。
func (d *Directory) Resolve(ctx context.Context, code string) (*model.Room, error) {
	ctx, span := d.tracer.Start(ctx, "room.Resolve")
	defer span.End()

	code = strings.TrimSpace(code)
	span.SetAttributes(attribute.String("room.code", code))
	if code == "" {
		d.metrics.RecordRoomJoin(metrics.ResultNotFound)
		return nil, model.NewInvalidRoomCodeError()
	}

	room, err := d.rooms.FindByCode(ctx, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		d.metrics.RecordRoomJoin(metrics.ResultError)
		d.logger.Error("ルームの検索に失敗しました",
			slog.String("room_code", code),
			slog.String("error", err.Error()),
		)
		return nil, model.NewJoinFailedError(err)
	}
	if room == nil {
		d.metrics.RecordRoomJoin(metrics.ResultNotFound)
		return nil, model.NewRoomNotFoundError(code)
	}

	d.metrics.RecordRoomJoin(metrics.ResultOK)
	return room, nil
}

// CreateUnique は未使用のコードが見つかるまで候補を生成し、ルームを作成する。
// 試行回数に上限はない。存在確認の後、作成はcreate-if-absentで行うため、
// 同じ候補を選んだ並行リクエストに負けた場合は次の候補で再試行する。
func (d *Directory) CreateUnique(ctx context.Context) (*model.Room, error) {
	ctx, span := d.tracer.Start(ctx, "room.CreateUnique")
	defer span.End()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, model.NewCreateFailedError(err)
		}

		code := d.codes.Next()

		exists, err := d.rooms.Exists(ctx, code)
		if err != nil {
			return nil, d.createFailed(span, code, err)
		}
		if exists {
			continue
		}

		room := &model.Room{Code: code, CreatedAt: d.now()}
		created, err := d.rooms.CreateIfAbsent(ctx, room)
		if err != nil {
			return nil, d.createFailed(span, code, err)
		}
		if !created {
			d.logger.Info("ルームコードが並行作成と衝突したため再試行します",
				slog.String("room_code", code),
			)
			continue
		}

		span.SetAttributes(
			attribute.String("room.code", code),
			attribute.Int("room.attempts", attempt),
		)
		d.metrics.RecordRoomCreated(attempt)
		d.logger.Info("ルームを作成しました",
			slog.String("room_code", code),
			slog.Int("attempts", attempt),
		)
		return room, nil
	}
}

func (d *Directory) createFailed(span trace.Span, code string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "create failed")
	d.logger.Error("ルームの作成に失敗しました",
		slog.String("room_code", code),
		slog.String("error", err.Error()),
	)
	return model.NewCreateFailedError(fmt.Errorf("room %s: %w", code, err))
}
