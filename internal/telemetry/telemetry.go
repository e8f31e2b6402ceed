// Package telemetry はOpenTelemetryによるトレースの初期化を提供する。
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName はトレースのリソース属性に使うサービス名。
const ServiceName = "photoroom"

// Setup はトレースプロバイダーを初期化し、グローバルに登録する。
// enabledがfalse、またはendpointが空の場合は何も登録せず、
// 何もしないshutdown関数を返す。
// 戻り値のshutdownは未送信のスパンをフラッシュするため、呼び出し側でdeferすること。
func Setup(ctx context.Context, enabled bool, endpoint string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if !enabled || endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(ServiceName)))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer はグローバルプロバイダーからパッケージ別のトレーサーを取得する。
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/hitoshi/photoroom/" + name)
}
