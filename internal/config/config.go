// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// defaultUploadEndpointFormat はアップロード先（Cloudinary互換）のエンドポイント書式。
// %sにはクラウド名が入る。
const defaultUploadEndpointFormat = "https://api.cloudinary.com/v1_1/%s/image/upload"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Session
	SessionMaxAge int `env:"SESSION_MAX_AGE" envDefault:"2592000"`

	// Upload relay
	UploadCloudName string        `env:"UPLOAD_CLOUD_NAME,required,notEmpty"`
	UploadPreset    string        `env:"UPLOAD_PRESET,required,notEmpty"`
	UploadEndpoint  string        `env:"UPLOAD_ENDPOINT"`
	UploadTimeout   time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30s"`
	UploadMaxSize   int64         `env:"UPLOAD_MAX_SIZE" envDefault:"10485760"`

	// Invite
	QREndpoint string `env:"QR_ENDPOINT" envDefault:"https://api.qrserver.com/v1/create-qr-code/?size=200x200"`

	// Rate Limit (req/min/user)
	RateLimitGeneral    int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitUpload     int `env:"RATE_LIMIT_UPLOAD" envDefault:"10"`
	RateLimitRoomCreate int `env:"RATE_LIMIT_ROOM_CREATE" envDefault:"10"`

	// Cleanup
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Tracing
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定または空の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	if cfg.UploadEndpoint == "" {
		cfg.UploadEndpoint = fmt.Sprintf(defaultUploadEndpointFormat, cfg.UploadCloudName)
	}

	return cfg, nil
}
