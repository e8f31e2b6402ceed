// Package identity は匿名ユーザーの識別（セッション確立）を提供する。
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/photoroom/internal/model"
	"github.com/hitoshi/photoroom/internal/repository"
)

// ServiceConfig は匿名セッションの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は匿名セッションの発行と解決を行う。
type Service struct {
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// EnsureSignedIn はCookieのセッションIDから有効なセッションを返す。
// セッションがない、または期限切れの場合は新しい匿名ユーザーIDでセッションを発行し、
// createdにtrueを返す。同じセッションIDに対しては何度呼んでも同じユーザーIDになる。
func (s *Service) EnsureSignedIn(ctx context.Context, sessionID string) (session *model.Session, created bool, err error) {
	if sessionID != "" {
		session, err = s.sessionRepo.FindByID(ctx, sessionID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find session: %w", err)
		}
		if session != nil {
			return session, false, nil
		}
	}

	session, err = s.createSession(ctx, uuid.NewString())
	if err != nil {
		return nil, false, err
	}

	slog.Info("匿名セッションを発行しました", slog.String("user_id", session.UserID))
	return session, true, nil
}

// Reset はセッションを破棄する。次のリクエストで新しい匿名ユーザーIDが発行される。
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// MaxAge はセッションCookieの有効期間（秒）を返す。
func (s *Service) MaxAge() int {
	return s.config.SessionMaxAge
}

func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
