// Package auth はメールアドレスとパスワードによる認証、セッション管理を提供する。
// 資格情報は外部の認証プロバイダが保持し、ローカルにはプロフィールとセッションのみ保存する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/stagelog/internal/model"
	"github.com/hitoshi/stagelog/internal/repository"
)

const minPasswordLength = 6

// ErrInvalidCredentials は認証プロバイダが資格情報を拒否したことを表す。
var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity は認証プロバイダが返すユーザー情報。
type Identity struct {
	UserID      string
	Email       string
	AccessToken string
}

// IdentityProvider は外部認証プロバイダのインターフェース。
type IdentityProvider interface {
	// SignUp はユーザーを登録する。
	SignUp(ctx context.Context, email, password, username string) (*Identity, error)
	// SignIn はメールアドレスとパスワードで認証する。拒否された場合はErrInvalidCredentialsを返す。
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	// SendPasswordReset はパスワード再設定メールを送る。
	SendPasswordReset(ctx context.Context, email string) error
	// UpdatePassword はアクセストークンの持ち主のパスワードを変更する。
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider    IdentityProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider IdentityProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		provider:    provider,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// SignUp はユーザーを登録し、ローカルのプロフィールを作成する。
func (s *Service) SignUp(ctx context.Context, email, password, username string) (*model.User, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < model.UsernameMinLength || n > model.UsernameMaxLength {
		return nil, model.NewValidationError("username", fmt.Sprintf("%d〜%d文字で入力してください", model.UsernameMinLength, model.UsernameMaxLength))
	}

	taken, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザー名の確認に失敗しました: %w", err)
	}
	if taken != nil {
		return nil, usernameTakenError()
	}

	identity, err := s.provider.SignUp(ctx, email, password, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザー登録に失敗しました: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:        identity.UserID,
		Email:     identity.Email,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Upsert(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, usernameTakenError()
		}
		return nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}

	slog.Info("user signed up", slog.String("user_id", user.ID))
	return user, nil
}

// SignIn は認証プロバイダで認証し、ローカルセッションを発行する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	identity, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, fmt.Errorf("認証に失敗しました: %w", err)
	}

	// プロバイダ側で登録されたがプロフィールが未作成のユーザーもここで補う
	now := time.Now()
	if err := s.userRepo.Upsert(ctx, &model.User{
		ID:        identity.UserID,
		Email:     identity.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	session, err := s.createSession(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	slog.Info("user signed in", slog.String("user_id", identity.UserID))
	return session, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// RequestPasswordReset はパスワード再設定メールを依頼する。
// 登録有無を推測されないよう、プロバイダの失敗はログのみに記録する。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := validateEmail(email)
	if err != nil {
		return err
	}
	if err := s.provider.SendPasswordReset(ctx, email); err != nil {
		slog.Warn("password reset request failed", slog.String("error", err.Error()))
	}
	return nil
}

// UpdatePassword はアクセストークンの持ち主のパスワードを変更する。
func (s *Service) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	if accessToken == "" {
		return model.NewAuthRequiredError()
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if err := s.provider.UpdatePassword(ctx, accessToken, newPassword); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return model.NewAuthRequiredError()
		}
		return fmt.Errorf("パスワードの変更に失敗しました: %w", err)
	}
	return nil
}

// CurrentUser はユーザーのプロフィールを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// IsAdmin はユーザーが管理者ロールを持つかどうかを返す。
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ok, err := s.userRepo.HasRole(ctx, userID, model.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("ロールの確認に失敗しました: %w", err)
	}
	return ok, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Source:    model.SessionSourceCookie,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
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

func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("email", "メールアドレスの形式が正しくありません")
	}
	return email, nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return model.NewValidationError("password", fmt.Sprintf("%d文字以上で入力してください", minPasswordLength))
	}
	return nil
}

func usernameTakenError() *model.APIError {
	return model.NewValidationError("username", "既に使われています")
}
