// Package auth はログイン判定、セッション管理、フェデレーション認証を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taqafit/accounts/internal/credential"
	"github.com/taqafit/accounts/internal/model"
	"github.com/taqafit/accounts/internal/registration"
	"github.com/taqafit/accounts/internal/repository"
	"github.com/taqafit/accounts/internal/security"
)

// derivedUsernameMaxLen はメールアドレスから導出するユーザー名の最大長。
const derivedUsernameMaxLen = 50

// fallbackUsername は導出結果が短すぎる場合の代替ユーザー名。
const fallbackUsername = "user"

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts  repository.AccountRepository
	sessions  repository.SessionRepository
	hasher    credential.Hasher
	verifier  TokenVerifier
	sanitizer security.ProfileSanitizerService
	logger    *slog.Logger
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	hasher credential.Hasher,
	verifier TokenVerifier,
	logger *slog.Logger,
	config ServiceConfig,
) *Service {
	return &Service{
		accounts:  accounts,
		sessions:  sessions,
		hasher:    hasher,
		verifier:  verifier,
		sanitizer: security.NewProfileSanitizer(),
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Login はローカルアカウントのログインを判定し、セッションを発行する。
//
// 判定は次の順序で行い、並べ替えてはならない:
//  1. アカウント不存在 → BadCredentials（不存在とパスワード誤りを区別しない）
//  2. フェデレーションアカウント → WrongProvider
//  3. 未検証 → NotVerified（検証フローへの誘導。BadCredentialsに畳み込まない）
//  4. パスワード不一致 → BadCredentials
func (s *Service) Login(ctx context.Context, email, password string) (*model.Account, *model.Session, error) {
	email = credential.NormalizeEmail(email)

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, model.NewBadCredentialsError()
	}
	if account.Provider != model.ProviderLocal {
		return nil, nil, model.NewWrongProviderError(account.Provider)
	}
	if !account.IsVerified {
		return nil, nil, model.NewNotVerifiedError()
	}
	if account.PasswordHash == "" || !s.hasher.Compare(account.PasswordHash, password) {
		return nil, nil, model.NewBadCredentialsError()
	}

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("ログインしました",
		slog.String("account_id", account.ID),
	)
	return account, session, nil
}

// FederatedLogin はIDトークンを検証してフェデレーションログインを処理する。
//
// メールアドレスに対応する行が存在しない場合は、検証済みアカウントを
// 直接作成する（検証コードは一切発行しない）。既存行がある場合は
// 検証状態・プロバイダーを問わず変更せずそのまま返す。
// 未検証のローカル行が残っているメールアドレスでも自動検証やマージは行わない。
func (s *Service) FederatedLogin(ctx context.Context, idToken string) (*model.Account, *model.Session, error) {
	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, nil, err
	}

	email := credential.NormalizeEmail(identity.Email)

	var account *model.Account
	var created bool
	err = s.accounts.InTx(ctx, func(store repository.AccountStore) error {
		existing, err := store.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			account = existing
			return nil
		}

		username, err := registration.ResolveUsername(ctx, store, deriveUsername(email))
		if err != nil {
			return err
		}

		now := s.now()
		account = &model.Account{
			ID:         uuid.NewString(),
			Username:   username,
			Email:      email,
			FullName:   s.sanitizer.Sanitize(identity.Name),
			Provider:   identity.Provider,
			IsVerified: true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		created = true
		return store.Create(ctx, account)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, nil, model.NewAlreadyExistsError()
		}
		return nil, nil, err
	}

	session, err := s.createSession(ctx, account.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("フェデレーションログインを処理しました",
		slog.String("account_id", account.ID),
		slog.String("provider", account.Provider),
		slog.Bool("created", created),
	)
	return account, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("ログアウトしました", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentAccount はセッションから現在のアカウントを取得する。
func (s *Service) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	account, err := s.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account not found")
	}

	return account, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, accountID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		AccountID: accountID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
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

// deriveUsername はメールアドレスのローカル部からユーザー名候補を導出する。
// 使用不可の文字を除去し、長すぎる場合は切り詰める。
// 除去の結果短すぎる場合は固定の代替名を使う（一意性の解決は呼び出し側で行う）。
func deriveUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")

	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}

	candidate := b.String()
	if len(candidate) > derivedUsernameMaxLen {
		candidate = candidate[:derivedUsernameMaxLen]
	}
	if len(candidate) < 3 {
		return fallbackUsername
	}
	return candidate
}
