// Package registration はアカウント登録の照合処理を提供する。
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/taqafit/accounts/internal/credential"
	"github.com/taqafit/accounts/internal/model"
	"github.com/taqafit/accounts/internal/repository"
	"github.com/taqafit/accounts/internal/security"
)

// maxUsernameProbes はユーザー名のサフィックス探索の上限。
// ここに到達するのは検証済みアカウントが異常に密集している場合のみ。
const maxUsernameProbes = 1000

// CodeIssuer は検証コードの発行と送信のインターフェース。
type CodeIssuer interface {
	// Issue は新しい検証コードを生成してアカウントに刻印する。
	Issue(account *model.Account) (string, error)
	// SendCodeAsync は検証コードメールを非同期で送信する。
	SendCodeAsync(email, code string)
}

// Input は登録リクエストの入力を表す。
type Input struct {
	Username string
	Email    string
	FullName string
	Password string
}

// Result は登録処理の結果を表す。
type Result struct {
	Account *model.Account
	// Reclaimed は既存の未検証行を上書きして再取得したことを示す。
	// 呼び出し側から見れば新規作成と等価（どちらも検証コードが送信される）。
	Reclaimed bool
}

// Service はアカウント登録の状態遷移を実行する。
type Service struct {
	accounts  repository.AccountRepository
	issuer    CodeIssuer
	hasher    credential.Hasher
	sanitizer security.ProfileSanitizerService
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(accounts repository.AccountRepository, issuer CodeIssuer, hasher credential.Hasher, logger *slog.Logger) *Service {
	return &Service{
		accounts:  accounts,
		issuer:    issuer,
		hasher:    hasher,
		sanitizer: security.NewProfileSanitizer(),
		logger:    logger,
		now:       time.Now,
	}
}

// Register はローカルアカウントの登録を実行する。
//
// メールアドレスで既存行を引き、次の3状態のいずれかに遷移する。
//   - 行なし → 未検証行を新規作成して検証コードを発行
//   - 未検証行あり → 同じIDのまま全フィールドを上書き（再取得）して新コードを発行
//   - 検証済み行あり → AlreadyExistsで拒否
//
// 未検証行は暫定的な存在であり、メールアドレスを占有しない。
func (s *Service) Register(ctx context.Context, input Input) (*Result, error) {
	if err := credential.ValidateUsername(input.Username); err != nil {
		return nil, err
	}
	email := credential.NormalizeEmail(input.Email)
	if err := credential.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := credential.ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}
	// 表示名はHTMLを含まないプレーンテキストとして保存する。
	fullName := s.sanitizer.Sanitize(input.FullName)

	// bcryptは重いのでトランザクションの外で実行する。
	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	result := &Result{}
	var code string
	err = s.accounts.InTx(ctx, func(store repository.AccountStore) error {
		existing, err := store.FindByEmail(ctx, email)
		if err != nil {
			return err
		}

		if existing != nil && existing.IsVerified {
			return model.NewAlreadyExistsError()
		}

		username, err := ResolveUsername(ctx, store, input.Username)
		if err != nil {
			return err
		}

		now := s.now()
		if existing == nil {
			account := &model.Account{
				ID:        uuid.NewString(),
				Username:  username,
				Email:     email,
				FullName:  fullName,
				Provider:  model.ProviderLocal,
				CreatedAt: now,
				UpdatedAt: now,
			}
			account.PasswordHash = passwordHash
			code, err = s.issuer.Issue(account)
			if err != nil {
				return err
			}
			if err := store.Create(ctx, account); err != nil {
				return err
			}
			result.Account = account
			return nil
		}

		// 再取得: 同じ行を上書きする。IDは保存され、新しい行は作られない。
		existing.Username = username
		existing.FullName = fullName
		existing.PasswordHash = passwordHash
		existing.Provider = model.ProviderLocal
		existing.UpdatedAt = now
		code, err = s.issuer.Issue(existing)
		if err != nil {
			return err
		}
		if err := store.Update(ctx, existing); err != nil {
			return err
		}
		result.Account = existing
		result.Reclaimed = true
		return nil
	})
	if err != nil {
		// 同時登録の競合でユニーク制約が先に発火した場合。
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, model.NewAlreadyExistsError()
		}
		return nil, err
	}

	// メール送信はコミット済みの状態変更をブロックしない。
	s.issuer.SendCodeAsync(result.Account.Email, code)

	s.logger.Info("アカウント登録を受け付けました",
		slog.String("account_id", result.Account.ID),
		slog.String("email", result.Account.Email),
		slog.Bool("reclaimed", result.Reclaimed),
	)
	return result, nil
}

// ResolveUsername は検証済みアカウントと衝突しないユーザー名を決定する。
// 候補が使用中の場合は数値サフィックスを付けて順に探索する
// （candidate, candidate1, candidate2, ...）。
// 未検証アカウントによる使用は衝突とみなさない。
func ResolveUsername(ctx context.Context, store repository.AccountStore, base string) (string, error) {
	candidate := base
	for i := 0; i < maxUsernameProbes; i++ {
		taken, err := store.UsernameTakenByVerified(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i+1)
	}
	return "", fmt.Errorf("failed to resolve username for %q: probe limit reached", base)
}
