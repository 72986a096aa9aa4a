package verification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taqafit/accounts/internal/credential"
	"github.com/taqafit/accounts/internal/mail"
	"github.com/taqafit/accounts/internal/model"
	"github.com/taqafit/accounts/internal/repository"
)

const (
	// DefaultCodeTTL は検証コードの有効期間。
	DefaultCodeTTL = 10 * time.Minute
	// DefaultResendCooldown はコード再送信のサーバー側クールダウン。
	DefaultResendCooldown = 30 * time.Second

	// resendEntryTTLFactor はクールダウンの何倍アイドルだったエントリを破棄するか。
	resendEntryTTLFactor = 10
	// resendPruneThreshold はこの件数を超えたらアイドルエントリを間引く。
	resendPruneThreshold = 10000
)

// VerifyResult は検証コード消費の結果を表す。
type VerifyResult struct {
	Account *model.Account
	// AlreadyVerified は検証済みアカウントへの再検証（冪等な成功）を示す。
	AlreadyVerified bool
}

// resendEntry はメールアドレスごとの再送信リミッターとアクセス時刻を保持する。
type resendEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Service は検証コードの消費と再発行を提供する。
type Service struct {
	accounts repository.AccountRepository
	sender   mail.Sender
	logger   *slog.Logger
	codeTTL  time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu      sync.Mutex
	resends map[string]*resendEntry
}

// NewService はServiceを生成する。
func NewService(accounts repository.AccountRepository, sender mail.Sender, logger *slog.Logger) *Service {
	return &Service{
		accounts: accounts,
		sender:   sender,
		logger:   logger,
		codeTTL:  DefaultCodeTTL,
		cooldown: DefaultResendCooldown,
		now:      time.Now,
		resends:  make(map[string]*resendEntry),
	}
}

// SetCodeTTL は検証コードの有効期間を変更する。
func (s *Service) SetCodeTTL(ttl time.Duration) {
	s.codeTTL = ttl
}

// SetResendCooldown はコード再送信のクールダウンを変更する。
func (s *Service) SetResendCooldown(d time.Duration) {
	s.cooldown = d
}

// Issue は新しい検証コードを生成してアカウントに刻印する。
// 永続化は呼び出し側のトランザクションで行う。
func (s *Service) Issue(account *model.Account) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	expires := s.now().Add(s.codeTTL)
	account.VerificationCode = code
	account.VerificationExpires = &expires
	return code, nil
}

// Verify は検証コードを消費してアカウントを検証済みに昇格させる。
// 判定順序: アカウント不存在 → 検証済み（冪等成功） → 期限切れ → コード不一致。
// 期限切れコードはこの時点で初めて検出される（遅延評価）。
func (s *Service) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	email = credential.NormalizeEmail(email)

	result := &VerifyResult{}
	err := s.accounts.InTx(ctx, func(store repository.AccountStore) error {
		account, err := store.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if account == nil {
			return model.NewAccountNotFoundError()
		}

		if account.IsVerified {
			result.Account = account
			result.AlreadyVerified = true
			return nil
		}

		if account.CodeExpired(s.now()) {
			return model.NewExpiredCodeError()
		}
		if account.VerificationCode != code {
			return model.NewInvalidCodeError()
		}

		account.IsVerified = true
		account.VerificationCode = ""
		account.VerificationExpires = nil
		account.UpdatedAt = s.now()
		if err := store.Update(ctx, account); err != nil {
			return err
		}

		result.Account = account
		return nil
	})
	if err != nil {
		// 昇格と同時に別アカウントが同じemail/usernameを検証済みにした場合。
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, model.NewAlreadyExistsError()
		}
		return nil, err
	}

	if !result.AlreadyVerified {
		s.logger.Info("アカウントを検証済みに昇格しました",
			slog.String("account_id", result.Account.ID),
			slog.String("email", result.Account.Email),
		)
	}
	return result, nil
}

// Resend は未検証アカウントに新しい検証コードを発行して送信する。
// 検証済みアカウントに対しては変更なしで issued=false を返す。
// 同一メールアドレスへの連続再送信はクールダウンで拒否される。
func (s *Service) Resend(ctx context.Context, email string) (issued bool, err error) {
	email = credential.NormalizeEmail(email)

	if !s.allowResend(email) {
		return false, model.NewResendCooldownError()
	}

	var code string
	err = s.accounts.InTx(ctx, func(store repository.AccountStore) error {
		account, err := store.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if account == nil {
			return model.NewAccountNotFoundError()
		}
		if account.IsVerified {
			return nil
		}

		code, err = s.Issue(account)
		if err != nil {
			return err
		}
		account.UpdatedAt = s.now()
		return store.Update(ctx, account)
	})
	if err != nil {
		return false, err
	}
	if code == "" {
		return false, nil
	}

	// メール送信はコミット済みの状態変更をブロックしない。
	s.SendCodeAsync(email, code)

	return true, nil
}

// SendCodeAsync は検証コードメールを非同期で送信する。
// 送信失敗はログに記録するのみで、呼び出し側には伝播しない。
func (s *Service) SendCodeAsync(email, code string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.sender.SendVerificationCode(ctx, email, code); err != nil {
			s.logger.Error("検証コードメールの送信に失敗しました",
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// allowResend はメールアドレスごとのクールダウンを判定する。
func (s *Service) allowResend(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.resends[email]
	if !ok {
		if len(s.resends) >= resendPruneThreshold {
			s.prune(now)
		}
		entry = &resendEntry{
			limiter: rate.NewLimiter(rate.Every(s.cooldown), 1),
		}
		s.resends[email] = entry
	}
	entry.lastAccess = now

	return entry.limiter.Allow()
}

// prune はアイドル状態が長いエントリを破棄する。呼び出し側でmuを保持していること。
func (s *Service) prune(now time.Time) {
	ttl := s.cooldown * resendEntryTTLFactor
	for email, entry := range s.resends {
		if now.Sub(entry.lastAccess) > ttl {
			delete(s.resends, email)
		}
	}
}
