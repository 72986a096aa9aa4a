package verification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/taqafit/accounts/internal/model"
	"github.com/taqafit/accounts/internal/repository"
)

// fakeAccountRepo はメールアドレスをキーにしたインメモリのAccountRepository。
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account // key: email
	updated  int
}

var _ repository.AccountRepository = (*fakeAccountRepo)(nil)

func newFakeAccountRepo(accounts ...*model.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[string]*model.Account)}
	for _, a := range accounts {
		r.accounts[a.Email] = a
	}
	return r
}

func (r *fakeAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[email]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (r *fakeAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ID == id {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) UsernameTakenByVerified(ctx context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.IsVerified && a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.Email] = &copied
	return nil
}

func (r *fakeAccountRepo) Update(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.Email] = &copied
	r.updated++
	return nil
}

func (r *fakeAccountRepo) InTx(ctx context.Context, fn func(store repository.AccountStore) error) error {
	return fn(r)
}

func (r *fakeAccountRepo) DeleteExpiredUnverified(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeAccountRepo) get(email string) *model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[email]
}

// fakeSender は送信されたコードを記録するmail.Senderの実装。
type fakeSender struct {
	mu    sync.Mutex
	sent  []string // "email:code"
	errFn func() error
}

func (s *fakeSender) SendVerificationCode(ctx context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errFn != nil {
		if err := s.errFn(); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, email+":"+code)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assertCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != wantCode {
		t.Errorf("error code = %q, want %q", apiErr.Code, wantCode)
	}
}

func pendingAccount(email, code string, expires time.Time) *model.Account {
	return &model.Account{
		ID:                  "acc-1",
		Username:            "taro",
		Email:               email,
		Provider:            model.ProviderLocal,
		VerificationCode:    code,
		VerificationExpires: &expires,
	}
}

func TestVerify_PromotesAccount(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeAccountRepo(pendingAccount("taro@example.com", "123456", now.Add(5*time.Minute)))
	svc := NewService(repo, &fakeSender{}, testLogger())
	svc.now = func() time.Time { return now }

	result, err := svc.Verify(context.Background(), "taro@example.com", "123456")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.AlreadyVerified {
		t.Error("AlreadyVerified should be false for first verification")
	}
	if !result.Account.IsVerified {
		t.Error("account should be promoted to verified")
	}

	stored := repo.get("taro@example.com")
	if !stored.IsVerified {
		t.Error("stored account should be verified")
	}
	// コードは消費済みとしてクリアされる
	if stored.VerificationCode != "" || stored.VerificationExpires != nil {
		t.Error("verification code should be cleared after consumption")
	}
}

func TestVerify_NormalizesEmail(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeAccountRepo(pendingAccount("taro@example.com", "123456", now.Add(5*time.Minute)))
	svc := NewService(repo, &fakeSender{}, testLogger())
	svc.now = func() time.Time { return now }

	if _, err := svc.Verify(context.Background(), "  Taro@Example.COM ", "123456"); err != nil {
		t.Fatalf("Verify with unnormalized email returned error: %v", err)
	}
}

func TestVerify_AlreadyVerified_IsIdempotentSuccess(t *testing.T) {
	account := &model.Account{
		ID:         "acc-1",
		Username:   "taro",
		Email:      "taro@example.com",
		Provider:   model.ProviderLocal,
		IsVerified: true,
	}
	repo := newFakeAccountRepo(account)
	svc := NewService(repo, &fakeSender{}, testLogger())

	// 検証済みアカウントへの再検証は、コードが何であっても成功を返す
	result, err := svc.Verify(context.Background(), "taro@example.com", "000000")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !result.AlreadyVerified {
		t.Error("AlreadyVerified should be true")
	}
	// 状態変更は一切行われない
	if repo.updated != 0 {
		t.Errorf("no update should occur, got %d updates", repo.updated)
	}
}

func TestVerify_AccountNotFound(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := NewService(repo, &fakeSender{}, testLogger())

	_, err := svc.Verify(context.Background(), "nobody@example.com", "123456")
	assertCode(t, err, model.ErrCodeNotFound)
}

func TestVerify_ExpiredCode(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeAccountRepo(pendingAccount("taro@example.com", "123456", now.Add(-time.Minute)))
	svc := NewService(repo, &fakeSender{}, testLogger())
	svc.now = func() time.Time { return now }

	// 正しいコードでも期限切れなら拒否される（期限判定が先）
	_, err := svc.Verify(context.Background(), "taro@example.com", "123456")
	assertCode(t, err, model.ErrCodeExpiredCode)
}

func TestVerify_NoPendingCode_TreatedAsExpired(t *testing.T) {
	account := &model.Account{
		ID:       "acc-1",
		Username: "taro",
		Email:    "taro@example.com",
		Provider: model.ProviderLocal,
	}
	repo := newFakeAccountRepo(account)
	svc := NewService(repo, &fakeSender{}, testLogger())

	_, err := svc.Verify(context.Background(), "taro@example.com", "123456")
	assertCode(t, err, model.ErrCodeExpiredCode)
}

func TestVerify_InvalidCode(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeAccountRepo(pendingAccount("taro@example.com", "123456", now.Add(5*time.Minute)))
	svc := NewService(repo, &fakeSender{}, testLogger())
	svc.now = func() time.Time { return now }

	_, err := svc.Verify(context.Background(), "taro@example.com", "654321")
	assertCode(t, err, model.ErrCodeInvalidCode)

	// 不一致でもコードは消費されない
	if stored := repo.get("taro@example.com"); stored.VerificationCode != "123456" {
		t.Errorf("code should remain after mismatch, got %q", stored.VerificationCode)
	}
}

func TestIssue_StampsCodeAndExpiry(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	svc := NewService(newFakeAccountRepo(), &fakeSender{}, testLogger())
	svc.now = func() time.Time { return now }
	svc.SetCodeTTL(10 * time.Minute)

	account := &model.Account{ID: "acc-1", Email: "taro@example.com"}
	code, err := svc.Issue(account)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("code length = %d, want 6", len(code))
	}
	if account.VerificationCode != code {
		t.Error("account should carry the issued code")
	}
	wantExpiry := now.Add(10 * time.Minute)
	if account.VerificationExpires == nil || !account.VerificationExpires.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want %v", account.VerificationExpires, wantExpiry)
	}
}

func TestResend_IssuesNewCode(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeAccountRepo(pendingAccount("taro@example.com", "123456", now.Add(5*time.Minute)))
	svc := NewService(repo, &fakeSender{}, testLogger())
	svc.now = func() time.Time { return now }

	issued, err := svc.Resend(context.Background(), "taro@example.com")
	if err != nil {
		t.Fatalf("Resend returned error: %v", err)
	}
	if !issued {
		t.Error("issued should be true for an unverified account")
	}

	stored := repo.get("taro@example.com")
	if stored.VerificationCode == "" {
		t.Error("a new code should be stamped")
	}
	wantExpiry := now.Add(DefaultCodeTTL)
	if stored.VerificationExpires == nil || !stored.VerificationExpires.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want %v", stored.VerificationExpires, wantExpiry)
	}
}

func TestResend_CooldownRejectsSecondRequest(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeAccountRepo(pendingAccount("taro@example.com", "123456", now.Add(5*time.Minute)))
	svc := NewService(repo, &fakeSender{}, testLogger())
	svc.now = func() time.Time { return now }

	if _, err := svc.Resend(context.Background(), "taro@example.com"); err != nil {
		t.Fatalf("first Resend returned error: %v", err)
	}

	// クールダウン内の2回目は拒否される
	_, err := svc.Resend(context.Background(), "taro@example.com")
	assertCode(t, err, model.ErrCodeResendCooldown)
}

func TestResend_CooldownIsPerEmail(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeAccountRepo(
		pendingAccount("taro@example.com", "123456", now.Add(5*time.Minute)),
		&model.Account{
			ID:                  "acc-2",
			Username:            "jiro",
			Email:               "jiro@example.com",
			Provider:            model.ProviderLocal,
			VerificationCode:    "111111",
			VerificationExpires: timePtr(now.Add(5 * time.Minute)),
		},
	)
	svc := NewService(repo, &fakeSender{}, testLogger())
	svc.now = func() time.Time { return now }

	if _, err := svc.Resend(context.Background(), "taro@example.com"); err != nil {
		t.Fatalf("Resend for taro returned error: %v", err)
	}
	// 別のメールアドレスはクールダウンの影響を受けない
	if _, err := svc.Resend(context.Background(), "jiro@example.com"); err != nil {
		t.Fatalf("Resend for jiro returned error: %v", err)
	}
}

func TestResend_NotFound(t *testing.T) {
	repo := newFakeAccountRepo()
	svc := NewService(repo, &fakeSender{}, testLogger())

	_, err := svc.Resend(context.Background(), "nobody@example.com")
	assertCode(t, err, model.ErrCodeNotFound)
}

func TestResend_VerifiedAccount_NoCodeIssued(t *testing.T) {
	account := &model.Account{
		ID:         "acc-1",
		Username:   "taro",
		Email:      "taro@example.com",
		Provider:   model.ProviderLocal,
		IsVerified: true,
	}
	repo := newFakeAccountRepo(account)
	svc := NewService(repo, &fakeSender{}, testLogger())

	issued, err := svc.Resend(context.Background(), "taro@example.com")
	if err != nil {
		t.Fatalf("Resend returned error: %v", err)
	}
	if issued {
		t.Error("issued should be false for a verified account")
	}
	if stored := repo.get("taro@example.com"); stored.VerificationCode != "" {
		t.Error("no code should be stamped on a verified account")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
