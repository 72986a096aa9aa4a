package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taqafit/accounts/internal/model"
)

type mockAccountFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Account, error)
}

func (m *mockAccountFinder) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func verifiedGateRequest(t *testing.T, finder AccountFinder, accountID string) *httptest.ResponseRecorder {
	t.Helper()

	nextCalled := false
	handler := NewVerifiedGateMiddleware(finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if accountID != "" {
		req = req.WithContext(ContextWithAccountID(req.Context(), accountID))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK && nextCalled {
		t.Error("next handler should not be called on rejection")
	}
	return rec
}

func TestVerifiedGate_VerifiedAccount_Passes(t *testing.T) {
	finder := &mockAccountFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return &model.Account{ID: id, IsVerified: true}, nil
		},
	}

	rec := verifiedGateRequest(t, finder, "acc-123")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestVerifiedGate_UnverifiedAccount_Returns403(t *testing.T) {
	finder := &mockAccountFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return &model.Account{ID: id, IsVerified: false}, nil
		},
	}

	rec := verifiedGateRequest(t, finder, "acc-123")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response should be JSON: %v", err)
	}
	if body.Code != model.ErrCodeNotVerified {
		t.Errorf("error code = %q, want %q", body.Code, model.ErrCodeNotVerified)
	}
}

func TestVerifiedGate_MissingAccountID_Returns401(t *testing.T) {
	rec := verifiedGateRequest(t, &mockAccountFinder{}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestVerifiedGate_AccountGone_Returns401(t *testing.T) {
	rec := verifiedGateRequest(t, &mockAccountFinder{}, "acc-123")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestVerifiedGate_FinderError_Returns500(t *testing.T) {
	finder := &mockAccountFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return nil, errors.New("db down")
		},
	}

	rec := verifiedGateRequest(t, finder, "acc-123")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// 検証状態はリクエストごとに読み直される。
// 同じセッションでも、検証完了後のリクエストは通過する。
func TestVerifiedGate_ReadsCurrentStatePerRequest(t *testing.T) {
	verified := false
	finder := &mockAccountFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Account, error) {
			return &model.Account{ID: id, IsVerified: verified}, nil
		},
	}

	if rec := verifiedGateRequest(t, finder, "acc-123"); rec.Code != http.StatusForbidden {
		t.Errorf("before verification: status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	verified = true
	if rec := verifiedGateRequest(t, finder, "acc-123"); rec.Code != http.StatusOK {
		t.Errorf("after verification: status = %d, want %d", rec.Code, http.StatusOK)
	}
}
