// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taqafit/accounts/internal/metrics"
	"github.com/taqafit/accounts/internal/middleware"
	"github.com/taqafit/accounts/internal/model"
	"github.com/taqafit/accounts/internal/registration"
	"github.com/taqafit/accounts/internal/verification"
)

const sessionCookieName = "session_id"

// RegistrationServiceInterface は登録ハンドラーが必要とするサービスインターフェース。
type RegistrationServiceInterface interface {
	Register(ctx context.Context, input registration.Input) (*registration.Result, error)
}

// VerificationServiceInterface は検証ハンドラーが必要とするサービスインターフェース。
type VerificationServiceInterface interface {
	Verify(ctx context.Context, email, code string) (*verification.VerifyResult, error)
	Resend(ctx context.Context, email string) (bool, error)
}

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.Account, *model.Session, error)
	FederatedLogin(ctx context.Context, idToken string) (*model.Account, *model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はアカウント登録・検証・認証のHTTPハンドラー。
type AuthHandler struct {
	registration RegistrationServiceInterface
	verification VerificationServiceInterface
	auth         AuthServiceInterface
	config       AuthHandlerConfig
	metrics      metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
// collectorはnilでもよい（メトリクス記録を省略する）。
func NewAuthHandler(
	reg RegistrationServiceInterface,
	verif VerificationServiceInterface,
	auth AuthServiceInterface,
	config AuthHandlerConfig,
	collector metrics.MetricsCollector,
) *AuthHandler {
	return &AuthHandler{
		registration: reg,
		verification: verif,
		auth:         auth,
		config:       config,
		metrics:      collector,
	}
}

// signupRequest はアカウント登録リクエスト。
type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// signupResponse はアカウント登録レスポンス。
type signupResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Message   string `json:"message"`
}

// Signup はローカルアカウントの登録を受け付ける。
// POST /auth/signup
//
// 新規作成と未検証行の再取得は呼び出し側から区別できない
// （どちらも「検証コードを送信した」という同じ応答になる）。
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("リクエストボディを解析できません"))
		return
	}

	result, err := h.registration.Register(r.Context(), registration.Input{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		h.handleServiceError(w, err, "signup")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordRegistration(result.Reclaimed)
	}

	writeJSON(w, http.StatusCreated, signupResponse{
		AccountID: result.Account.ID,
		Email:     result.Account.Email,
		Message:   "検証コードを送信しました。メールをご確認ください。",
	})
}

// verifyEmailRequest はメールアドレス検証リクエスト。
type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// verifyEmailResponse はメールアドレス検証レスポンス。
type verifyEmailResponse struct {
	Verified        bool `json:"verified"`
	AlreadyVerified bool `json:"already_verified,omitempty"`
}

// VerifyEmail は検証コードを消費してアカウントを有効化する。
// POST /auth/verify-email
//
// 検証済みアカウントへの再検証は冪等な成功として扱う。
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("リクエストボディを解析できません"))
		return
	}
	if req.Email == "" || req.Code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("emailとcodeは必須です"))
		return
	}

	result, err := h.verification.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		h.handleServiceError(w, err, "verify_email")
		return
	}

	if h.metrics != nil && !result.AlreadyVerified {
		h.metrics.RecordVerification()
	}

	writeJSON(w, http.StatusOK, verifyEmailResponse{
		Verified:        true,
		AlreadyVerified: result.AlreadyVerified,
	})
}

// resendRequest は検証コード再送信リクエスト。
type resendRequest struct {
	Email string `json:"email"`
}

// resendResponse は検証コード再送信レスポンス。
type resendResponse struct {
	Issued          bool `json:"issued"`
	AlreadyVerified bool `json:"already_verified,omitempty"`
}

// ResendVerification は検証コードを再発行して送信する。
// POST /auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("リクエストボディを解析できません"))
		return
	}
	if req.Email == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("emailは必須です"))
		return
	}

	issued, err := h.verification.Resend(r.Context(), req.Email)
	if err != nil {
		h.handleServiceError(w, err, "resend_verification")
		return
	}

	writeJSON(w, http.StatusOK, resendResponse{
		Issued:          issued,
		AlreadyVerified: !issued,
	})
}

// loginRequest はローカルログインリクエスト。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// accountResponse はアカウント情報レスポンス。
type accountResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Provider   string `json:"provider"`
	IsVerified bool   `json:"is_verified"`
}

// Login はローカルアカウントのログインを処理し、セッションCookieを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("リクエストボディを解析できません"))
		return
	}

	account, session, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var apiErr *model.APIError
		if h.metrics != nil && errors.As(err, &apiErr) {
			h.metrics.RecordLoginFailure(apiErr.Code)
		}
		h.handleServiceError(w, err, "login")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLoginSuccess()
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// googleLoginRequest はGoogleフェデレーションログインリクエスト。
type googleLoginRequest struct {
	IDToken string `json:"id_token"`
}

// GoogleLogin はGoogleのIDトークンでフェデレーションログインを処理する。
// POST /auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("リクエストボディを解析できません"))
		return
	}

	account, session, err := h.auth.FederatedLogin(r.Context(), req.IDToken)
	if err != nil {
		h.handleServiceError(w, err, "google_login")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordFederatedLogin()
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	// セッションCookieの取得
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		// セッションをDBから削除
		if logoutErr := h.auth.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// setSessionCookie はセッションCookie（HTTP Only）を設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
//
// ステータスマッピング:
//
//	400 — 入力不正、パスワード強度、既存アカウント、コード期限切れ/不一致、プロバイダー不一致
//	401 — 認証失敗、トークン検証失敗
//	403 — 未検証アカウント
//	404 — アカウント不存在（検証・再送信のみ）
//	429 — 再送信クールダウン
//	500 — それ以外
func (h *AuthHandler) handleServiceError(w http.ResponseWriter, err error, operation string) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected service error",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	status := http.StatusBadRequest
	switch apiErr.Code {
	case model.ErrCodeBadCredentials, model.ErrCodeInvalidToken:
		status = http.StatusUnauthorized
	case model.ErrCodeNotVerified:
		status = http.StatusForbidden
	case model.ErrCodeNotFound:
		status = http.StatusNotFound
	case model.ErrCodeResendCooldown:
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", "30")
	}

	middleware.WriteErrorResponse(w, status, apiErr)
}

// toAccountResponse はドメインのAccountをレスポンス型に変換する。
func toAccountResponse(account *model.Account) accountResponse {
	return accountResponse{
		ID:         account.ID,
		Username:   account.Username,
		Email:      account.Email,
		FullName:   account.FullName,
		Provider:   account.Provider,
		IsVerified: account.IsVerified,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
