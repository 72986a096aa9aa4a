package handler

import (
	"log/slog"
	"net/http"

	"github.com/taqafit/accounts/internal/middleware"
)

// AccountHandler はアカウント情報のHTTPハンドラー。
type AccountHandler struct {
	accounts middleware.AccountFinder
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(accounts middleware.AccountFinder) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Me は現在のログインアカウント情報を返す。
// GET /api/me
//
// セッションミドルウェアと検証ゲートの後に配置されるため、
// ここに到達するのは検証済みアカウントのみ。
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := h.accounts.FindByID(r.Context(), accountID)
	if err != nil {
		slog.Error("failed to get current account", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if account == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}
