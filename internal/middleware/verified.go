package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/taqafit/accounts/internal/model"
)

// AccountFinder は検証状態の確認に必要なインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// NewVerifiedGateMiddleware は未検証アカウントを保護リソースから遮断する
// ミドルウェアを返す。セッションミドルウェアの後に配置すること。
//
// 検証状態はリクエストごとに永続化された現在値を読み直す。セッション発行時の
// 状態をキャッシュしないため、検証前にセッションが確立されていても
// 保護リソースには到達できない。
func NewVerifiedGateMiddleware(accountFinder AccountFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := AccountIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			account, err := accountFinder.FindByID(r.Context(), accountID)
			if err != nil {
				slog.Error("failed to find account",
					slog.String("account_id", accountID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if account == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !account.IsVerified {
				WriteErrorResponse(w, http.StatusForbidden, model.NewNotVerifiedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
