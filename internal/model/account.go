// Package model はドメインモデルを定義する。
package model

import "time"

// Provider はアカウントの認証方式を表す。
// アカウント作成時に一度だけ設定され、以後変更されない。
const (
	// ProviderLocal はメール+パスワードによるローカル認証。
	ProviderLocal = "local"
	// ProviderGoogle はGoogle Sign-Inによるフェデレーション認証。
	ProviderGoogle = "google"
)

// Account はサービス利用アカウントを表す。
// email/usernameの一意性は is_verified = true の行に対してのみ適用される。
// 未検証の行は暫定的な存在であり、同じemail/usernameの再取得をブロックしない。
type Account struct {
	ID       string
	Username string
	// Email は正規化済み（trim + 小文字化）で保持する。
	Email    string
	FullName string
	// PasswordHash はローカルアカウントのみ保持する。
	// フェデレーションアカウントでは空文字列。
	PasswordHash string
	Provider     string
	IsVerified   bool
	// VerificationCode は未検証かつコード発行済みの場合のみ非空。
	// 検証完了時にExpiry共々クリアされる。
	VerificationCode    string
	VerificationExpires *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasPendingCode は未消費の検証コードを保持しているかを返す。
func (a *Account) HasPendingCode() bool {
	return a.VerificationCode != "" && a.VerificationExpires != nil
}

// CodeExpired は保持中の検証コードが期限切れかを返す。
// コード未発行の場合もtrue（検証不能）を返す。
func (a *Account) CodeExpired(now time.Time) bool {
	if !a.HasPendingCode() {
		return true
	}
	return now.After(*a.VerificationExpires)
}

// Session はアカウントのログインセッションを表す。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
