// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeWeakPassword   = "WEAK_PASSWORD"
	ErrCodeAlreadyExists  = "ALREADY_EXISTS"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeExpiredCode    = "EXPIRED_CODE"
	ErrCodeInvalidCode    = "INVALID_CODE"
	ErrCodeNotVerified    = "NOT_VERIFIED"
	ErrCodeBadCredentials = "BAD_CREDENTIALS"
	ErrCodeWrongProvider  = "WRONG_PROVIDER"
	ErrCodeInvalidToken   = "INVALID_TOKEN"
	ErrCodeResendCooldown = "RESEND_COOLDOWN"
)

// NewInvalidInputError は入力形式エラーを生成する。
// reasonには不正だったフィールドと条件を記載する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を修正して再度お試しください。",
	}
}

// NewWeakPasswordError はパスワード強度エラーを生成する。
// reasonには満たされなかった条件を記載する。
func NewWeakPasswordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードが条件を満たしていません: %s", reason),
		Category: "validation",
		Action:   "8文字以上で、大文字・小文字・数字・記号をそれぞれ1文字以上含めてください。",
	}
}

// NewAlreadyExistsError はメールアドレスが検証済みアカウントに使用されている場合のエラーを生成する。
func NewAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewAccountNotFoundError はメールアドレスに対応するアカウントが存在しない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "アカウントが見つかりません。",
		Category: "auth",
		Action:   "メールアドレスを確認するか、新規登録してください。",
	}
}

// NewExpiredCodeError は検証コードの期限切れエラーを生成する。
// コード未発行の状態での検証試行もこのエラーになる。
func NewExpiredCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeExpiredCode,
		Message:  "検証コードの有効期限が切れています。",
		Category: "auth",
		Action:   "コードを再送信して、新しいコードを入力してください。",
	}
}

// NewInvalidCodeError は検証コードの不一致エラーを生成する。
func NewInvalidCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCode,
		Message:  "検証コードが正しくありません。",
		Category: "auth",
		Action:   "メールに記載されたコードを確認して再入力してください。",
	}
}

// NewNotVerifiedError はメール未検証エラーを生成する。
// 失敗ではなく検証フローへのリダイレクト信号として扱う。
func NewNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotVerified,
		Message:  "メールアドレスが未検証です。",
		Category: "auth",
		Action:   "メールに送信された検証コードでアカウントを有効化してください。",
	}
}

// NewBadCredentialsError は認証失敗エラーを生成する。
// アカウント不存在とパスワード不一致を意図的に区別しない（アカウント列挙対策）。
func NewBadCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeBadCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewWrongProviderError は認証方式の不一致エラーを生成する。
func NewWrongProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeWrongProvider,
		Message:  fmt.Sprintf("このアカウントは%sでの認証を使用しています。", provider),
		Category: "auth",
		Action:   "登録時に使用した認証方式でログインしてください。",
	}
}

// NewInvalidTokenError はフェデレーショントークンの検証失敗エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "IDトークンを検証できませんでした。",
		Category: "auth",
		Action:   "再度サインインをやり直してください。",
	}
}

// NewResendCooldownError はコード再送信のクールダウンエラーを生成する。
func NewResendCooldownError() *APIError {
	return &APIError{
		Code:     ErrCodeResendCooldown,
		Message:  "コードの再送信が短時間に集中しています。",
		Category: "auth",
		Action:   "30秒ほど待ってから再度お試しください。",
	}
}
