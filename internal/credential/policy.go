// Package credential はユーザー名・メールアドレス・パスワードの
// 検証ルールとパスワードダイジェストを提供する。
// 検証関数はすべて純粋で副作用を持たない。
package credential

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/taqafit/accounts/internal/model"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 50
	passwordMinLen = 8
)

// passwordSymbols はパスワードに要求する記号の集合。
const passwordSymbols = "!@#$%^&*()_+-=[]{};':\",.<>/?\\|`~"

var (
	usernameRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	emailRegexp    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// NormalizeEmail はメールアドレスを正規化する（前後空白除去 + 小文字化）。
// ストアへの保存・検索は常に正規化後の値で行う。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername はユーザー名の形式を検証する。
// 3〜50文字、使用可能文字は英数字と「. - _」のみ。
func ValidateUsername(username string) error {
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		return model.NewInvalidInputError(
			fmt.Sprintf("ユーザー名は%d〜%d文字で入力してください", usernameMinLen, usernameMaxLen))
	}
	if !usernameRegexp.MatchString(username) {
		return model.NewInvalidInputError("ユーザー名に使用できるのは英数字と . - _ のみです")
	}
	return nil
}

// ValidateEmail は正規化済みメールアドレスの形式を検証する。
func ValidateEmail(email string) error {
	if email == "" {
		return model.NewInvalidInputError("メールアドレスは必須です")
	}
	if !emailRegexp.MatchString(email) {
		return model.NewInvalidInputError("メールアドレスの形式が正しくありません")
	}
	return nil
}

// ValidatePasswordStrength はパスワードの強度を検証する。
// 8文字以上で、小文字・大文字・数字・記号をそれぞれ1文字以上含むこと。
func ValidatePasswordStrength(password string) error {
	if len(password) < passwordMinLen {
		return model.NewWeakPasswordError(fmt.Sprintf("%d文字以上にしてください", passwordMinLen))
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(passwordSymbols, r) {
			hasSymbol = true
		}
	}

	switch {
	case !hasLower:
		return model.NewWeakPasswordError("小文字を1文字以上含めてください")
	case !hasUpper:
		return model.NewWeakPasswordError("大文字を1文字以上含めてください")
	case !hasDigit:
		return model.NewWeakPasswordError("数字を1文字以上含めてください")
	case !hasSymbol:
		return model.NewWeakPasswordError("記号を1文字以上含めてください")
	}
	return nil
}
