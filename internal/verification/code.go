// Package verification はメールアドレス検証コードの発行と消費を提供する。
package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeMin  = 100000
	codeSpan = 900000
)

// GenerateCode は6桁の検証コード（100000〜999999）を生成する。
// 乱数源にはcrypto/randを使用する。
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}
