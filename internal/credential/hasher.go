package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher はパスワードの一方向ダイジェストを抽象化する。
// アルゴリズムの選択は差し替え可能とし、ドメインロジックから切り離す。
type Hasher interface {
	// Hash は平文パスワードからダイジェストを生成する。
	Hash(password string) (string, error)
	// Compare はダイジェストと平文パスワードの一致を検証する。
	// 不一致の場合はfalseを返す（エラーにはしない）。
	Compare(hash, password string) bool
}

// BcryptHasher はbcryptによるHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はデフォルトコストのBcryptHasherを生成する。
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: bcrypt.DefaultCost}
}

// NewBcryptHasherWithCost は指定コストのBcryptHasherを生成する。
// テストでは計算量を抑えるためbcrypt.MinCostを使用する。
func NewBcryptHasherWithCost(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

// Hash は平文パスワードからbcryptダイジェストを生成する。
func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Compare はbcryptダイジェストと平文パスワードの一致を検証する。
func (h *BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// compile-time interface check
var _ Hasher = (*BcryptHasher)(nil)
