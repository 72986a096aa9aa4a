// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/taqafit/accounts/internal/model"
)

// ErrDuplicateAccount は検証済みアカウントのemail/username一意性制約への
// 違反を表す。部分ユニークインデックスのバックストップであり、
// 同時リクエストが競合したときにのみ発生し得る。
var ErrDuplicateAccount = errors.New("duplicate verified account")

// AccountStore はアカウント行の読み書き操作のインターフェース。
// トランザクション内外の両方で同じ操作群を提供する。
type AccountStore interface {
	// FindByEmail は正規化済みメールアドレスでアカウントを検索する。
	// 見つからない場合はnilを返す。トランザクション内では行ロックを取得する。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// UsernameTakenByVerified は検証済みアカウントがそのユーザー名を
	// 使用中かを返す。未検証アカウントによる使用はカウントしない。
	UsernameTakenByVerified(ctx context.Context, username string) (bool, error)

	// Create はアカウントを新規作成する。
	// 一意性制約違反の場合はErrDuplicateAccountを返す。
	Create(ctx context.Context, account *model.Account) error

	// Update はアカウント行を同一IDのまま上書きする。
	// 一意性制約違反の場合はErrDuplicateAccountを返す。
	Update(ctx context.Context, account *model.Account) error
}

// AccountRepository はアカウントデータの永続化インターフェース。
// 登録・検証・ログインの各オペレーションはInTxで読み取り→判定→書き込みを
// ひとつの全か無かのトランザクションとして実行する。
type AccountRepository interface {
	AccountStore

	// InTx はfnをトランザクション内で実行する。
	// fnがエラーを返した場合は全変更をロールバックする。
	InTx(ctx context.Context, fn func(store AccountStore) error) error

	// DeleteExpiredUnverified は検証コードの期限がolderThanより前に切れた
	// 未検証アカウントを削除し、削除件数を返す。検証済み行には決して触れない。
	DeleteExpiredUnverified(ctx context.Context, olderThan time.Time) (int64, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
}
