package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/taqafit/accounts/internal/model"
)

// uniqueViolation はPostgreSQLのunique_violationエラーコード。
const uniqueViolation = "23505"

// dbtx は*sql.DBと*sql.Txに共通するクエリ操作。
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// accountStore はdbtxに対するアカウント行の操作実装。
// lockingがtrueの場合、FindByEmailはFOR UPDATEで行ロックを取得する。
type accountStore struct {
	q       dbtx
	locking bool
}

const accountColumns = `id, username, email, full_name, password_hash, provider,
	is_verified, verification_code, verification_expires, created_at, updated_at`

func scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	var passwordHash, code sql.NullString
	var expires sql.NullTime
	err := row.Scan(
		&account.ID, &account.Username, &account.Email, &account.FullName,
		&passwordHash, &account.Provider, &account.IsVerified,
		&code, &expires, &account.CreatedAt, &account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	account.PasswordHash = passwordHash.String
	account.VerificationCode = code.String
	if expires.Valid {
		t := expires.Time
		account.VerificationExpires = &t
	}
	return account, nil
}

// FindByEmail は正規化済みメールアドレスでアカウントを検索する。
// 見つからない場合はnilを返す。
func (s *accountStore) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	if s.locking {
		query += ` FOR UPDATE`
	}
	account, err := scanAccount(s.q.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (s *accountStore) FindByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// UsernameTakenByVerified は検証済みアカウントがそのユーザー名を使用中かを返す。
func (s *accountStore) UsernameTakenByVerified(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1 AND is_verified)`,
		username,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return taken, nil
}

// Create はアカウントを新規作成する。
func (s *accountStore) Create(ctx context.Context, account *model.Account) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, full_name, password_hash, provider,
			is_verified, verification_code, verification_expires, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		account.ID, account.Username, account.Email, account.FullName,
		nullString(account.PasswordHash), account.Provider, account.IsVerified,
		nullString(account.VerificationCode), nullTime(account.VerificationExpires),
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Update はアカウント行を同一IDのまま上書きする。
func (s *accountStore) Update(ctx context.Context, account *model.Account) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE accounts
		 SET username = $2, email = $3, full_name = $4, password_hash = $5,
			 provider = $6, is_verified = $7, verification_code = $8,
			 verification_expires = $9, updated_at = $10
		 WHERE id = $1`,
		account.ID, account.Username, account.Email, account.FullName,
		nullString(account.PasswordHash), account.Provider, account.IsVerified,
		nullString(account.VerificationCode), nullTime(account.VerificationExpires),
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", account.ID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	accountStore
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{
		accountStore: accountStore{q: db},
		db:           db,
	}
}

// InTx はfnをトランザクション内で実行する。
// トランザクション内のFindByEmailはFOR UPDATEで行ロックを取得し、
// 同一メールアドレスへの同時登録・検証を直列化する。
func (r *PostgresAccountRepo) InTx(ctx context.Context, fn func(store AccountStore) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&accountStore{q: tx, locking: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteExpiredUnverified は検証コードの期限がolderThanより前に切れた
// 未検証アカウントを削除し、削除件数を返す。
func (r *PostgresAccountRepo) DeleteExpiredUnverified(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM accounts
		 WHERE NOT is_verified AND verification_expires IS NOT NULL AND verification_expires < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired unverified accounts: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
