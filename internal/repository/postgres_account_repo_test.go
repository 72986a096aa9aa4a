package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
)

// PostgresAccountRepoはAccountRepositoryインターフェースを満たすことを検証
func TestPostgresAccountRepo_ImplementsInterface(t *testing.T) {
	var _ AccountRepository = (*PostgresAccountRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// NewPostgresAccountRepoが正しく初期化されることを検証
func TestNewPostgresAccountRepo_Initializes(t *testing.T) {
	repo := NewPostgresAccountRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresSessionRepoが正しく初期化されることを検証
func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// 一意性制約違反の判定はpqのエラーコード23505に反応する
func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unique_violationはtrue",
			err:  &pq.Error{Code: "23505"},
			want: true,
		},
		{
			name: "他のpqエラーはfalse",
			err:  &pq.Error{Code: "23503"},
			want: false,
		},
		{
			name: "ラップされたunique_violationもtrue",
			err:  errors.Join(errors.New("insert failed"), &pq.Error{Code: "23505"}),
			want: true,
		},
		{
			name: "pq以外のエラーはfalse",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "nilはfalse",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

// 空文字列はNULLとして書き込む（フェデレーションアカウントのpassword_hash等）
func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("empty string should map to NULL")
	}
	if ns := nullString("$2a$10$hash"); !ns.Valid || ns.String != "$2a$10$hash" {
		t.Errorf("nullString(%q) = %+v", "$2a$10$hash", ns)
	}
}

// nilポインタはNULLとして書き込む（検証完了後のverification_expires）
func TestNullTime(t *testing.T) {
	if nt := nullTime(nil); nt.Valid {
		t.Error("nil time should map to NULL")
	}

	expires := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nt := nullTime(&expires)
	if !nt.Valid || !nt.Time.Equal(expires) {
		t.Errorf("nullTime(%v) = %+v", expires, nt)
	}
}
