package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cabinet/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
// accountsテーブルはid=1の1行のみを許可するCHECK制約を持つ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// Get は登録済みアカウントを取得する。未登録の場合はnilを返す。
func (r *PostgresAccountRepo) Get(ctx context.Context) (*model.Account, error) {
	account := &model.Account{}
	var token sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT username, password, session_token FROM accounts WHERE id = 1`,
	).Scan(&account.Username, &account.Password, &token)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	account.SessionToken = token.String
	return account, nil
}

// Save はアカウントをupsertする。
func (r *PostgresAccountRepo) Save(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password, session_token, updated_at)
		 VALUES (1, $1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE
		 SET username = EXCLUDED.username,
		     password = EXCLUDED.password,
		     session_token = EXCLUDED.session_token,
		     updated_at = now()`,
		account.Username, account.Password, nullString(account.SessionToken),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// Clear はアカウントを削除する。
func (r *PostgresAccountRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("failed to clear account: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresAccountRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
