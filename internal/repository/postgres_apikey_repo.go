package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cabinet/internal/model"
)

// PostgresAPIKeyRepo はPostgreSQLを使用したAPIキーリポジトリ。
type PostgresAPIKeyRepo struct {
	db *sql.DB
}

// NewPostgresAPIKeyRepo はPostgresAPIKeyRepoを生成する。
func NewPostgresAPIKeyRepo(db *sql.DB) *PostgresAPIKeyRepo {
	return &PostgresAPIKeyRepo{db: db}
}

// Get は保存済みAPIキーを取得する。未生成の場合はnilを返す。
func (r *PostgresAPIKeyRepo) Get(ctx context.Context) (*model.APIKey, error) {
	key := &model.APIKey{}
	err := r.db.QueryRowContext(ctx,
		`SELECT key, created_at FROM api_keys WHERE id = 1`,
	).Scan(&key.Value, &key.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find api key: %w", err)
	}
	return key, nil
}

// Save はAPIキーをupsertする。
func (r *PostgresAPIKeyRepo) Save(ctx context.Context, key *model.APIKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, key, created_at)
		 VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE
		 SET key = EXCLUDED.key, created_at = EXCLUDED.created_at`,
		key.Value, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save api key: %w", err)
	}
	return nil
}

// Clear はAPIキーを削除する。
func (r *PostgresAPIKeyRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM api_keys`); err != nil {
		return fmt.Errorf("failed to clear api key: %w", err)
	}
	return nil
}

// compile-time interface check
var _ APIKeyRepository = (*PostgresAPIKeyRepo)(nil)
