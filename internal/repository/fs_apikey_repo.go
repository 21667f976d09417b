package repository

import (
	"context"
	"path/filepath"

	"github.com/hitoshi/cabinet/internal/model"
)

// FSAPIKeyRepo はストレージルート配下の api_key.json にAPIキーを保存するリポジトリ。
type FSAPIKeyRepo struct {
	path string
}

// NewFSAPIKeyRepo はFSAPIKeyRepoを生成する。
func NewFSAPIKeyRepo(root string) *FSAPIKeyRepo {
	return &FSAPIKeyRepo{path: filepath.Join(root, apiKeyFileName)}
}

// Get は保存済みAPIキーを取得する。未生成の場合はnilを返す。
func (r *FSAPIKeyRepo) Get(ctx context.Context) (*model.APIKey, error) {
	var key model.APIKey
	found, err := readJSON(r.path, &key)
	if err != nil {
		return nil, err
	}
	if !found || key.Value == "" {
		return nil, nil
	}
	return &key, nil
}

// Save はAPIキーを保存する。
func (r *FSAPIKeyRepo) Save(ctx context.Context, key *model.APIKey) error {
	return writeJSONAtomic(r.path, key)
}

// Clear はAPIキーファイルを削除する。
func (r *FSAPIKeyRepo) Clear(ctx context.Context) error {
	return removeIfExists(r.path)
}

// compile-time interface check
var _ APIKeyRepository = (*FSAPIKeyRepo)(nil)
