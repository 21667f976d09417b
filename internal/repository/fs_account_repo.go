package repository

import (
	"context"
	"path/filepath"

	"github.com/hitoshi/cabinet/internal/model"
)

// FSAccountRepo はストレージルート配下の users.json にアカウントを保存するリポジトリ。
// ファイルの中身は高々1件のアカウントを含むJSON配列。
type FSAccountRepo struct {
	root string
	path string
}

// NewFSAccountRepo はFSAccountRepoを生成する。
func NewFSAccountRepo(root string) *FSAccountRepo {
	return &FSAccountRepo{
		root: root,
		path: filepath.Join(root, accountFileName),
	}
}

// Get は登録済みアカウントを取得する。未登録の場合はnilを返す。
func (r *FSAccountRepo) Get(ctx context.Context) (*model.Account, error) {
	var accounts []model.Account
	found, err := readJSON(r.path, &accounts)
	if err != nil {
		return nil, err
	}
	if !found || len(accounts) == 0 {
		return nil, nil
	}
	account := accounts[0]
	return &account, nil
}

// Save はアカウントを保存する。既存のレコードは置き換えられる。
func (r *FSAccountRepo) Save(ctx context.Context, account *model.Account) error {
	return writeJSONAtomic(r.path, []model.Account{*account})
}

// Clear はアカウントを削除し、空の配列を書き込む。
func (r *FSAccountRepo) Clear(ctx context.Context) error {
	return writeJSONAtomic(r.path, []model.Account{})
}

// Ping はストレージルートにアクセスできるかを確認する。
func (r *FSAccountRepo) Ping(ctx context.Context) error {
	return pingDir(r.root)
}

// compile-time interface check
var _ AccountRepository = (*FSAccountRepo)(nil)
