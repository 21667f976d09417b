// Package repository はデータ永続化のインターフェースと実装を定義する。
//
// キャビネットの状態は3つの独立したレコード（アカウント、APIキー、スロット）で構成される。
// 各リポジトリは排他制御を持たない。排他制御は上位のストアが担う。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/cabinet/internal/model"
)

// AccountRepository は管理者アカウントの永続化インターフェース。
// 保持できるアカウントは高々1件。
type AccountRepository interface {
	// Get は登録済みアカウントを取得する。未登録の場合はnilを返す。
	Get(ctx context.Context) (*model.Account, error)
	// Save はアカウントを保存する。既存のレコードは置き換えられる。
	Save(ctx context.Context, account *model.Account) error
	// Clear はアカウントを削除する。未登録でもエラーにしない。
	Clear(ctx context.Context) error
}

// APIKeyRepository はAPIキーの永続化インターフェース。
// 保持できるキーは高々1件。
type APIKeyRepository interface {
	// Get は保存済みAPIキーを取得する。未生成の場合はnilを返す。
	Get(ctx context.Context) (*model.APIKey, error)
	// Save はAPIキーを保存する。既存のキーは置き換えられる。
	Save(ctx context.Context, key *model.APIKey) error
	// Clear はAPIキーを削除する。未生成でもエラーにしない。
	Clear(ctx context.Context) error
}

// SlotMeta はスロットに保存されたファイルのメタデータ。
// 正規名を直接記録するため、読み取り時にディレクトリを走査する必要はない。
type SlotMeta struct {
	OriginalName  string    `json:"originalName"`
	CanonicalName string    `json:"canonicalName"`
	SizeBytes     int64     `json:"size"`
	ModifiedAt    time.Time `json:"modifiedAt"`
}

// SlotRepository は単一ファイルスロットの永続化インターフェース。
type SlotRepository interface {
	// Replace は既存のファイルを破棄して新しいファイルを書き込み、確定したメタデータを返す。
	// ModifiedAtは書き込み完了時刻が設定される。
	Replace(ctx context.Context, meta SlotMeta, content []byte) (*SlotMeta, error)
	// Stat は現在のメタデータを返す。空の場合はnilを返す。
	Stat(ctx context.Context) (*SlotMeta, error)
	// Open は現在のファイル内容とメタデータを返す。空の場合はnilを返す。
	Open(ctx context.Context) (*SlotMeta, []byte, error)
	// Remove は現在のファイルを削除する。空でもエラーにしない。
	Remove(ctx context.Context) error
	// Recreate はスロットの保存先を空の状態で作り直す。
	Recreate(ctx context.Context) error
}

// Pinger はバックエンドの疎通確認インターフェース。
type Pinger interface {
	Ping(ctx context.Context) error
}
