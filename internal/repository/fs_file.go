package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ストレージルート配下のレイアウト
const (
	accountFileName = "users.json"
	apiKeyFileName  = "api_key.json"
	slotMetaName    = "slot.json"
	uploadsDirName  = "uploads"
)

// EnsureStorageRoot はストレージルートとアップロードディレクトリを作成する。
// 既に存在する場合は何もしない。
func EnsureStorageRoot(root string) error {
	if err := os.MkdirAll(filepath.Join(root, uploadsDirName), 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	return nil
}

// writeFileAtomic は同一ディレクトリの一時ファイルに書き込んでからリネームする。
// 読み手が書きかけのファイルを観測することはない。
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, ".tmp-"+uuid.New().String())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// writeJSONAtomic はvをJSONにエンコードしてアトミックに書き込む。
func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data, 0o600)
}

// readJSON はpathのJSONをvにデコードする。
// ファイルが存在しない場合はfound=falseを返す。
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// removeIfExists はファイルを削除する。存在しない場合はエラーにしない。
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

// pingDir はディレクトリが存在しアクセス可能かを確認する。
func pingDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("storage unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage unavailable: %s is not a directory", dir)
	}
	return nil
}
