package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hitoshi/cabinet/internal/model"
)

// FSSlotRepo はローカルファイルシステム上の単一ファイルスロット。
//
// レイアウト:
//
//	<root>/uploads/cfip.csv|cfip.txt  ファイル本体
//	<root>/slot.json                  メタデータ（正規名を直接記録する）
//
// slot.json が存在しない、または参照先の本体が存在しない場合はスロットを空として扱う。
type FSSlotRepo struct {
	dir      string
	metaPath string
	// writeMeta はメタデータの書き込み。テストで差し替える。
	writeMeta func(path string, v any) error
}

// NewFSSlotRepo はFSSlotRepoを生成する。
func NewFSSlotRepo(root string) *FSSlotRepo {
	return &FSSlotRepo{
		dir:       filepath.Join(root, uploadsDirName),
		metaPath:  filepath.Join(root, slotMetaName),
		writeMeta: writeJSONAtomic,
	}
}

// Replace は既存のファイルを破棄して新しいファイルを書き込む。
// 本体は一時ファイルに書き込んでから正規名にリネームし、最後にメタデータを確定する。
// リネーム前に旧メタデータを削除するため、途中で停止してもスロットは空に見える。
// メタデータの確定に失敗した場合は本体も削除し、スロットを空に戻す。
func (r *FSSlotRepo) Replace(ctx context.Context, meta SlotMeta, content []byte) (*SlotMeta, error) {
	if !model.IsCanonicalName(meta.CanonicalName) {
		return nil, fmt.Errorf("invalid canonical name: %q", meta.CanonicalName)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	tmp := filepath.Join(r.dir, ".upload-"+uuid.New().String())
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	if err := removeIfExists(r.metaPath); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	// 旧ファイルを破棄する。同名の場合はリネームで上書きされる。
	if err := r.removeBlobsExcept(meta.CanonicalName, tmp); err != nil {
		os.Remove(tmp)
		return nil, err
	}

	target := filepath.Join(r.dir, meta.CanonicalName)
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to commit upload: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		r.discard(target)
		return nil, fmt.Errorf("failed to stat upload: %w", err)
	}

	committed := meta
	committed.SizeBytes = info.Size()
	committed.ModifiedAt = info.ModTime()

	if err := r.writeMeta(r.metaPath, committed); err != nil {
		r.discard(target)
		return nil, err
	}

	return &committed, nil
}

// Stat は現在のメタデータを返す。空の場合はnilを返す。
func (r *FSSlotRepo) Stat(ctx context.Context) (*SlotMeta, error) {
	meta, err := r.readMeta()
	if err != nil || meta == nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(r.dir, meta.CanonicalName)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat stored file: %w", err)
	}
	return meta, nil
}

// Open は現在のファイル内容とメタデータを返す。空の場合はnilを返す。
func (r *FSSlotRepo) Open(ctx context.Context) (*SlotMeta, []byte, error) {
	meta, err := r.readMeta()
	if err != nil || meta == nil {
		return nil, nil, err
	}

	content, err := os.ReadFile(filepath.Join(r.dir, meta.CanonicalName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read stored file: %w", err)
	}
	return meta, content, nil
}

// Remove はアップロードディレクトリ内の全ファイルとメタデータを削除する。
func (r *FSSlotRepo) Remove(ctx context.Context) error {
	if err := removeIfExists(r.metaPath); err != nil {
		return err
	}
	return r.removeBlobsExcept("", "")
}

// Recreate はアップロードディレクトリを削除して空の状態で作り直す。
func (r *FSSlotRepo) Recreate(ctx context.Context) error {
	if err := removeIfExists(r.metaPath); err != nil {
		return err
	}
	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("failed to remove upload dir: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	return nil
}

// Ping はアップロードディレクトリにアクセスできるかを確認する。
func (r *FSSlotRepo) Ping(ctx context.Context) error {
	return pingDir(r.dir)
}

func (r *FSSlotRepo) readMeta() (*SlotMeta, error) {
	var meta SlotMeta
	found, err := readJSON(r.metaPath, &meta)
	if err != nil || !found {
		return nil, err
	}
	if !model.IsCanonicalName(meta.CanonicalName) {
		return nil, fmt.Errorf("corrupt slot metadata: canonical name %q", meta.CanonicalName)
	}
	return &meta, nil
}

// removeBlobsExcept はアップロードディレクトリ内のファイルを削除する。
// keepNameと同名のファイル、およびkeepPathは削除しない。
func (r *FSSlotRepo) removeBlobsExcept(keepName, keepPath string) error {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list upload dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || e.Name() == keepName {
			continue
		}
		p := filepath.Join(r.dir, e.Name())
		if p == keepPath {
			continue
		}
		if err := removeIfExists(p); err != nil {
			return err
		}
	}
	return nil
}

// discard は確定に失敗したファイルを削除してスロットを空に戻す。
func (r *FSSlotRepo) discard(target string) {
	os.Remove(target)
	os.Remove(r.metaPath)
}

// compile-time interface check
var _ SlotRepository = (*FSSlotRepo)(nil)
