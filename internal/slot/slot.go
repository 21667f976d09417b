// Package slot は高々1件のファイルを保持するストレージスロットを提供する。
//
// スロットは常に「空」か「1件保持」のいずれかの状態にある。新しいファイルの書き込みは
// 既存のファイルを置き換え、2件が同時に観測されることはない。
package slot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hitoshi/cabinet/internal/model"
	"github.com/hitoshi/cabinet/internal/repository"
)

// Slot は単一ファイルスロット。書き込み操作は相互に直列化される。
type Slot struct {
	mu   sync.RWMutex
	repo repository.SlotRepository
}

// New はSlotを生成する。
func New(repo repository.SlotRepository) *Slot {
	return &Slot{repo: repo}
}

// Put はファイルをスロットに保存し、以前のファイルを破棄する。
// sizeBytesが負の場合はサイズ検証を省略する。
func (s *Slot) Put(ctx context.Context, originalName string, sizeBytes int64, content []byte) (*model.StoredFile, error) {
	if !model.HasAllowedExtension(originalName) {
		return nil, model.NewUnsupportedMediaTypeError(originalName)
	}
	if sizeBytes >= 0 && sizeBytes != int64(len(content)) {
		return nil, model.NewBadRequestError(
			fmt.Sprintf("declared size %d does not match received %d bytes", sizeBytes, len(content)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.repo.Replace(ctx, repository.SlotMeta{
		OriginalName:  originalName,
		CanonicalName: model.CanonicalNameFor(originalName),
	}, content)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	file := toStoredFile(meta)
	file.Content = content
	return file, nil
}

// Get は現在のファイルを内容付きで返す。空の場合はnilを返す。
func (s *Slot) Get(ctx context.Context) (*model.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, content, err := s.repo.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read slot: %w", err)
	}
	if meta == nil {
		return nil, nil
	}
	file := toStoredFile(meta)
	file.Content = content
	return file, nil
}

// Stat は現在のファイルのメタデータのみを返す。空の場合はnilを返す。
func (s *Slot) Stat(ctx context.Context) (*model.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.repo.Stat(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stat slot: %w", err)
	}
	if meta == nil {
		return nil, nil
	}
	return toStoredFile(meta), nil
}

// ReadByName は正規名nameで公開されているファイルを返す。
// nameが許可リストにない、スロットが空、または保存中の正規名と異なる場合はNOT_FOUNDを返す。
func (s *Slot) ReadByName(ctx context.Context, name string) (*model.StoredFile, error) {
	if !IsAllowedName(name) {
		return nil, model.NewFileNotFoundError()
	}

	file, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if file == nil || file.CanonicalName != name {
		return nil, model.NewFileNotFoundError()
	}
	return file, nil
}

// Delete は現在のファイルを削除する。空の場合も成功する。
func (s *Slot) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Remove(ctx); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Reset はスロットを空にし、保存先を作り直す。
func (s *Slot) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Recreate(ctx); err != nil {
		return fmt.Errorf("failed to recreate slot: %w", err)
	}
	return nil
}

// IsAllowedName は公開プレビューで参照できる名前かを判定する。
// 許可されるのは cfip.csv と cfip.txt の完全一致のみ。
func IsAllowedName(name string) bool {
	return model.IsCanonicalName(name)
}

// PreviewURL はファイルのプレビューURLを組み立てる。
// URLは常に正規名から作られ、元のファイル名は使われない。
func PreviewURL(baseURL string, file *model.StoredFile) string {
	return strings.TrimRight(baseURL, "/") + "/files/" + file.CanonicalName
}

func toStoredFile(meta *repository.SlotMeta) *model.StoredFile {
	return &model.StoredFile{
		OriginalName:  meta.OriginalName,
		CanonicalName: meta.CanonicalName,
		SizeBytes:     meta.SizeBytes,
		ModifiedAt:    meta.ModifiedAt,
	}
}
