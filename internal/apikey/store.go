// Package apikey は機械間連携用の唯一のAPIキーを管理する。
package apikey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/cabinet/internal/model"
	"github.com/hitoshi/cabinet/internal/repository"
	"github.com/hitoshi/cabinet/internal/security"
)

// Store はAPIキーのストア。キーは高々1件で、生成のたびに置き換えられる。
type Store struct {
	mu       sync.RWMutex
	repo     repository.APIKeyRepository
	newToken func() (string, error)
	now      func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(repo repository.APIKeyRepository) *Store {
	return &Store{
		repo:     repo,
		newToken: security.NewRandomToken,
		now:      time.Now,
	}
}

// Generate は新しいAPIキーを生成して保存する。以前のキーは即座に無効になる。
func (s *Store) Generate(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := s.newToken()
	if err != nil {
		return "", err
	}

	key := &model.APIKey{Value: value, CreatedAt: s.now().UTC()}
	if err := s.repo.Save(ctx, key); err != nil {
		return "", fmt.Errorf("failed to save api key: %w", err)
	}
	return value, nil
}

// Validate はkeyが保存済みのAPIキーと完全一致するかを検証する。
// キー未生成または不一致の場合はUNAUTHORIZED、読み取り失敗は通常のエラーを返す。
func (s *Store) Validate(ctx context.Context, key string) error {
	if key == "" {
		return model.NewUnauthorizedError("invalid API key")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, err := s.repo.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read api key: %w", err)
	}
	if stored == nil || stored.Value != key {
		return model.NewUnauthorizedError("invalid API key")
	}
	return nil
}

// Reset は保存済みのAPIキーを削除する。
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear api key: %w", err)
	}
	return nil
}
