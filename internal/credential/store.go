// Package credential は唯一の管理者アカウントとそのセッショントークンを管理する。
package credential

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/cabinet/internal/model"
	"github.com/hitoshi/cabinet/internal/repository"
	"github.com/hitoshi/cabinet/internal/security"
)

// Store は管理者アカウントのストア。
// 変更操作は書き込みロックで直列化され、読み取り同士はブロックしない。
type Store struct {
	mu       sync.RWMutex
	repo     repository.AccountRepository
	newToken func() (string, error)
}

// NewStore はStoreを生成する。
func NewStore(repo repository.AccountRepository) *Store {
	return &Store{
		repo:     repo,
		newToken: security.NewRandomToken,
	}
}

// HasAccount はアカウントが登録済みかを返す。
func (s *Store) HasAccount(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, err := s.repo.Get(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read account: %w", err)
	}
	return account != nil, nil
}

// CreateAccount はアカウントを登録し、新しいセッショントークンを紐付けて返す。
// 既にアカウントが存在する場合はCONFLICTエラーを返す。
func (s *Store) CreateAccount(ctx context.Context, username, password string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	if existing != nil {
		return nil, model.NewAccountExistsError()
	}

	token, err := s.newToken()
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Username:     username,
		Password:     password,
		SessionToken: token,
	}
	if err := s.repo.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}
	return account, nil
}

// Authenticate はユーザー名とパスワードが登録済みアカウントと一致するかを検証する。
func (s *Store) Authenticate(ctx context.Context, username, password string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	if !matches(account, username, password) {
		return nil, model.NewInvalidCredentialsError()
	}
	return account, nil
}

// IssueToken は新しいセッショントークンを発行して保存する。以前のトークンは無効になる。
// 認証後にリセットや再登録が挟まった場合はUNAUTHORIZEDを返す。
func (s *Store) IssueToken(ctx context.Context, account *model.Account) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.repo.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read account: %w", err)
	}
	if account == nil || !matches(current, account.Username, account.Password) {
		return "", model.NewInvalidCredentialsError()
	}

	token, err := s.newToken()
	if err != nil {
		return "", err
	}

	current.SessionToken = token
	if err := s.repo.Save(ctx, current); err != nil {
		return "", fmt.Errorf("failed to save session token: %w", err)
	}
	return token, nil
}

// ValidateToken はトークンが現在のセッショントークンと完全一致するかを検証する。
// ストアの読み取りに失敗した場合はAPIErrorではない通常のエラーを返す。
func (s *Store) ValidateToken(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return nil, model.NewUnauthorizedError("invalid token")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	account, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read account: %w", err)
	}
	if account == nil || account.SessionToken != token {
		return nil, model.NewUnauthorizedError("invalid token")
	}
	return account, nil
}

// Reset はアカウントを削除する。
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear account: %w", err)
	}
	return nil
}

func matches(account *model.Account, username, password string) bool {
	return account != nil && account.Username == username && account.Password == password
}
