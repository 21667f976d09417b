package credential

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hitoshi/cabinet/internal/model"
	"github.com/hitoshi/cabinet/internal/repository"
)

// --- モック定義 ---

// mockAccountRepo はメモリ上に1件のアカウントを保持する。
// 各Fnが設定されている場合はそちらを優先する。
type mockAccountRepo struct {
	mu      sync.Mutex
	account *model.Account
	saves   int

	getFn   func(ctx context.Context) (*model.Account, error)
	saveFn  func(ctx context.Context, account *model.Account) error
	clearFn func(ctx context.Context) error
}

func (m *mockAccountRepo) Get(ctx context.Context) (*model.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return nil, nil
	}
	copied := *m.account
	return &copied, nil
}

func (m *mockAccountRepo) Save(ctx context.Context, account *model.Account) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *account
	m.account = &copied
	m.saves++
	return nil
}

func (m *mockAccountRepo) Clear(ctx context.Context) error {
	if m.clearFn != nil {
		return m.clearFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = nil
	return nil
}

var _ repository.AccountRepository = (*mockAccountRepo)(nil)

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

// --- テスト ---

func TestHasAccount_ReflectsRegistration(t *testing.T) {
	store := NewStore(&mockAccountRepo{})
	ctx := context.Background()

	has, err := store.HasAccount(ctx)
	if err != nil {
		t.Fatalf("HasAccount: %v", err)
	}
	if has {
		t.Fatal("expected no account before registration")
	}

	if _, err := store.CreateAccount(ctx, "admin", "secret"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	has, err = store.HasAccount(ctx)
	if err != nil {
		t.Fatalf("HasAccount: %v", err)
	}
	if !has {
		t.Fatal("expected account after registration")
	}
}

func TestCreateAccount_IssuesToken(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo)

	account, err := store.CreateAccount(context.Background(), "admin", "secret")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if len(account.SessionToken) != 64 {
		t.Errorf("len(SessionToken) = %d, want 64", len(account.SessionToken))
	}
	if repo.account.SessionToken != account.SessionToken {
		t.Error("returned token differs from persisted token")
	}
}

func TestCreateAccount_SecondRegistration_Conflict(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo)
	ctx := context.Background()

	first, err := store.CreateAccount(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	_, err = store.CreateAccount(ctx, "intruder", "other")
	assertAPIErrorCode(t, err, model.ErrCodeConflict)

	if repo.account.Username != "admin" || repo.account.SessionToken != first.SessionToken {
		t.Errorf("original account was modified: %+v", repo.account)
	}
}

func TestCreateAccount_RepoReadError(t *testing.T) {
	readErr := errors.New("disk unreadable")
	store := NewStore(&mockAccountRepo{
		getFn: func(_ context.Context) (*model.Account, error) { return nil, readErr },
	})

	_, err := store.CreateAccount(context.Background(), "admin", "secret")
	if !errors.Is(err, readErr) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
}

func TestCreateAccount_TokenGenerationError(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo)
	genErr := errors.New("entropy exhausted")
	store.newToken = func() (string, error) { return "", genErr }

	_, err := store.CreateAccount(context.Background(), "admin", "secret")
	if !errors.Is(err, genErr) {
		t.Errorf("expected token error, got %v", err)
	}
	if repo.account != nil {
		t.Error("account must not be saved when token generation fails")
	}
}

func TestAuthenticate(t *testing.T) {
	repo := &mockAccountRepo{account: &model.Account{Username: "admin", Password: "secret", SessionToken: "t"}}
	store := NewStore(repo)

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{name: "一致", username: "admin", password: "secret"},
		{name: "パスワード不一致", username: "admin", password: "wrong", wantErr: true},
		{name: "ユーザー名不一致", username: "root", password: "secret", wantErr: true},
		{name: "大文字小文字は区別される", username: "Admin", password: "secret", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := store.Authenticate(context.Background(), tt.username, tt.password)
			if tt.wantErr {
				assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if account.Username != "admin" {
				t.Errorf("Username = %q, want admin", account.Username)
			}
		})
	}
}

func TestAuthenticate_NoAccount_Unauthorized(t *testing.T) {
	store := NewStore(&mockAccountRepo{})

	_, err := store.Authenticate(context.Background(), "admin", "secret")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestIssueToken_InvalidatesPreviousToken(t *testing.T) {
	store := NewStore(&mockAccountRepo{})
	ctx := context.Background()

	created, err := store.CreateAccount(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	account, err := store.Authenticate(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	first, err := store.IssueToken(ctx, account)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	second, err := store.IssueToken(ctx, account)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if first == second || first == created.SessionToken {
		t.Fatal("expected a fresh token on every issue")
	}

	for _, stale := range []string{created.SessionToken, first} {
		_, err := store.ValidateToken(ctx, stale)
		assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
	}

	got, err := store.ValidateToken(ctx, second)
	if err != nil {
		t.Fatalf("ValidateToken(second): %v", err)
	}
	if got.Username != "admin" {
		t.Errorf("Username = %q, want admin", got.Username)
	}
}

func TestIssueToken_AfterReset_Unauthorized(t *testing.T) {
	store := NewStore(&mockAccountRepo{})
	ctx := context.Background()

	if _, err := store.CreateAccount(ctx, "admin", "secret"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	account, err := store.Authenticate(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	_, err = store.IssueToken(ctx, account)
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestIssueToken_SaveError(t *testing.T) {
	saveErr := errors.New("read-only filesystem")
	repo := &mockAccountRepo{account: &model.Account{Username: "admin", Password: "secret", SessionToken: "old"}}
	repo.saveFn = func(_ context.Context, _ *model.Account) error { return saveErr }
	store := NewStore(repo)

	_, err := store.IssueToken(context.Background(), &model.Account{Username: "admin", Password: "secret"})
	if !errors.Is(err, saveErr) {
		t.Errorf("expected wrapped save error, got %v", err)
	}
}

func TestValidateToken_EmptyToken(t *testing.T) {
	// 未ログイン状態のアカウントはトークンが空。空文字列での認証は許可しない。
	store := NewStore(&mockAccountRepo{account: &model.Account{Username: "admin", Password: "secret"}})

	_, err := store.ValidateToken(context.Background(), "")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestValidateToken_NoAccount(t *testing.T) {
	store := NewStore(&mockAccountRepo{})

	_, err := store.ValidateToken(context.Background(), "deadbeef")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestValidateToken_PrefixDoesNotMatch(t *testing.T) {
	store := NewStore(&mockAccountRepo{account: &model.Account{Username: "admin", Password: "p", SessionToken: "abcdef"}})

	_, err := store.ValidateToken(context.Background(), "abc")
	assertAPIErrorCode(t, err, model.ErrCodeUnauthorized)
}

func TestValidateToken_StoreFailure_NotAPIError(t *testing.T) {
	readErr := errors.New("corrupt users.json")
	store := NewStore(&mockAccountRepo{
		getFn: func(_ context.Context) (*model.Account, error) { return nil, readErr },
	})

	_, err := store.ValidateToken(context.Background(), "deadbeef")
	if !errors.Is(err, readErr) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Error("store failure must not be reported as an APIError")
	}
}

func TestReset_ClearsAccount(t *testing.T) {
	repo := &mockAccountRepo{account: &model.Account{Username: "admin", Password: "secret", SessionToken: "tok"}}
	store := NewStore(repo)
	ctx := context.Background()

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	has, err := store.HasAccount(ctx)
	if err != nil {
		t.Fatalf("HasAccount: %v", err)
	}
	if has {
		t.Error("expected no account after reset")
	}
	if _, err := store.ValidateToken(ctx, "tok"); err == nil {
		t.Error("expected old token to be rejected after reset")
	}

	// リセット後は再登録できる
	if _, err := store.CreateAccount(ctx, "admin2", "secret2"); err != nil {
		t.Errorf("CreateAccount after reset: %v", err)
	}
}

func TestReset_ClearError(t *testing.T) {
	clearErr := errors.New("permission denied")
	store := NewStore(&mockAccountRepo{
		clearFn: func(_ context.Context) error { return clearErr },
	})

	if err := store.Reset(context.Background()); !errors.Is(err, clearErr) {
		t.Errorf("expected wrapped clear error, got %v", err)
	}
}

// TestCreateAccount_Concurrent は同時登録でも1件しか成功しないことを検証する。
func TestCreateAccount_Concurrent(t *testing.T) {
	repo := &mockAccountRepo{}
	store := NewStore(repo)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.CreateAccount(context.Background(), "admin", "secret"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", succeeded)
	}
	if repo.saves != 1 {
		t.Errorf("saves = %d, want 1", repo.saves)
	}
}

// TestStore_WithFSRepository はファイルシステムバックエンドと組み合わせた動作を検証する。
func TestStore_WithFSRepository(t *testing.T) {
	root := t.TempDir()
	if err := repository.EnsureStorageRoot(root); err != nil {
		t.Fatalf("EnsureStorageRoot: %v", err)
	}
	ctx := context.Background()

	store := NewStore(repository.NewFSAccountRepo(root))
	created, err := store.CreateAccount(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	// 再起動を模して新しいストアを作る
	reopened := NewStore(repository.NewFSAccountRepo(root))
	account, err := reopened.ValidateToken(ctx, created.SessionToken)
	if err != nil {
		t.Fatalf("ValidateToken after reopen: %v", err)
	}
	if account.Username != "admin" {
		t.Errorf("Username = %q, want admin", account.Username)
	}
}
