package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hitoshi/cabinet/internal/model"
)

func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := EnsureStorageRoot(root); err != nil {
		t.Fatalf("EnsureStorageRoot: %v", err)
	}
	return root
}

// --- FSAccountRepo ---

func TestFSAccountRepo_Get_NoFile_ReturnsNil(t *testing.T) {
	repo := NewFSAccountRepo(newTestRoot(t))

	account, err := repo.Get(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if account != nil {
		t.Errorf("expected nil account, got %+v", account)
	}
}

func TestFSAccountRepo_SaveThenGet(t *testing.T) {
	root := newTestRoot(t)
	repo := NewFSAccountRepo(root)
	ctx := context.Background()

	in := &model.Account{Username: "admin", Password: "secret", SessionToken: "tok-1"}
	if err := repo.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || *got != *in {
		t.Errorf("Get = %+v, want %+v", got, in)
	}

	// 別インスタンスからも読めること（永続化の確認）
	got2, err := NewFSAccountRepo(root).Get(ctx)
	if err != nil || got2 == nil || got2.SessionToken != "tok-1" {
		t.Errorf("reopened Get = %+v, %v", got2, err)
	}
}

func TestFSAccountRepo_Save_OverwritesPrevious(t *testing.T) {
	repo := NewFSAccountRepo(newTestRoot(t))
	ctx := context.Background()

	repo.Save(ctx, &model.Account{Username: "admin", Password: "p", SessionToken: "old"})
	repo.Save(ctx, &model.Account{Username: "admin", Password: "p", SessionToken: "new"})

	got, _ := repo.Get(ctx)
	if got.SessionToken != "new" {
		t.Errorf("SessionToken = %q, want %q", got.SessionToken, "new")
	}
}

func TestFSAccountRepo_Clear_WritesEmptyList(t *testing.T) {
	root := newTestRoot(t)
	repo := NewFSAccountRepo(root)
	ctx := context.Background()

	repo.Save(ctx, &model.Account{Username: "admin", Password: "p"})
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	got, err := repo.Get(ctx)
	if err != nil || got != nil {
		t.Errorf("Get after Clear = %+v, %v; want nil, nil", got, err)
	}

	data, err := os.ReadFile(filepath.Join(root, accountFileName))
	if err != nil {
		t.Fatalf("read users.json: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("users.json = %q, want %q", string(data), "[]")
	}
}

func TestFSAccountRepo_Get_CorruptFile_ReturnsError(t *testing.T) {
	root := newTestRoot(t)
	os.WriteFile(filepath.Join(root, accountFileName), []byte("{not json"), 0o600)

	if _, err := NewFSAccountRepo(root).Get(context.Background()); err == nil {
		t.Fatal("expected error for corrupt users.json")
	}
}

func TestFSAccountRepo_Ping(t *testing.T) {
	if err := NewFSAccountRepo(newTestRoot(t)).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "missing")
	if err := NewFSAccountRepo(missing).Ping(context.Background()); err == nil {
		t.Error("expected Ping error for missing root")
	}
}

// --- FSAPIKeyRepo ---

func TestFSAPIKeyRepo_Lifecycle(t *testing.T) {
	repo := NewFSAPIKeyRepo(newTestRoot(t))
	ctx := context.Background()

	got, err := repo.Get(ctx)
	if err != nil || got != nil {
		t.Fatalf("initial Get = %+v, %v; want nil, nil", got, err)
	}

	if err := repo.Save(ctx, &model.APIKey{Value: "key-1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ = repo.Get(ctx)
	if got == nil || got.Value != "key-1" {
		t.Fatalf("Get = %+v, want key-1", got)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ = repo.Get(ctx)
	if got != nil {
		t.Errorf("Get after Clear = %+v, want nil", got)
	}

	// 2回目のClearもエラーにならない
	if err := repo.Clear(ctx); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

// --- FSSlotRepo ---

func TestFSSlotRepo_Stat_Empty_ReturnsNil(t *testing.T) {
	repo := NewFSSlotRepo(newTestRoot(t))

	meta, err := repo.Stat(context.Background())
	if err != nil || meta != nil {
		t.Errorf("Stat = %+v, %v; want nil, nil", meta, err)
	}
}

func TestFSSlotRepo_ReplaceThenOpen(t *testing.T) {
	repo := NewFSSlotRepo(newTestRoot(t))
	ctx := context.Background()

	content := []byte("ip,port\n1.1.1.1,443\n")
	meta, err := repo.Replace(ctx, SlotMeta{OriginalName: "DATA.CSV", CanonicalName: model.CanonicalCSV}, content)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if meta.SizeBytes != int64(len(content)) {
		t.Errorf("SizeBytes = %d, want %d", meta.SizeBytes, len(content))
	}
	if meta.ModifiedAt.IsZero() {
		t.Error("expected ModifiedAt to be set")
	}

	gotMeta, gotContent, err := repo.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if gotMeta.CanonicalName != model.CanonicalCSV || gotMeta.OriginalName != "DATA.CSV" {
		t.Errorf("Open meta = %+v", gotMeta)
	}
	if string(gotContent) != string(content) {
		t.Errorf("Open content = %q, want %q", gotContent, content)
	}
}

func TestFSSlotRepo_Replace_DiscardsPreviousFile(t *testing.T) {
	root := newTestRoot(t)
	repo := NewFSSlotRepo(root)
	ctx := context.Background()

	repo.Replace(ctx, SlotMeta{OriginalName: "a.csv", CanonicalName: model.CanonicalCSV}, []byte("csv"))
	repo.Replace(ctx, SlotMeta{OriginalName: "b.txt", CanonicalName: model.CanonicalTXT}, []byte("txt"))

	entries, err := os.ReadDir(filepath.Join(root, uploadsDirName))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != model.CanonicalTXT {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("uploads dir = %v, want [%s]", names, model.CanonicalTXT)
	}

	meta, content, _ := repo.Open(ctx)
	if meta.OriginalName != "b.txt" || string(content) != "txt" {
		t.Errorf("Open = %+v, %q", meta, content)
	}
}

// TestFSSlotRepo_Replace_InterruptedBeforeMetadata_ReadsEmpty は本体のリネーム後、
// メタデータの確定前に停止した場合、新しい本体と旧メタデータが組み合わされないことを検証する。
func TestFSSlotRepo_Replace_InterruptedBeforeMetadata_ReadsEmpty(t *testing.T) {
	root := newTestRoot(t)
	ctx := context.Background()

	if _, err := NewFSSlotRepo(root).Replace(ctx, SlotMeta{OriginalName: "old.csv", CanonicalName: model.CanonicalCSV}, []byte("a,b")); err != nil {
		t.Fatalf("initial Replace: %v", err)
	}

	crashing := NewFSSlotRepo(root)
	crashing.writeMeta = func(string, any) error {
		panic("process stopped")
	}
	func() {
		defer func() { recover() }()
		crashing.Replace(ctx, SlotMeta{OriginalName: "new.csv", CanonicalName: model.CanonicalCSV}, []byte("a,b,c,d,e,f"))
	}()

	restarted := NewFSSlotRepo(root)
	meta, err := restarted.Stat(ctx)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta != nil {
		t.Errorf("Stat = %+v, want empty slot", meta)
	}
	meta, content, err := restarted.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if meta != nil || content != nil {
		t.Errorf("Open = %+v, %q, want empty slot", meta, content)
	}
}

func TestFSSlotRepo_Replace_RejectsNonCanonicalName(t *testing.T) {
	repo := NewFSSlotRepo(newTestRoot(t))

	_, err := repo.Replace(context.Background(), SlotMeta{CanonicalName: "../users.json"}, []byte("x"))
	if err == nil {
		t.Fatal("expected error for non-canonical name")
	}
}

func TestFSSlotRepo_Remove_IsIdempotent(t *testing.T) {
	root := newTestRoot(t)
	repo := NewFSSlotRepo(root)
	ctx := context.Background()

	repo.Replace(ctx, SlotMeta{OriginalName: "a.csv", CanonicalName: model.CanonicalCSV}, []byte("csv"))

	for i := 0; i < 3; i++ {
		if err := repo.Remove(ctx); err != nil {
			t.Fatalf("Remove #%d: %v", i, err)
		}
	}

	meta, err := repo.Stat(ctx)
	if err != nil || meta != nil {
		t.Errorf("Stat after Remove = %+v, %v", meta, err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, uploadsDirName))
	if len(entries) != 0 {
		t.Errorf("uploads dir has %d entries, want 0", len(entries))
	}
}

func TestFSSlotRepo_Stat_MissingBlob_TreatedAsEmpty(t *testing.T) {
	root := newTestRoot(t)
	repo := NewFSSlotRepo(root)
	ctx := context.Background()

	repo.Replace(ctx, SlotMeta{OriginalName: "a.csv", CanonicalName: model.CanonicalCSV}, []byte("csv"))
	os.Remove(filepath.Join(root, uploadsDirName, model.CanonicalCSV))

	meta, err := repo.Stat(ctx)
	if err != nil || meta != nil {
		t.Errorf("Stat = %+v, %v; want nil, nil", meta, err)
	}
}

func TestFSSlotRepo_Recreate_RestoresEmptyDir(t *testing.T) {
	root := newTestRoot(t)
	repo := NewFSSlotRepo(root)
	ctx := context.Background()

	repo.Replace(ctx, SlotMeta{OriginalName: "a.txt", CanonicalName: model.CanonicalTXT}, []byte("txt"))
	os.RemoveAll(filepath.Join(root, uploadsDirName))

	if err := repo.Recreate(ctx); err != nil {
		t.Fatalf("Recreate: %v", err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Errorf("Ping after Recreate: %v", err)
	}
	if meta, _ := repo.Stat(ctx); meta != nil {
		t.Errorf("Stat after Recreate = %+v, want nil", meta)
	}
}
