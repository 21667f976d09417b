package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/hitoshi/cabinet/internal/cabinet"
	"github.com/hitoshi/cabinet/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn func(ctx context.Context, username, password string) (string, error)
	loginFn    func(ctx context.Context, username, password string) (string, error)
	hasUserFn  func(ctx context.Context) (bool, error)
}

func (m *mockAuthService) Register(ctx context.Context, username, password string) (string, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, password)
	}
	return "", nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (string, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return "", nil
}

func (m *mockAuthService) HasUser(ctx context.Context) (bool, error) {
	if m.hasUserFn != nil {
		return m.hasUserFn(ctx)
	}
	return false, nil
}

// mockAPIKeyService はAPIKeyServiceInterfaceのモック実装。
type mockAPIKeyService struct {
	generateFn func(ctx context.Context) (string, error)
}

func (m *mockAPIKeyService) GenerateAPIKey(ctx context.Context) (string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx)
	}
	return "", nil
}

// mockFileService はFileServiceInterfaceのモック実装。
type mockFileService struct {
	uploadFn   func(ctx context.Context, in cabinet.UploadInput) (*cabinet.UploadResult, error)
	fileInfoFn func(ctx context.Context, baseURL string) (*cabinet.FileInfo, error)
	previewFn  func(ctx context.Context, name string) (*model.StoredFile, error)
	deleteFn   func(ctx context.Context) error
}

func (m *mockFileService) Upload(ctx context.Context, in cabinet.UploadInput) (*cabinet.UploadResult, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, in)
	}
	return &cabinet.UploadResult{Name: in.OriginalName, SizeBytes: in.SizeBytes}, nil
}

func (m *mockFileService) FileInfo(ctx context.Context, baseURL string) (*cabinet.FileInfo, error) {
	if m.fileInfoFn != nil {
		return m.fileInfoFn(ctx, baseURL)
	}
	return nil, nil
}

func (m *mockFileService) Preview(ctx context.Context, name string) (*model.StoredFile, error) {
	if m.previewFn != nil {
		return m.previewFn(ctx, name)
	}
	return nil, model.NewFileNotFoundError()
}

func (m *mockFileService) Delete(ctx context.Context) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx)
	}
	return nil
}

// mockSystemService はSystemServiceInterfaceのモック実装。
type mockSystemService struct {
	resetFn func(ctx context.Context) *cabinet.ResetReport
}

func (m *mockSystemService) Reset(ctx context.Context) *cabinet.ResetReport {
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return &cabinet.ResetReport{}
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeJSON はレスポンスボディをvにデコードするヘルパー。
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}

// jsonRequest はJSONボディ付きのリクエストを生成するヘルパー。
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest は "file" フィールドにcontentを載せたアップロードリクエストを生成するヘルパー。
func multipartRequest(t *testing.T, path, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("failed to create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
