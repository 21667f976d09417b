// Package cabinet はアカウント、APIキー、ファイルスロットの3つのストアを束ね、
// システム全体の不変条件を維持するビジネスロジックを提供する。
package cabinet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/hitoshi/cabinet/internal/metrics"
	"github.com/hitoshi/cabinet/internal/model"
	"github.com/hitoshi/cabinet/internal/security"
	"github.com/hitoshi/cabinet/internal/slot"
)

// CredentialStore は管理者アカウントストアのインターフェース。
type CredentialStore interface {
	HasAccount(ctx context.Context) (bool, error)
	CreateAccount(ctx context.Context, username, password string) (*model.Account, error)
	Authenticate(ctx context.Context, username, password string) (*model.Account, error)
	IssueToken(ctx context.Context, account *model.Account) (string, error)
	Reset(ctx context.Context) error
}

// APIKeyStore はAPIキーストアのインターフェース。
type APIKeyStore interface {
	Generate(ctx context.Context) (string, error)
	Reset(ctx context.Context) error
}

// FileSlot は単一ファイルスロットのインターフェース。
type FileSlot interface {
	Put(ctx context.Context, originalName string, sizeBytes int64, content []byte) (*model.StoredFile, error)
	Stat(ctx context.Context) (*model.StoredFile, error)
	ReadByName(ctx context.Context, name string) (*model.StoredFile, error)
	Delete(ctx context.Context) error
	Reset(ctx context.Context) error
}

// expectedMIMETypes はアップロードで想定するContent-Type。
// 判定は拡張子で行い、これ以外のContent-Typeは警告ログのみ出力する。
var expectedMIMETypes = map[string]bool{
	"text/csv":                 true,
	"text/plain":               true,
	"application/vnd.ms-excel": true,
}

// UploadInput はアップロード要求の内容。
type UploadInput struct {
	OriginalName string
	ContentType  string
	SizeBytes    int64 // 負の場合はサイズ検証を省略する
	Content      []byte
}

// UploadResult はアップロード結果。Nameは表示用にサニタイズされた元のファイル名。
type UploadResult struct {
	Name       string
	SizeBytes  int64
	UploadTime time.Time
}

// FileInfo は保存中のファイルの公開情報。
type FileInfo struct {
	Name       string
	SizeBytes  int64
	UploadTime time.Time
	PreviewURL string
}

// リセット手順の名前
const (
	StepSlot    = "slot"
	StepAccount = "account"
	StepAPIKey  = "api_key"
	StepStorage = "storage"
)

// ResetFailure はリセット手順のうち失敗したものを表す。
type ResetFailure struct {
	Step string
	Err  error
}

// ResetReport はリセットの結果。手順はそれぞれ独立に実行され、失敗は累積される。
type ResetReport struct {
	Failures []ResetFailure
}

// OK はすべての手順が成功したかを返す。
func (r *ResetReport) OK() bool {
	return len(r.Failures) == 0
}

// FailedSteps は失敗した手順名の一覧を返す。
func (r *ResetReport) FailedSteps() []string {
	steps := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		steps = append(steps, f.Step)
	}
	return steps
}

// Err はリセット失敗をまとめたエラーを返す。すべて成功した場合はnil。
func (r *ResetReport) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("system reset incomplete: %s", strings.Join(r.FailedSteps(), ", "))
}

// Service はキャビネットのビジネスロジックを提供する。
type Service struct {
	credentials CredentialStore
	apiKeys     APIKeyStore
	slot        FileSlot
	sanitizer   security.NameSanitizer
	metrics     metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	credentials CredentialStore,
	apiKeys APIKeyStore,
	fileSlot FileSlot,
	sanitizer security.NameSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		credentials: credentials,
		apiKeys:     apiKeys,
		slot:        fileSlot,
		sanitizer:   sanitizer,
		metrics:     collector,
	}
}

// Register は管理者アカウントを登録し、セッショントークンを返す。
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", model.NewBadRequestError("username and password are required")
	}

	account, err := s.credentials.CreateAccount(ctx, username, password)
	if err != nil {
		return "", err
	}

	slog.Info("account registered", slog.String("username", account.Username))
	return account.SessionToken, nil
}

// Login は資格情報を検証し、新しいセッショントークンを発行する。以前のトークンは無効になる。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	account, err := s.credentials.Authenticate(ctx, username, password)
	if err != nil {
		s.recordLoginFailure(err)
		return "", err
	}

	token, err := s.credentials.IssueToken(ctx, account)
	if err != nil {
		s.recordLoginFailure(err)
		return "", err
	}

	s.metrics.RecordLogin(true)
	slog.Info("user logged in", slog.String("username", account.Username))
	return token, nil
}

func (s *Service) recordLoginFailure(err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		s.metrics.RecordLogin(false)
		slog.Warn("login rejected", slog.String("reason", apiErr.Message))
	}
}

// HasUser は管理者アカウントが登録済みかを返す。
func (s *Service) HasUser(ctx context.Context) (bool, error) {
	return s.credentials.HasAccount(ctx)
}

// GenerateAPIKey は新しいAPIキーを生成する。以前のキーは即座に無効になる。
func (s *Service) GenerateAPIKey(ctx context.Context) (string, error) {
	key, err := s.apiKeys.Generate(ctx)
	if err != nil {
		return "", err
	}
	slog.Info("api key generated")
	return key, nil
}

// Upload はファイルをスロットに保存する。以前のファイルは破棄される。
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.OriginalName == "" {
		s.metrics.RecordUpload(metrics.UploadRejected, 0)
		return nil, model.NewBadRequestError("no file received")
	}

	displayName := s.sanitizer.SanitizeName(in.OriginalName)

	if model.HasAllowedExtension(in.OriginalName) && !isExpectedMIMEType(in.ContentType) {
		slog.Warn("unexpected upload content type",
			slog.String("file_name", displayName),
			slog.String("content_type", in.ContentType),
		)
	}

	stored, err := s.slot.Put(ctx, in.OriginalName, in.SizeBytes, in.Content)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordUpload(metrics.UploadRejected, 0)
			slog.Warn("upload rejected",
				slog.String("file_name", displayName),
				slog.String("code", apiErr.Code),
			)
			return nil, err
		}
		s.metrics.RecordUpload(metrics.UploadFailed, 0)
		return nil, err
	}

	s.metrics.RecordUpload(metrics.UploadStored, stored.SizeBytes)
	s.metrics.SetSlotOccupied(true)
	slog.Info("file stored",
		slog.String("file_name", displayName),
		slog.String("canonical_name", stored.CanonicalName),
		slog.Int64("size", stored.SizeBytes),
	)

	return &UploadResult{
		Name:       displayName,
		SizeBytes:  stored.SizeBytes,
		UploadTime: stored.ModifiedAt,
	}, nil
}

// FileInfo は保存中のファイルの情報を返す。スロットが空の場合はnilを返す。
func (s *Service) FileInfo(ctx context.Context, baseURL string) (*FileInfo, error) {
	stored, err := s.slot.Stat(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetSlotOccupied(stored != nil)
	if stored == nil {
		return nil, nil
	}

	return &FileInfo{
		Name:       stored.CanonicalName,
		SizeBytes:  stored.SizeBytes,
		UploadTime: stored.ModifiedAt,
		PreviewURL: slot.PreviewURL(baseURL, stored),
	}, nil
}

// Preview は公開プレビュー用にファイルを返す。
// nameが保存中のファイルの正規名と一致しない場合はNOT_FOUNDを返す。
func (s *Service) Preview(ctx context.Context, name string) (*model.StoredFile, error) {
	return s.slot.ReadByName(ctx, name)
}

// Delete は保存中のファイルを削除する。空の場合も成功する。
func (s *Service) Delete(ctx context.Context) error {
	if err := s.slot.Delete(ctx); err != nil {
		return err
	}
	s.metrics.SetSlotOccupied(false)
	slog.Info("file deleted")
	return nil
}

// Reset はスロット、アカウント、APIキーを消去し、スロットの保存先を作り直す。
// 各手順は前の手順の成否にかかわらず実行される。
func (s *Service) Reset(ctx context.Context) *ResetReport {
	report := &ResetReport{}
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{StepSlot, s.slot.Delete},
		{StepAccount, s.credentials.Reset},
		{StepAPIKey, s.apiKeys.Reset},
		{StepStorage, s.slot.Reset},
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			slog.Error("reset step failed",
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)
			report.Failures = append(report.Failures, ResetFailure{Step: step.name, Err: err})
		}
	}

	s.metrics.RecordReset(len(report.Failures))
	if report.OK() {
		s.metrics.SetSlotOccupied(false)
		slog.Info("system reset")
	}
	return report
}

func isExpectedMIMEType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return expectedMIMETypes[strings.ToLower(mediaType)]
}
