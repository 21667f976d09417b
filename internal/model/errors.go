// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, file, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewBadRequestError は入力不備エラーを生成する。
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeBadRequest,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
// 原因（資格情報の誤りか、ストアの障害か）はメッセージから判別できないようにする。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCredentialsError はユーザー名またはパスワードの不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "invalid username or password",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewAccountExistsError は管理者アカウントが既に登録されている場合のエラーを生成する。
func NewAccountExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  "an account is already registered",
		Category: "auth",
		Action:   "登録済みのアカウントでログインしてください。",
	}
}

// NewUnsupportedMediaTypeError は許可されていない拡張子のファイルに対するエラーを生成する。
func NewUnsupportedMediaTypeError(filename string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedMediaType,
		Message:  fmt.Sprintf("only .csv or .txt files are accepted: %s", filename),
		Category: "file",
		Action:   "拡張子が .csv または .txt のファイルを選択してください。",
	}
}

// NewFileNotFoundError はプレビュー対象のファイルが存在しない場合のエラーを生成する。
func NewFileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "file not found",
		Category: "file",
		Action:   "ファイルがアップロードされているか確認してください。",
	}
}

// NewPayloadTooLargeError はアップロードサイズ上限を超えた場合のエラーを生成する。
func NewPayloadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  fmt.Sprintf("file exceeds the upload limit of %d bytes", limit),
		Category: "file",
		Action:   "より小さいファイルをアップロードしてください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "too many requests",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  message,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
