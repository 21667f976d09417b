package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/cabinet/internal/model"
)

// internalErrorMessage は内部エラー時にクライアントへ返す固定メッセージ。
const internalErrorMessage = "internal server error"

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusByCode はAPIErrorコードとHTTPステータスの対応表。
var statusByCode = map[string]int{
	model.ErrCodeBadRequest:           http.StatusBadRequest,
	model.ErrCodeUnauthorized:         http.StatusUnauthorized,
	model.ErrCodeConflict:             http.StatusConflict,
	model.ErrCodeUnsupportedMediaType: http.StatusUnsupportedMediaType,
	model.ErrCodeNotFound:             http.StatusNotFound,
	model.ErrCodePayloadTooLarge:      http.StatusRequestEntityTooLarge,
	model.ErrCodeRateLimited:          http.StatusTooManyRequests,
	model.ErrCodeInternal:             http.StatusInternalServerError,
}

// StatusForCode はAPIErrorコードに対応するHTTPステータスを返す。
// 未知のコードは500として扱う。
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はコードから導いたステータスでapiErrを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 原因はログにのみ残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError(internalErrorMessage))
}
