package handler

import (
	"context"
	"net/http"
)

// APIKeyServiceInterface はAPIキーハンドラーが必要とするサービスインターフェース。
type APIKeyServiceInterface interface {
	GenerateAPIKey(ctx context.Context) (string, error)
}

// APIKeyHandler はAPIキー発行のHTTPハンドラー。
type APIKeyHandler struct {
	service APIKeyServiceInterface
}

// NewAPIKeyHandler はAPIKeyHandlerを生成する。
func NewAPIKeyHandler(service APIKeyServiceInterface) *APIKeyHandler {
	return &APIKeyHandler{service: service}
}

type apiKeyResponse struct {
	APIKey string `json:"apiKey"`
}

// Generate は新しいAPIキーを発行する。以前のキーは直ちに無効になる。
// POST /generate-api-key
func (h *APIKeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.GenerateAPIKey(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiKeyResponse{APIKey: key})
}
