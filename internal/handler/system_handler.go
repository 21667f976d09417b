package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/cabinet/internal/cabinet"
)

// SystemServiceInterface はシステムリセットハンドラーが必要とするサービスインターフェース。
type SystemServiceInterface interface {
	Reset(ctx context.Context) *cabinet.ResetReport
}

// SystemHandler はシステム全体の操作を扱うHTTPハンドラー。
type SystemHandler struct {
	service SystemServiceInterface
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(service SystemServiceInterface) *SystemHandler {
	return &SystemHandler{service: service}
}

type resetResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Failures []string `json:"failures,omitempty"`
}

// Reset はファイル、アカウント、APIキーをすべて消去する。
// 一部の手順が失敗した場合は500と失敗した手順の一覧を返す。
// POST /reset-system
func (h *SystemHandler) Reset(w http.ResponseWriter, r *http.Request) {
	report := h.service.Reset(r.Context())
	if !report.OK() {
		writeJSON(w, http.StatusInternalServerError, resetResponse{
			Success:  false,
			Message:  report.Err().Error(),
			Failures: report.FailedSteps(),
		})
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{
		Success: true,
		Message: "system reset",
	})
}
