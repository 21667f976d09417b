package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthChecker はバックエンドの疎通確認インターフェース。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler はバックエンドの疎通を報告するHTTPハンドラー。
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。checksのキーはレスポンスに表示される名前。
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health はすべてのバックエンドにPingし、1つでも失敗すれば503を返す。
// 失敗の詳細はログのみに記録する。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			slog.Error("health check failed",
				slog.String("backend", name),
				slog.String("error", err.Error()),
			)
			resp.Status = "unavailable"
			resp.Checks[name] = "unavailable"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
