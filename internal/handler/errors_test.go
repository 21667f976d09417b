package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/cabinet/internal/model"
)

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeBadRequest, http.StatusBadRequest},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeConflict, http.StatusConflict},
		{model.ErrCodeUnsupportedMediaType, http.StatusUnsupportedMediaType},
		{model.ErrCodeNotFound, http.StatusNotFound},
		{model.ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{model.ErrCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code}); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_NonAPIErrorHidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/file-info", nil)

	handleServiceError(w, r, errors.New("open /srv/storage/slot.json: permission denied"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeInternal)
	}
	for _, v := range body {
		if v == "open /srv/storage/slot.json: permission denied" {
			t.Error("internal error detail must not be returned to the client")
		}
	}
}

func TestHandleServiceError_WrappedAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/register", nil)

	wrapped := errors.Join(errors.New("context"), model.NewAccountExistsError())
	handleServiceError(w, r, wrapped)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}
