package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cabinet/internal/cabinet"
	"github.com/hitoshi/cabinet/internal/model"
)

// multipartOverhead はファイル本体以外に許容するマルチパートのヘッダー・境界のバイト数。
const multipartOverhead = 64 << 10

// FileServiceInterface はファイルハンドラーが必要とするサービスインターフェース。
type FileServiceInterface interface {
	Upload(ctx context.Context, in cabinet.UploadInput) (*cabinet.UploadResult, error)
	FileInfo(ctx context.Context, baseURL string) (*cabinet.FileInfo, error)
	Preview(ctx context.Context, name string) (*model.StoredFile, error)
	Delete(ctx context.Context) error
}

// FileHandlerConfig はファイルハンドラーの設定。
type FileHandlerConfig struct {
	// BaseURL はpreviewUrlの生成に使う公開URL。空の場合はリクエストから導出する。
	BaseURL        string
	MaxUploadBytes int64
}

// FileHandler は単一ファイルスロットのHTTPハンドラー。
type FileHandler struct {
	service FileServiceInterface
	config  FileHandlerConfig
}

// NewFileHandler はFileHandlerを生成する。
func NewFileHandler(service FileServiceInterface, config FileHandlerConfig) *FileHandler {
	return &FileHandler{
		service: service,
		config:  config,
	}
}

type uploadedFile struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	UploadTime int64  `json:"uploadTime"` // Unixミリ秒
}

type uploadResponse struct {
	Success bool         `json:"success"`
	File    uploadedFile `json:"file"`
}

type fileInfoResponse struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadTime time.Time `json:"uploadTime"`
	PreviewURL string    `json:"previewUrl"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// Upload はマルチパートの "file" フィールドを受け取り、スロットのファイルを置き換える。
// POST /upload, POST /api/upload
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(h.config.MaxUploadBytes))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("no file received"))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if h.config.MaxUploadBytes > 0 && header.Size > h.config.MaxUploadBytes {
		writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(h.config.MaxUploadBytes))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.Upload(r.Context(), cabinet.UploadInput{
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		SizeBytes:    header.Size,
		Content:      content,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		File: uploadedFile{
			Name:       result.Name,
			Size:       result.SizeBytes,
			UploadTime: result.UploadTime.UnixMilli(),
		},
	})
}

// FileInfo は保存中のファイルの情報を返す。スロットが空の場合はnullを返す。
// GET /file-info, GET /api/file-info
func (h *FileHandler) FileInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.FileInfo(r.Context(), h.baseURL(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if info == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	writeJSON(w, http.StatusOK, fileInfoResponse{
		Name:       info.Name,
		Size:       info.SizeBytes,
		UploadTime: info.UploadTime,
		PreviewURL: info.PreviewURL,
	})
}

// Preview は保存中のファイルをHTMLページとして表示する。認証は不要。
// GET /files/{filename}
func (h *FileHandler) Preview(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.Preview(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	page, err := renderPreview(file)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", previewContentSecurityPolicy)
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// Delete は保存中のファイルを削除する。スロットが空でも成功する。
// DELETE /file
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context()); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// baseURL は設定済みのBASE_URL、なければリクエストのスキームとホストを返す。
func (h *FileHandler) baseURL(r *http.Request) string {
	if h.config.BaseURL != "" {
		return h.config.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
