package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/glenn-app/glenn-backend/internal/upload"
	"go.uber.org/zap"
)

// Uploader stores files under a per-account quota.
type Uploader interface {
	Upload(ctx context.Context, userID, folder string, f *upload.File) (*upload.Result, error)
	Usage(ctx context.Context, userID string) (upload.Usage, error)
}

// UploadHandler proxies file uploads to object storage.
type UploadHandler struct {
	svc      Uploader
	maxBytes int64
	log      *logger.Logger
}

// NewUploadHandler constructs an UploadHandler. maxBytes bounds the whole
// multipart body.
func NewUploadHandler(svc Uploader, maxBytes int64, log *logger.Logger) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &UploadHandler{svc: svc, maxBytes: maxBytes, log: log.Named("upload")}
}

type uploadResponse struct {
	Success bool `json:"success"`
	*upload.Result
}

// accountFor resolves the account an upload is counted against. A userId
// naming another account is refused.
func accountFor(r *http.Request, requested string) (string, bool) {
	caller := UserID(r.Context())
	if requested == "" {
		return caller, true
	}
	return requested, requested == caller
}

// Upload handles POST /api/upload/imagekit (multipart: file, folder, userId)
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Allow for multipart framing on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided", "")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	userID, ok := accountFor(r, r.FormValue("userId"))
	if !ok {
		writeError(w, http.StatusForbidden, "Forbidden", "User ID mismatch with authenticated user")
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided", "")
		return
	}
	defer file.Close()

	res, err := h.svc.Upload(r.Context(), userID, r.FormValue("folder"), &upload.File{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        file,
	})
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Result: res})
}

func (h *UploadHandler) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		limit    *upload.LimitError
		upstream *upload.UpstreamError
	)
	switch {
	case errors.As(err, &limit):
		writeJSON(w, http.StatusTooManyRequests, model.ErrorResponse{Error: limit.Error()})
	case errors.Is(err, upload.ErrNoFile):
		writeError(w, http.StatusBadRequest, "No file provided", "")
	case errors.Is(err, upload.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "File too large", err.Error())
	case errors.As(err, &upstream):
		writeJSON(w, upstream.StatusCode, model.ErrorResponse{Error: "Upload failed", Details: upstream.Body})
	case errors.Is(err, upload.ErrProviderNotConfigured):
		h.log.WithContext(r.Context()).Error("upload provider credentials not configured")
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "Server configuration error"})
	default:
		h.log.WithContext(r.Context()).Error("upload failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "Internal server error", Details: err.Error()})
	}
}

// Usage handles GET /api/upload/imagekit?userId=
func (h *UploadHandler) Usage(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("userId")
	if requested == "" {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "userId parameter required"})
		return
	}
	userID, ok := accountFor(r, requested)
	if !ok {
		writeError(w, http.StatusForbidden, "Forbidden", "User ID mismatch with authenticated user")
		return
	}

	usage, err := h.svc.Usage(r.Context(), userID)
	if err != nil {
		h.log.WithContext(r.Context()).Error("read upload usage", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}
