package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/dishly/dishly/internal/httputil"
	"github.com/dishly/dishly/internal/validate"
)

const (
	uploadURLExpiry   = 15 * time.Minute
	downloadURLExpiry = time.Hour
)

// Purpose says what an upload is for; it limits the accepted content types.
type Purpose string

const (
	PurposeRecipeCover Purpose = "recipe-cover"
	PurposeRecipeVideo Purpose = "recipe-video"
	PurposePostMedia   Purpose = "post-media"
	PurposeLicense     Purpose = "license"
)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"application/pdf": ".pdf",
}

var allowedTypes = map[Purpose][]string{
	PurposeRecipeCover: {"image/jpeg", "image/png", "image/webp"},
	PurposeRecipeVideo: {"video/mp4", "video/webm", "video/quicktime"},
	PurposePostMedia:   {"image/jpeg", "image/png", "image/webp", "video/mp4", "video/webm", "video/quicktime"},
	PurposeLicense:     {"application/pdf", "image/jpeg", "image/png"},
}

var keyPattern = regexp.MustCompile(`^(recipe-cover|recipe-video|post-media|license)/\d{4}/\d{2}/[0-9a-f-]{36}\.[a-z0-9]+$`)

// ObjectStore is the part of Storage the upload routes use.
type ObjectStore interface {
	GenerateUploadURL(ctx context.Context, key, contentType, cacheControl string, contentLength int64, expiry time.Duration) (string, error)
	GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	HeadObject(ctx context.Context, key string) (int64, string, error)
	DeleteObject(ctx context.Context, key string) error
}

type UploadHandler struct {
	store    ObjectStore
	maxBytes int64
	now      func() time.Time
}

func NewUploadHandler(store ObjectStore, maxBytes int64) *UploadHandler {
	return &UploadHandler{store: store, maxBytes: maxBytes, now: time.Now}
}

type uploadRequest struct {
	Purpose     Purpose `json:"purpose" validate:"required,oneof=recipe-cover recipe-video post-media license"`
	ContentType string  `json:"contentType" validate:"required"`
	Size        int64   `json:"size" validate:"gte=1"`
}

// uploadResponse carries the headers the browser must send with its PUT;
// they are part of the presigned signature.
type uploadResponse struct {
	Key       string            `json:"key"`
	UploadURL string            `json:"uploadUrl"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

type confirmRequest struct {
	Key string `json:"key" validate:"required"`
}

type confirmResponse struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	URL         string `json:"url"`
}

func typeAllowed(p Purpose, contentType string) bool {
	for _, t := range allowedTypes[p] {
		if t == contentType {
			return true
		}
	}
	return false
}

// CacheControl is stored with each object. Keys are never reused, so public
// media can be cached forever; license documents stay private.
func CacheControl(p Purpose) string {
	if p == PurposeLicense {
		return "private, no-store"
	}
	return "public, max-age=31536000, immutable"
}

// ObjectKey builds a fresh key for an upload.
func ObjectKey(p Purpose, contentType string, now time.Time) string {
	return fmt.Sprintf("%s/%s/%s%s", p, now.UTC().Format("2006/01"), uuid.NewString(), extensions[contentType])
}

// Create presigns a PUT for a new media object.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := httputil.DecodeJSON(r, 4096, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	if !typeAllowed(req.Purpose, req.ContentType) {
		httputil.WriteError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("%s uploads do not accept %s", req.Purpose, req.ContentType))
		return
	}
	if h.maxBytes > 0 && req.Size > h.maxBytes {
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file must be at most %d bytes", h.maxBytes))
		return
	}

	now := h.now()
	key := ObjectKey(req.Purpose, req.ContentType, now)
	cacheControl := CacheControl(req.Purpose)
	url, err := h.store.GenerateUploadURL(r.Context(), key, req.ContentType, cacheControl, req.Size, uploadURLExpiry)
	if err != nil {
		slog.Error("uploads: presign failed", "purpose", req.Purpose, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not prepare upload")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, uploadResponse{
		Key:       key,
		UploadURL: url,
		Headers:   map[string]string{"Content-Type": req.ContentType, "Cache-Control": cacheControl},
		ExpiresAt: now.Add(uploadURLExpiry),
	})
}

// Confirm checks an uploaded object before the client references it in a
// post or recipe. Objects that break the limits are deleted.
func (h *UploadHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httputil.DecodeJSON(r, 4096, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}
	m := keyPattern.FindStringSubmatch(req.Key)
	if m == nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid upload key")
		return
	}

	size, contentType, err := h.store.HeadObject(r.Context(), req.Key)
	if err != nil {
		httputil.WriteError(w, http.StatusNotFound, "upload not found")
		return
	}
	if !typeAllowed(Purpose(m[1]), contentType) || (h.maxBytes > 0 && size > h.maxBytes) {
		if err := h.store.DeleteObject(r.Context(), req.Key); err != nil {
			slog.Error("uploads: delete rejected object", "key", req.Key, "error", err)
		}
		httputil.WriteError(w, http.StatusUnprocessableEntity, "uploaded file was rejected")
		return
	}

	url, err := h.store.GenerateDownloadURL(r.Context(), req.Key, downloadURLExpiry)
	if err != nil {
		slog.Error("uploads: presign download failed", "key", req.Key, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not confirm upload")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, confirmResponse{Key: req.Key, Size: size, ContentType: contentType, URL: url})
}
