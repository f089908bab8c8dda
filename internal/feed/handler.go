package feed

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/dishly/dishly/internal/auth"
	"github.com/dishly/dishly/internal/backend"
	"github.com/dishly/dishly/internal/httputil"
	"github.com/dishly/dishly/internal/interaction"
	"github.com/dishly/dishly/internal/validate"
)

const maxBodyBytes = 64 * 1024

// Backend is the slice of the platform API behind the social feed.
type Backend interface {
	Posts(ctx context.Context, token string, page int) (json.RawMessage, error)
	CreatePost(ctx context.Context, token string, post backend.NewPost) (json.RawMessage, error)
	TogglePostLike(ctx context.Context, token, postID string) (backend.LikeResult, error)
	Comments(ctx context.Context, token, postID string) (json.RawMessage, error)
	AddComment(ctx context.Context, token, postID string, comment backend.NewComment) (json.RawMessage, error)
	ToggleFollow(ctx context.Context, token, userID string) (backend.FollowResult, error)
}

type Handler struct {
	backend Backend
}

func NewHandler(b Backend) *Handler {
	return &Handler{backend: b}
}

type createPostRequest struct {
	Caption  string `json:"caption" validate:"required,max=2200"`
	MediaKey string `json:"mediaKey" validate:"omitempty,max=512"`
}

type addCommentRequest struct {
	Body string `json:"body" validate:"required,max=1000"`
}

// ParsePage reads the optional page query parameter. Missing means the first
// page.
func ParsePage(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 0, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, ok := ParsePage(r)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	data, err := h.backend.Posts(r.Context(), auth.TokenFromContext(r.Context()), page)
	if err != nil {
		httputil.WriteBackendError(w, "list_posts", err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, data)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Caption = strings.TrimSpace(req.Caption)
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	data, err := h.backend.CreatePost(r.Context(), auth.TokenFromContext(r.Context()), backend.NewPost{
		Caption:  req.Caption,
		MediaKey: req.MediaKey,
	})
	if err != nil {
		httputil.WriteBackendError(w, "create_post", err)
		return
	}
	httputil.WriteRaw(w, http.StatusCreated, data)
}

func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")
	if postID == "" {
		httputil.WriteBackendError(w, "toggle_post_like", interaction.ErrMissingIdentifier)
		return
	}
	result, err := h.backend.TogglePostLike(r.Context(), auth.TokenFromContext(r.Context()), postID)
	if err != nil {
		httputil.WriteBackendError(w, "toggle_post_like", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Comments(w http.ResponseWriter, r *http.Request) {
	data, err := h.backend.Comments(r.Context(), auth.TokenFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteBackendError(w, "list_comments", err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, data)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req addCommentRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	data, err := h.backend.AddComment(r.Context(), auth.TokenFromContext(r.Context()), chi.URLParam(r, "id"), backend.NewComment{Body: req.Body})
	if err != nil {
		httputil.WriteBackendError(w, "add_comment", err)
		return
	}
	httputil.WriteRaw(w, http.StatusCreated, data)
}

func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		httputil.WriteBackendError(w, "toggle_follow", interaction.ErrMissingIdentifier)
		return
	}
	result, err := h.backend.ToggleFollow(r.Context(), auth.TokenFromContext(r.Context()), userID)
	if err != nil {
		httputil.WriteBackendError(w, "toggle_follow", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
