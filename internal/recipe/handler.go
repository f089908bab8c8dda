package recipe

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/dishly/dishly/internal/auth"
	"github.com/dishly/dishly/internal/backend"
	"github.com/dishly/dishly/internal/feed"
	"github.com/dishly/dishly/internal/httputil"
	"github.com/dishly/dishly/internal/interaction"
	"github.com/dishly/dishly/internal/validate"
)

const maxBodyBytes = 256 * 1024

// Backend is the slice of the platform API behind the recipe catalog.
type Backend interface {
	Recipes(ctx context.Context, token string, page int, query string) (json.RawMessage, error)
	Recipe(ctx context.Context, token, recipeID string) (json.RawMessage, error)
	CreateRecipe(ctx context.Context, token string, recipe backend.NewRecipe) (json.RawMessage, error)
	ToggleRecipeLike(ctx context.Context, token, recipeID string) (backend.LikeResult, error)
	ToggleRecipeSave(ctx context.Context, token, recipeID string) (backend.SaveResult, error)
	ToggleRecipeHide(ctx context.Context, token, recipeID string) (backend.HideResult, error)
	ShareLinks(ctx context.Context, token, recipeID string) (map[string]string, error)
	Reviews(ctx context.Context, token, recipeID string) ([]backend.Review, error)
	AddReview(ctx context.Context, token, recipeID string, review backend.NewReview) (*backend.Review, error)
}

type Handler struct {
	backend Backend
}

func NewHandler(b Backend) *Handler {
	return &Handler{backend: b}
}

type createRecipeRequest struct {
	Title        string   `json:"title" validate:"required,max=150"`
	Description  string   `json:"description" validate:"max=2000"`
	Ingredients  []string `json:"ingredients" validate:"required,min=1,max=100,dive,required,max=200"`
	Steps        []string `json:"steps" validate:"required,min=1,max=100,dive,required,max=1000"`
	PrepMinutes  int      `json:"prepMinutes" validate:"gte=0,lte=1440"`
	CookMinutes  int      `json:"cookMinutes" validate:"gte=0,lte=1440"`
	Servings     int      `json:"servings" validate:"gte=0,lte=100"`
	CoverKey     string   `json:"coverKey" validate:"omitempty,max=512"`
	VideoKey     string   `json:"videoKey" validate:"omitempty,max=512"`
	CuisineTypes []string `json:"cuisineTypes" validate:"max=10,dive,required,max=50"`
}

type addReviewRequest struct {
	Comment string `json:"comment" validate:"required,max=1000"`
	Rating  *int   `json:"rating" validate:"omitempty,gte=1,lte=5"`
}

type reviewsResponse struct {
	Reviews []backend.Review `json:"reviews"`
	Summary RatingSummary    `json:"summary"`
}

type shareLinksResponse struct {
	Links map[string]string `json:"links"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, ok := feed.ParsePage(r)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if len(query) > validate.MaxSearchQueryLength {
		httputil.WriteError(w, http.StatusBadRequest, "search query is too long")
		return
	}

	data, err := h.backend.Recipes(r.Context(), auth.TokenFromContext(r.Context()), page, query)
	if err != nil {
		httputil.WriteBackendError(w, "list_recipes", err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, data)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	data, err := h.backend.Recipe(r.Context(), auth.TokenFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteBackendError(w, "get_recipe", err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, data)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRecipeRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Ingredients = trimAll(req.Ingredients)
	req.Steps = trimAll(req.Steps)
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	data, err := h.backend.CreateRecipe(r.Context(), auth.TokenFromContext(r.Context()), backend.NewRecipe{
		Title:        req.Title,
		Description:  req.Description,
		Ingredients:  req.Ingredients,
		Steps:        req.Steps,
		PrepMinutes:  req.PrepMinutes,
		CookMinutes:  req.CookMinutes,
		Servings:     req.Servings,
		CoverKey:     req.CoverKey,
		VideoKey:     req.VideoKey,
		CuisineTypes: req.CuisineTypes,
	})
	if err != nil {
		httputil.WriteBackendError(w, "create_recipe", err)
		return
	}
	httputil.WriteRaw(w, http.StatusCreated, data)
}

func trimAll(items []string) []string {
	for i, s := range items {
		items[i] = strings.TrimSpace(s)
	}
	return items
}

// Toggle serves POST /api/recipes/{id}/{action} for like, save and hide.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := auth.TokenFromContext(ctx)
	recipeID := chi.URLParam(r, "id")
	if recipeID == "" {
		httputil.WriteBackendError(w, "toggle_recipe", interaction.ErrMissingIdentifier)
		return
	}

	var (
		result any
		err    error
	)
	switch interaction.Kind(chi.URLParam(r, "action")) {
	case interaction.Like:
		result, err = h.backend.ToggleRecipeLike(ctx, token, recipeID)
	case interaction.Save:
		result, err = h.backend.ToggleRecipeSave(ctx, token, recipeID)
	case interaction.Hide:
		result, err = h.backend.ToggleRecipeHide(ctx, token, recipeID)
	default:
		httputil.WriteError(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		httputil.WriteBackendError(w, "toggle_recipe_"+chi.URLParam(r, "action"), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) ShareLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.backend.ShareLinks(r.Context(), auth.TokenFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteBackendError(w, "share_links", err)
		return
	}
	if links == nil {
		links = map[string]string{}
	}
	httputil.WriteJSON(w, http.StatusOK, shareLinksResponse{Links: links})
}

func (h *Handler) Reviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.backend.Reviews(r.Context(), auth.TokenFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteBackendError(w, "list_reviews", err)
		return
	}
	if reviews == nil {
		reviews = []backend.Review{}
	}
	httputil.WriteJSON(w, http.StatusOK, reviewsResponse{Reviews: reviews, Summary: Summarize(reviews)})
}

func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	var req addReviewRequest
	if err := httputil.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Comment = strings.TrimSpace(req.Comment)
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	review, err := h.backend.AddReview(r.Context(), auth.TokenFromContext(r.Context()), chi.URLParam(r, "id"), backend.NewReview{
		Comment: req.Comment,
		Rating:  req.Rating,
	})
	if err != nil {
		httputil.WriteBackendError(w, "add_review", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, review)
}
