package registration

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dishly/dishly/internal/auth"
	"github.com/dishly/dishly/internal/backend"
	"github.com/dishly/dishly/internal/httputil"
	"github.com/dishly/dishly/internal/validate"
)

const (
	DraftCookie  = "dishly_reg"
	maxBodyBytes = 64 * 1024
)

// Backend submits a completed registration.
type Backend interface {
	RegisterRestaurant(ctx context.Context, token string, reg backend.RestaurantRegistration) (string, error)
}

type Handler struct {
	backend Backend
	store   *Store
	secure  bool
}

func NewHandler(b Backend, store *Store, secureCookies bool) *Handler {
	return &Handler{backend: b, store: store, secure: secureCookies}
}

type restaurantRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	CuisineType string `json:"cuisineType" validate:"required,max=50"`
	Description string `json:"description" validate:"max=2000"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Phone       string `json:"phone" validate:"required,e164"`
	Website     string `json:"website" validate:"omitempty,url,max=300"`
}

type branchRequest struct {
	Name         string   `json:"name" validate:"required,max=120"`
	Address      string   `json:"address" validate:"required,max=300"`
	City         string   `json:"city" validate:"required,max=100"`
	Phone        string   `json:"phone" validate:"omitempty,e164"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	OpeningHours string   `json:"openingHours" validate:"max=200"`
}

type branchesRequest struct {
	Branches []branchRequest `json:"branches" validate:"required,min=1,max=10,dive"`
}

type documentsRequest struct {
	LicenseNumber string `json:"licenseNumber" validate:"required,max=64"`
	TaxID         string `json:"taxId" validate:"required,max=64"`
	LicenseKey    string `json:"licenseKey" validate:"omitempty,max=512"`
}

type draftResponse struct {
	ID         string              `json:"id"`
	NextStep   Step                `json:"nextStep"`
	Restaurant *backend.Restaurant `json:"restaurant,omitempty"`
	Branches   []backend.Branch    `json:"branches"`
	Documents  *backend.Documents  `json:"documents,omitempty"`
	ExpiresAt  time.Time           `json:"expiresAt"`
}

type submitResponse struct {
	RestaurantID string `json:"restaurantId"`
}

func (h *Handler) response(d Draft) draftResponse {
	branches := d.Branches
	if branches == nil {
		branches = []backend.Branch{}
	}
	return draftResponse{
		ID:         d.ID,
		NextStep:   d.NextStep(),
		Restaurant: d.Restaurant,
		Branches:   branches,
		Documents:  d.Documents,
		ExpiresAt:  d.UpdatedAt.Add(h.store.TTL()),
	}
}

func (h *Handler) setCookie(w http.ResponseWriter, id string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     DraftCookie,
		Value:    id,
		Path:     "/api/registration",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func draftID(r *http.Request) string {
	c, err := r.Cookie(DraftCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// Start begins a new draft, replacing any draft the browser already holds.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if old := draftID(r); old != "" {
		h.store.Delete(old)
	}
	d := h.store.Create()
	h.setCookie(w, d.ID, int(h.store.TTL()/time.Second))
	httputil.WriteJSON(w, http.StatusCreated, h.response(d))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	d, ok := h.store.Get(draftID(r))
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "no registration in progress")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.response(d))
}

func (h *Handler) PutRestaurant(w http.ResponseWriter, r *http.Request) {
	var req restaurantRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	h.update(w, r, func(d *Draft) error {
		d.Restaurant = &backend.Restaurant{
			Name:        req.Name,
			CuisineType: req.CuisineType,
			Description: strings.TrimSpace(req.Description),
			Email:       req.Email,
			Phone:       req.Phone,
			Website:     req.Website,
		}
		return nil
	})
}

func (h *Handler) PutBranches(w http.ResponseWriter, r *http.Request) {
	var req branchesRequest
	if !decode(w, r, &req) {
		return
	}
	for i := range req.Branches {
		req.Branches[i].Name = strings.TrimSpace(req.Branches[i].Name)
		req.Branches[i].Address = strings.TrimSpace(req.Branches[i].Address)
		req.Branches[i].City = strings.TrimSpace(req.Branches[i].City)
	}
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	branches := make([]backend.Branch, len(req.Branches))
	for i, b := range req.Branches {
		branches[i] = backend.Branch{
			Name:         b.Name,
			Address:      b.Address,
			City:         b.City,
			Phone:        b.Phone,
			Latitude:     b.Latitude,
			Longitude:    b.Longitude,
			OpeningHours: b.OpeningHours,
		}
	}
	h.update(w, r, func(d *Draft) error {
		if err := d.Require(StepBranches); err != nil {
			return err
		}
		d.Branches = branches
		return nil
	})
}

func (h *Handler) PutDocuments(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if !decode(w, r, &req) {
		return
	}
	req.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	req.TaxID = strings.TrimSpace(req.TaxID)
	if msg := validate.Struct(req); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	h.update(w, r, func(d *Draft) error {
		if err := d.Require(StepDocuments); err != nil {
			return err
		}
		d.Documents = &backend.Documents{
			LicenseNumber: req.LicenseNumber,
			TaxID:         req.TaxID,
			LicenseKey:    req.LicenseKey,
		}
		return nil
	})
}

// Submit forwards a complete draft. The draft is kept when the backend
// rejects it so the user can correct and retry.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id := draftID(r)
	d, ok := h.store.Get(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "no registration in progress")
		return
	}
	if err := d.Require(StepSubmit); err != nil {
		httputil.WriteError(w, http.StatusConflict, err.Error())
		return
	}

	restaurantID, err := h.backend.RegisterRestaurant(r.Context(), auth.TokenFromContext(r.Context()), d.Registration())
	if err != nil {
		httputil.WriteBackendError(w, "register_restaurant", err)
		return
	}

	h.store.Delete(id)
	h.setCookie(w, "", -1)
	slog.Info("registration: restaurant submitted", "draft_id", id, "restaurant_id", restaurantID, "branches", len(d.Branches))
	httputil.WriteJSON(w, http.StatusCreated, submitResponse{RestaurantID: restaurantID})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if id := draftID(r); id != "" {
		h.store.Delete(id)
	}
	h.setCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, fn func(d *Draft) error) {
	d, err := h.store.Update(draftID(r), fn)
	var stepErr *StepError
	switch {
	case errors.Is(err, ErrDraftNotFound):
		httputil.WriteError(w, http.StatusNotFound, "no registration in progress")
	case errors.As(err, &stepErr):
		httputil.WriteError(w, http.StatusConflict, stepErr.Error())
	case err != nil:
		slog.Error("registration: update draft", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not update registration")
	default:
		h.setCookie(w, d.ID, int(h.store.TTL()/time.Second))
		httputil.WriteJSON(w, http.StatusOK, h.response(d))
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.DecodeJSON(r, maxBodyBytes, v); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
