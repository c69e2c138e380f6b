package proposal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"freelatracker/internal/auth"
	"freelatracker/internal/observability"
)

var allowedHost = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	store  Store
	logger *observability.Logger
}

func NewHandler(store Store, logger *observability.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Routes mounts the proposal endpoints; the caller wraps them with
// auth.Middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/stats/basic", h.Stats)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	proposals, err := h.store.List(r.Context(), user.ID)
	if err != nil {
		h.fail(w, "list proposals", err)
		return
	}

	writeJSON(w, http.StatusOK, proposals)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := proposalID(w, r)
	if !ok {
		return
	}

	p, err := h.store.Get(r.Context(), user.ID, id)
	if err != nil {
		h.fail(w, "get proposal", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var input ProposalInput
	if !decodeBody(w, r, &input) {
		return
	}
	input, msg := normalizeInput(input)
	if msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	p, err := h.store.Create(r.Context(), user.ID, input)
	if err != nil {
		h.fail(w, "create proposal", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := proposalID(w, r)
	if !ok {
		return
	}

	var patch ProposalPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	existing, err := h.store.Get(r.Context(), user.ID, id)
	if err != nil {
		h.fail(w, "get proposal", err)
		return
	}

	input, msg := normalizeInput(patch.Apply(existing.Input()))
	if msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	p, err := h.store.Update(r.Context(), user.ID, id, input)
	if err != nil {
		h.fail(w, "update proposal", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := proposalID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), user.ID, id); err != nil {
		h.fail(w, "delete proposal", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	stats, err := h.store.Stats(r.Context(), user.ID)
	if err != nil {
		h.fail(w, "proposal stats", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "proposal not found")
		return
	}

	observability.CaptureError(h.logger, "proposal_store_failed", err, map[string]any{"op": op})
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

func currentUser(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
	}
	return user, ok
}

func proposalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "invalid proposal id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

// normalizeInput trims fields, fills defaults and returns a message for the
// first rule the input breaks.
func normalizeInput(input ProposalInput) (ProposalInput, string) {
	input.ClientName = strings.TrimSpace(input.ClientName)
	input.Platform = strings.TrimSpace(input.Platform)
	input.ProjectTitle = strings.TrimSpace(input.ProjectTitle)
	input.Currency = strings.TrimSpace(input.Currency)
	input.Status = strings.TrimSpace(input.Status)
	input.ProjectLink = trimOptional(input.ProjectLink)
	input.Notes = trimOptional(input.Notes)

	if input.Currency == "" {
		input.Currency = "USD"
	}
	if input.Status == "" {
		input.Status = StatusSent
	}

	switch {
	case !lengthBetween(input.ClientName, 1, 120):
		return input, "client_name must be between 1 and 120 characters"
	case !lengthBetween(input.Platform, 1, 80):
		return input, "platform must be between 1 and 80 characters"
	case !lengthBetween(input.ProjectTitle, 1, 180):
		return input, "project_title must be between 1 and 180 characters"
	case !lengthBetween(input.Currency, 1, 10):
		return input, "currency must be between 1 and 10 characters"
	case input.Amount < 0:
		return input, "amount must be >= 0"
	case input.Notes != nil && !lengthBetween(*input.Notes, 0, 500):
		return input, "notes must be at most 500 characters"
	}
	if _, ok := validStatuses[input.Status]; !ok {
		return input, "status is invalid"
	}
	if input.ProjectLink != nil && !validLink(*input.ProjectLink) {
		return input, "project_link must be a valid http or https link"
	}

	return input, ""
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func lengthBetween(value string, lo, hi int) bool {
	n := utf8.RuneCountInString(value)
	return utf8.ValidString(value) && n >= lo && n <= hi
}

func validLink(raw string) bool {
	if len(raw) > 500 {
		return false
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.User == nil && allowedHost.MatchString(parsed.Hostname())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
