package auth

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"freelatracker/internal/observability"
)

const (
	maxJSONBodyBytes = 1 << 20
	maxFormBodyBytes = 64 << 10
)

type Handler struct {
	service  *Service
	logger   *observability.Logger
	clientID func(*http.Request) string
}

// NewHandler builds the auth endpoints. clientID picks the identifier the
// login throttle is keyed on; nil means the connection's remote host.
func NewHandler(service *Service, logger *observability.Logger, clientID func(*http.Request) string) *Handler {
	if clientID == nil {
		clientID = observability.RemoteHost
	}
	return &Handler{service: service, logger: logger, clientID: clientID}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	user, err := h.service.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			writeError(w, http.StatusBadRequest, "email already registered")
		case errors.Is(err, ErrInvalidEmail):
			writeError(w, http.StatusUnprocessableEntity, "email format is invalid")
		case errors.Is(err, ErrWeakPassword):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			observability.CaptureError(h.logger, "register_failed", err, nil)
			writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	writeJSON(w, http.StatusOK, user.View())
}

// Login accepts the OAuth2 password form: username carries the email.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if strings.TrimSpace(username) == "" || password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	token, err := h.service.Login(r.Context(), username, password, h.clientID(r))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		var limited ErrRateLimited
		if errors.As(err, &limited) {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "too many login attempts, try again in a few minutes")
			return
		}

		observability.CaptureError(h.logger, "login_failed_internal", err, nil)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, token)
}

// Logout revokes the presented bearer token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if !ok {
		writeUnauthenticated(w)
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, ErrUnauthenticated):
			writeUnauthenticated(w)
		case errors.Is(err, ErrMalformedToken):
			writeError(w, http.StatusBadRequest, "token lacks identifier or expiration")
		default:
			observability.CaptureError(h.logger, "logout_failed", err, nil)
			writeError(w, http.StatusInternalServerError, "failed to logout")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me must be mounted behind Middleware.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeUnauthenticated(w)
		return
	}

	writeJSON(w, http.StatusOK, user.View())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
