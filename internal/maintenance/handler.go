package maintenance

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"freelatracker/internal/auth"
	"freelatracker/internal/observability"
)

// Sweeper drops idle entries from an in-memory limiter.
type Sweeper interface {
	Sweep() int
}

type CleanupResult struct {
	DeletedRevokedTokens int64 `json:"deleted_revoked_tokens"`
	SweptThrottleKeys    int   `json:"swept_throttle_keys"`
}

type CleanupHandler struct {
	revocations auth.RevocationStore
	sweepers    []Sweeper
	logger      *observability.Logger
	cronSecret  string
	retention   time.Duration
	batchSize   int
	now         func() time.Time
}

func NewCleanupHandler(
	revocations auth.RevocationStore,
	logger *observability.Logger,
	cronSecret string,
	retention time.Duration,
	batchSize int,
	sweepers ...Sweeper,
) *CleanupHandler {
	if retention < 0 {
		retention = 0
	}

	return &CleanupHandler{
		revocations: revocations,
		sweepers:    sweepers,
		logger:      logger,
		cronSecret:  strings.TrimSpace(cronSecret),
		retention:   retention,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// Handle prunes revocation records that expired more than the retention
// period ago, plus idle limiter entries. It is hidden (404) unless
// a cron secret is configured.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token, ok := auth.BearerToken(r)
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cutoff := h.now().UTC().Add(-h.retention)
	deleted, err := h.revocations.PruneExpired(r.Context(), cutoff, h.batchSize)
	if err != nil {
		observability.CaptureError(h.logger, "auth_cleanup_failed", err, nil)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	result := CleanupResult{DeletedRevokedTokens: deleted}
	for _, sweeper := range h.sweepers {
		result.SweptThrottleKeys += sweeper.Sweep()
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_revoked_tokens": result.DeletedRevokedTokens,
		"swept_throttle_keys":    result.SweptThrottleKeys,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
