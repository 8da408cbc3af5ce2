package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/repositories"
	"github.com/desertthunder/songbook/internal/shared"
	"github.com/desertthunder/songbook/internal/tasks"
)

// Syncer is the part of [tasks.Coordinator] the API drives.
type Syncer interface {
	Trigger(ctx context.Context, reason tasks.Reason) bool
	PerformSync(ctx context.Context) tasks.PassResult
	Status() tasks.Status
}

// API serves cached collections and sync state as JSON.
type API struct {
	store  *repositories.OfflineStore
	syncer Syncer
	logger *log.Logger
}

// NewAPI builds the read API. A nil syncer disables the sync routes' write side.
func NewAPI(store *repositories.OfflineStore, syncer Syncer, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &API{store: store, syncer: syncer, logger: logger}
}

// Register mounts every API route on r.
func (a *API) Register(r *BasicRouter) {
	r.HandleFunc(http.MethodGet, "/api/collections/{name}", a.listCollection)
	r.HandleFunc(http.MethodGet, "/api/collections/{name}/{key}", a.getRecord)
	r.HandleFunc(http.MethodGet, "/api/sync/status", a.syncStatus)
	r.HandleFunc(http.MethodPost, "/api/sync", a.triggerSync)
}

// NewHandler returns a router with recovery and logging middleware and every route mounted.
func NewHandler(store *repositories.OfflineStore, syncer Syncer, logger *log.Logger) http.Handler {
	api := NewAPI(store, syncer, logger)

	r := NewBasicRouter()
	r.Use(Recovery(api.logger), Logging(api.logger))
	r.Handler(HealthHandler{})
	api.Register(r)
	return r
}

func (a *API) listCollection(w http.ResponseWriter, r *http.Request) {
	a.load(w, r, "")
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request) {
	a.load(w, r, r.PathValue("key"))
}

func (a *API) load(w http.ResponseWriter, r *http.Request, key string) {
	c, err := models.ParseCollection(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	payload, err := a.store.Load(r.Context(), c, key)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound) && key == "":
		// never-written preferences blob
		payload = models.Many([]models.Record{})
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrUnknownCollection):
		writeError(w, http.StatusNotFound, err.Error())
		return
	default:
		a.logger.Error("load failed", "collection", c, "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

type statusResponse struct {
	Online        bool            `json:"online"`
	Backend       string          `json:"backend"`
	LastSync      *time.Time      `json:"last_sync"`
	LastSongsSync *time.Time      `json:"last_songs_sync"`
	Active        bool            `json:"active"`
	Running       bool            `json:"running"`
	Pending       bool            `json:"pending"`
	LastResult    *tasks.PassView `json:"last_result"`
}

func (a *API) syncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{
		Online:  a.store.IsOnline(ctx),
		Backend: string(a.store.Repository().Kind()),
	}

	if t, ok := a.store.LastSongsSync(ctx); ok {
		resp.LastSongsSync = &t
	}

	if a.syncer != nil {
		st := a.syncer.Status()
		resp.Active, resp.Running, resp.Pending = st.Active, st.Running, st.Pending
		if !st.LastSync.IsZero() {
			resp.LastSync = &st.LastSync
		}
		if st.LastResult != nil {
			v := st.LastResult.View()
			resp.LastResult = &v
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// triggerSync queues a background pass, or with ?wait=true runs one and returns its result.
func (a *API) triggerSync(w http.ResponseWriter, r *http.Request) {
	if a.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not running")
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		result := a.syncer.PerformSync(r.Context())
		status := http.StatusOK
		if errors.Is(result.Err, shared.ErrCoordinatorStopped) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, result.View())
		return
	}

	// The request context ends with the response; the pass runs on the coordinator's own context.
	if !a.syncer.Trigger(context.WithoutCancel(r.Context()), tasks.ReasonManual) {
		writeError(w, http.StatusServiceUnavailable, "sync trigger rejected")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HealthHandler answers liveness checks.
type HealthHandler struct{}

func (HealthHandler) Routes() []string { return []string{"GET /healthz"} }

func (HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
