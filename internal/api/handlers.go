// Package api exposes HTTP handlers over the activity store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/persistence"
	"example.com/activitysync/internal/query"
	"example.com/activitysync/internal/synchronizer"
)

const (
	maxRecordBytes   = 10 << 20
	maxSnapshotBytes = 64 << 20
	defaultPageSize  = 20
	maxPageSize      = 100
)

// Store is the subset of persistence.Orchestrator the handlers use.
type Store interface {
	Save(ctx context.Context, record domain.ActivityRecord, origin domain.Origin, opts persistence.SaveOptions) bool
	Update(ctx context.Context, id string, partial map[string]any) bool
	LoadStored(ctx context.Context, id string) *domain.StoredRecord
	Remove(ctx context.Context, id string) bool
	Search(ctx context.Context, filters domain.SearchFilters) []domain.StoredRecord
	SaveConstructed(ctx context.Context, id, activityType string, payload map[string]any, opts persistence.SaveOptions) bool
	LoadConstructed(ctx context.Context, id, activityType string) map[string]any
	ListConstructed(ctx context.Context) map[string]domain.ConstructedEntry
	ExportAll(ctx context.Context) ([]byte, bool)
	ImportAll(ctx context.Context, data []byte) persistence.ImportResult
	FindByCode(ctx context.Context, code string) *domain.ActivityRecord
	ResyncShared(ctx context.Context, id, code string) *domain.ActivityRecord
	Synchronizer() *synchronizer.Synchronizer
}

// Handler coordinates HTTP requests with the store.
type Handler struct {
	store Store
	log   *logger.Logger
}

// NewHandler builds a Handler.
func NewHandler(store Store, log *logger.Logger) *Handler {
	return &Handler{store: store, log: logger.OrNop(log)}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/constructed", h.constructedIndex)
	mux.HandleFunc("/v1/constructed/", h.constructedByID)
	mux.HandleFunc("/v1/shared/", h.sharedByCode)
	mux.HandleFunc("/v1/export", h.export)
	mux.HandleFunc("/v1/import", h.importSnapshot)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getActivity(w, r, id)
	case http.MethodPatch:
		h.updateActivity(w, r, id)
	case http.MethodDelete:
		h.deleteActivity(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	origin, err := originParam(r, domain.OriginLocal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	raw, err := decodeObject(w, r, maxRecordBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if synchronizer.IDOf(raw) == "" {
		raw["id"] = uuid.NewString()
	}

	sync := h.store.Synchronizer()
	record := sync.Synchronize(raw)
	if v := sync.Validate(record); !v.Valid {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", strings.Join(v.Errors, "; "))
		return
	}

	if !h.store.Save(r.Context(), record, origin, saveOptions(r)) {
		writeError(w, http.StatusInternalServerError, "storage_error", "activity could not be stored")
		return
	}
	stored := h.store.LoadStored(r.Context(), record.ID)
	if stored == nil {
		writeError(w, http.StatusInternalServerError, "storage_error", "stored activity could not be read back")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	stored := h.store.LoadStored(r.Context(), id)
	if stored == nil {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request, id string) {
	partial, err := decodeObject(w, r, maxRecordBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if h.store.LoadStored(r.Context(), id) == nil {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}
	if !h.store.Update(r.Context(), id, partial) {
		writeError(w, http.StatusInternalServerError, "storage_error", "activity could not be updated")
		return
	}
	h.getActivity(w, r, id)
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request, id string) {
	if !h.store.Remove(r.Context(), id) {
		writeError(w, http.StatusInternalServerError, "storage_error", "activity could not be removed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sharedByCode resolves share-link codes. GET looks the activity up; POST
// re-synchronizes it and stores it as shared. ?id= names the activity when it
// differs from the code.
func (h *Handler) sharedByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/v1/shared/")
	if strings.TrimSpace(code) == "" || strings.Contains(code, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing share code")
		return
	}

	var record *domain.ActivityRecord
	switch r.Method {
	case http.MethodGet:
		record = h.store.FindByCode(r.Context(), code)
	case http.MethodPost:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			id = code
		}
		record = h.store.ResyncShared(r.Context(), id, code)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "not_found", "no activity for code")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := domain.SearchFilters{Type: strings.TrimSpace(q.Get("type"))}

	if raw := q.Get("origin"); raw != "" {
		origin, err := domain.ParseOrigin(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		filters.Origin = origin
	}
	for param, dst := range map[string]*time.Time{"from": &filters.From, "to": &filters.To} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid "+param+" timestamp")
			return
		}
		*dst = parsed
	}

	if raw := q.Get("where"); raw != "" {
		predicate, err := query.Compile(raw, h.log)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		filters.Match = predicate.Match
	}

	limit := defaultPageSize
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}

	cursor, err := persistence.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	matches := h.store.Search(r.Context(), filters)
	items := make([]domain.StoredRecord, 0, limit)
	var next *domain.Cursor
	for _, stored := range matches {
		if !persistence.After(cursor, stored.Metadata.UpdatedAt, stored.Record.ID) {
			continue
		}
		if len(items) == limit {
			last := items[len(items)-1]
			next = &domain.Cursor{UpdatedAt: last.Metadata.UpdatedAt, ID: last.Record.ID}
			break
		}
		items = append(items, stored)
	}

	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) constructedIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, h.store.ListConstructed(r.Context()))
}

func (h *Handler) constructedByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/constructed/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}
	activityType := strings.TrimSpace(r.URL.Query().Get("type"))

	switch r.Method {
	case http.MethodPut:
		payload, err := decodeObject(w, r, maxRecordBytes)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if !h.store.SaveConstructed(r.Context(), id, activityType, payload, saveOptions(r)) {
			writeError(w, http.StatusInternalServerError, "storage_error", "constructed content could not be stored")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"activityId": id, "status": "accepted"})
	case http.MethodGet:
		content := h.store.LoadConstructed(r.Context(), id, activityType)
		if content == nil {
			writeError(w, http.StatusNotFound, "not_found", "constructed content not found")
			return
		}
		writeJSON(w, http.StatusOK, content)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	data, ok := h.store.ExportAll(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "storage_error", "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="activities.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to read body")
		return
	}
	result := h.store.ImportAll(r.Context(), data)
	status := http.StatusOK
	if result.Records == 0 && result.Constructed == 0 && len(result.Errors) > 0 {
		status = http.StatusBadRequest
	}
	h.log.Info("api: snapshot imported", "records", result.Records, "constructed", result.Constructed, "errors", len(result.Errors))
	writeJSON(w, status, result)
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []domain.StoredRecord `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func originParam(r *http.Request, fallback domain.Origin) (domain.Origin, error) {
	raw := r.URL.Query().Get("origin")
	if raw == "" {
		return fallback, nil
	}
	return domain.ParseOrigin(raw)
}

// saveOptions reads generation provenance from request headers.
func saveOptions(r *http.Request) persistence.SaveOptions {
	opts := persistence.SaveOptions{
		PipelineVersion: r.Header.Get("X-Pipeline-Version"),
		SessionID:       r.Header.Get("X-Session-Id"),
		Model:           r.Header.Get("X-Model"),
	}
	if raw := r.Header.Get("X-Duration-Ms"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			opts.DurationMS = parsed
		}
	}
	return opts
}

func decodeObject(w http.ResponseWriter, r *http.Request, limit int64) (map[string]any, error) {
	var out map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return out, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
