package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/mapping"
	"github.com/opensource-finance/heron/internal/repository"
	"github.com/opensource-finance/heron/internal/session"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for API handlers.
type Handler struct {
	pool    *session.Pool
	checks  map[string]Pinger
	version string
}

// NewHandler creates a new API handler. Nil checks are skipped.
func NewHandler(pool *session.Pool, checks map[string]Pinger, version string) *Handler {
	live := make(map[string]Pinger, len(checks))
	for name, c := range checks {
		if c != nil {
			live[name] = c
		}
	}
	return &Handler{pool: pool, checks: live, version: version}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := make(map[string]string, len(h.checks))
	for name, c := range h.checks {
		components[name] = "up"
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			components[name] = "down"
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":      "true",
		"workspaces": h.pool.Workspaces(),
	})
}

func (h *Handler) session(r *http.Request) (*session.Session, error) {
	return h.pool.Get(GetWorkspace(r.Context()))
}

func useCache(r *http.Request) bool {
	return r.URL.Query().Get("refresh") != "true"
}

func pathID(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", domain.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON request body", domain.ErrInvalidArgument)
	}
	return nil
}

// ListRAID handles GET /raid.
func (h *Handler) ListRAID(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := s.RAID.List(r.Context(), useCache(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// GetRAID handles GET /raid/{raidId}.
func (h *Handler) GetRAID(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := s.RAID.Get(r.Context(), chi.URLParam(r, "raidId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// CreateRAID handles POST /raid.
func (h *Handler) CreateRAID(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var item mapping.RAIDItem
	if err := decode(r, &item); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.RAID.Create(r.Context(), item)
	writeOutcome(w, http.StatusCreated, out, err)
}

// UpdateRAID handles PUT /raid/{raidId}. The body replaces the item: text
// and yes/no fields left out are cleared, while empty numbers, dates,
// people and choices keep their stored values.
func (h *Handler) UpdateRAID(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var item mapping.RAIDItem
	if err := decode(r, &item); err != nil {
		writeError(w, err)
		return
	}
	item.RaidID = chi.URLParam(r, "raidId")
	out, err := s.RAID.Update(r.Context(), item)
	writeOutcome(w, http.StatusOK, out, err)
}

// DeleteRAID handles DELETE /raid/{raidId}.
func (h *Handler) DeleteRAID(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.RAID.Delete(r.Context(), chi.URLParam(r, "raidId"))
	writeOutcome(w, http.StatusOK, out, err)
}

// RAIDHistory handles GET /raid/{raidId}/history/{itemId}.
func (h *Handler) RAIDHistory(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "itemId")
	if err != nil {
		writeError(w, err)
		return
	}
	revisions, err := s.RAID.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": revisions, "count": len(revisions)})
}

func (h *Handler) rca(r *http.Request) (*repository.RCARepository, error) {
	s, err := h.session(r)
	if err != nil {
		return nil, err
	}
	return s.RCA, nil
}

func (h *Handler) knowledge(r *http.Request) (*repository.KnowledgeRepository, error) {
	s, err := h.session(r)
	if err != nil {
		return nil, err
	}
	return s.Knowledge(chi.URLParam(r, "kind"))
}

// ListRCA handles GET /rca.
func (h *Handler) ListRCA(w http.ResponseWriter, r *http.Request) { listItems(w, r, h.rca) }

// GetRCA handles GET /rca/{id}.
func (h *Handler) GetRCA(w http.ResponseWriter, r *http.Request) { getItem(w, r, h.rca) }

// CreateRCA handles POST /rca.
func (h *Handler) CreateRCA(w http.ResponseWriter, r *http.Request) { createItem(w, r, h.rca) }

// UpdateRCA handles PUT /rca/{id}. Like UpdateRAID it replaces the item.
func (h *Handler) UpdateRCA(w http.ResponseWriter, r *http.Request) {
	updateItem(w, r, h.rca, func(e *mapping.RCAItem, id int) { e.ID = id })
}

// DeleteRCA handles DELETE /rca/{id}.
func (h *Handler) DeleteRCA(w http.ResponseWriter, r *http.Request) { deleteItem(w, r, h.rca) }

// RCAHistory handles GET /rca/{id}/history.
func (h *Handler) RCAHistory(w http.ResponseWriter, r *http.Request) { itemHistory(w, r, h.rca) }

// ListKnowledge handles GET /knowledge/{kind}.
func (h *Handler) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	listItems(w, r, h.knowledge)
}

// GetKnowledge handles GET /knowledge/{kind}/{id}.
func (h *Handler) GetKnowledge(w http.ResponseWriter, r *http.Request) {
	getItem(w, r, h.knowledge)
}

// CreateKnowledge handles POST /knowledge/{kind}.
func (h *Handler) CreateKnowledge(w http.ResponseWriter, r *http.Request) {
	createItem(w, r, h.knowledge)
}

// UpdateKnowledge handles PUT /knowledge/{kind}/{id}. Like UpdateRAID it
// replaces the item.
func (h *Handler) UpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	updateItem(w, r, h.knowledge, func(e *mapping.KnowledgeItem, id int) { e.ID = id })
}

// DeleteKnowledge handles DELETE /knowledge/{kind}/{id}.
func (h *Handler) DeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	deleteItem(w, r, h.knowledge)
}

// KnowledgeHistory handles GET /knowledge/{kind}/{id}/history.
func (h *Handler) KnowledgeHistory(w http.ResponseWriter, r *http.Request) {
	itemHistory(w, r, h.knowledge)
}

func listItems[E any](w http.ResponseWriter, r *http.Request, resolve func(*http.Request) (*repository.Repository[E], error)) {
	repo, err := resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := repo.List(r.Context(), useCache(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func getItem[E any](w http.ResponseWriter, r *http.Request, resolve func(*http.Request) (*repository.Repository[E], error)) {
	repo, err := resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	item, err := repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func createItem[E any](w http.ResponseWriter, r *http.Request, resolve func(*http.Request) (*repository.Repository[E], error)) {
	repo, err := resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var item E
	if err := decode(r, &item); err != nil {
		writeError(w, err)
		return
	}
	out, err := repo.Create(r.Context(), item)
	writeOutcome(w, http.StatusCreated, out, err)
}

func updateItem[E any](w http.ResponseWriter, r *http.Request, resolve func(*http.Request) (*repository.Repository[E], error), setID func(*E, int)) {
	repo, err := resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var item E
	if err := decode(r, &item); err != nil {
		writeError(w, err)
		return
	}
	setID(&item, id)
	out, err := repo.Update(r.Context(), item)
	writeOutcome(w, http.StatusOK, out, err)
}

func deleteItem[E any](w http.ResponseWriter, r *http.Request, resolve func(*http.Request) (*repository.Repository[E], error)) {
	repo, err := resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := repo.Delete(r.Context(), id)
	writeOutcome(w, http.StatusOK, out, err)
}

func itemHistory[E any](w http.ResponseWriter, r *http.Request, resolve func(*http.Request) (*repository.Repository[E], error)) {
	repo, err := resolve(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	revisions, err := repo.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": revisions, "count": len(revisions)})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrContextRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRemoteOperation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeOutcome writes a repository write result. A failed outcome means
// the store rejected the write.
func writeOutcome[E any](w http.ResponseWriter, status int, out repository.Outcome[E], err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if !out.Success {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": out.Error})
		return
	}
	writeJSON(w, status, out)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
