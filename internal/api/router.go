package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cshealth/internal/domain"
	"cshealth/internal/lifecycle"
	"cshealth/internal/playbook"

	"github.com/gorilla/mux"
)

const maxUpdateBody = 64 << 10

// Backend serves account and alert queries plus lifecycle updates.
type Backend interface {
	Accounts(ctx context.Context) ([]domain.Account, error)
	Account(ctx context.Context, accountID string) (domain.Account, error)
	Alerts(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error)
	UpdateAlert(ctx context.Context, alertID string, update domain.AlertUpdate) (lifecycle.UpsertResult, error)
}

// Handler exposes JSON presentation endpoints.
// Params: backend, playbook catalog, and logger.
// Returns: mux-routed HTTP handler mounted under prefix.
type Handler struct {
	backend   Backend
	playbooks *playbook.Catalog
	logger    *slog.Logger
	router    *mux.Router
}

// NewHandler builds router for presentation endpoints.
// Params: path prefix (empty mounts at root), backend, playbook catalog, and logger.
// Returns: configured handler.
func NewHandler(prefix string, backend Backend, playbooks *playbook.Catalog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		backend:   backend,
		playbooks: playbooks,
		logger:    logger,
		router:    mux.NewRouter(),
	}

	root := h.router
	if prefix = strings.TrimRight(prefix, "/"); prefix != "" {
		root = h.router.PathPrefix(prefix).Subrouter()
	}
	root.Use(h.logRequests)

	accounts := root.PathPrefix("/accounts").Subrouter()
	accounts.HandleFunc("", h.handleListAccounts).Methods(http.MethodGet)
	accounts.HandleFunc("/{id}", h.handleGetAccount).Methods(http.MethodGet)
	accounts.HandleFunc("/{id}/alerts", h.handleAccountAlerts).Methods(http.MethodGet)

	alerts := root.PathPrefix("/alerts").Subrouter()
	alerts.HandleFunc("", h.handleListAlerts).Methods(http.MethodGet)
	alerts.HandleFunc("/{id}", h.handleUpdateAlert).Methods(http.MethodPatch)

	playbookRoutes := root.PathPrefix("/playbooks").Subrouter()
	playbookRoutes.HandleFunc("", h.handleListPlaybooks).Methods(http.MethodGet)
	playbookRoutes.HandleFunc("/{id}", h.handleGetPlaybook).Methods(http.MethodGet)
	return h
}

// ServeHTTP dispatches request to matched route.
func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	h.router.ServeHTTP(writer, request)
}

func (h *Handler) handleListAccounts(writer http.ResponseWriter, request *http.Request) {
	accounts, err := h.backend.Accounts(request.Context())
	if err != nil {
		h.writeBackendError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, accounts)
}

func (h *Handler) handleGetAccount(writer http.ResponseWriter, request *http.Request) {
	account, err := h.backend.Account(request.Context(), mux.Vars(request)["id"])
	if err != nil {
		h.writeBackendError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, account)
}

func (h *Handler) handleAccountAlerts(writer http.ResponseWriter, request *http.Request) {
	filter, err := alertFilter(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	filter.AccountID = mux.Vars(request)["id"]
	alerts, err := h.backend.Alerts(request.Context(), filter)
	if err != nil {
		h.writeBackendError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, alerts)
}

func (h *Handler) handleListAlerts(writer http.ResponseWriter, request *http.Request) {
	filter, err := alertFilter(request)
	if err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}
	alerts, err := h.backend.Alerts(request.Context(), filter)
	if err != nil {
		h.writeBackendError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, alerts)
}

func (h *Handler) handleUpdateAlert(writer http.ResponseWriter, request *http.Request) {
	request.Body = http.MaxBytesReader(writer, request.Body, maxUpdateBody)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var update domain.AlertUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		writeError(writer, http.StatusBadRequest, "decode update: "+err.Error())
		return
	}
	if err := validateUpdate(update); err != nil {
		writeError(writer, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.backend.UpdateAlert(request.Context(), mux.Vars(request)["id"], update)
	if err != nil {
		h.writeBackendError(writer, err)
		return
	}
	if result.Changed == nil {
		result.Changed = []string{}
	}
	writeJSON(writer, http.StatusOK, result)
}

func (h *Handler) handleListPlaybooks(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, h.playbooks.List())
}

func (h *Handler) handleGetPlaybook(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["id"]
	entry, ok := h.playbooks.Lookup(id)
	if !ok {
		writeError(writer, http.StatusNotFound, "playbook not found: "+id)
		return
	}
	writeJSON(writer, http.StatusOK, entry)
}

// alertFilter reads severity/status query parameters.
func alertFilter(request *http.Request) (domain.AlertFilter, error) {
	query := request.URL.Query()
	filter := domain.AlertFilter{
		Severity: domain.Severity(strings.ToLower(strings.TrimSpace(query.Get("severity")))),
		Status:   domain.AlertStatus(strings.ToLower(strings.TrimSpace(query.Get("status")))),
	}
	if filter.Severity != "" && !filter.Severity.IsKnown() {
		return domain.AlertFilter{}, errors.New("unsupported severity " + string(filter.Severity))
	}
	if filter.Status != "" && !filter.Status.IsKnown() {
		return domain.AlertFilter{}, errors.New("unsupported status " + string(filter.Status))
	}
	return filter, nil
}

func validateUpdate(update domain.AlertUpdate) error {
	if update.Status != nil {
		if !update.Status.IsKnown() {
			return errors.New("unsupported status " + string(*update.Status))
		}
		if *update.Status == domain.StatusSnoozed && update.SnoozedUntil == nil {
			return errors.New("snoozedUntil is required when status is snoozed")
		}
	}
	if update.Note != nil && strings.TrimSpace(update.Note.Content) == "" {
		return errors.New("note.content must not be empty")
	}
	return nil
}

func (h *Handler) writeBackendError(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		writeError(writer, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidAlertID):
		writeError(writer, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(writer, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.Error("api backend failed", "error", err)
		writeError(writer, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
		next.ServeHTTP(recorder, request)
		h.logger.Debug("api request",
			"method", request.Method,
			"path", request.URL.Path,
			"status", recorder.status,
			"duration", time.Since(started),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

func writeError(writer http.ResponseWriter, status int, message string) {
	writeJSON(writer, status, map[string]string{"error": message})
}
