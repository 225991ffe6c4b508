package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cshealth/internal/domain"
	"cshealth/internal/lifecycle"
	"cshealth/internal/logging"
	"cshealth/internal/playbook"
)

type fakeBackend struct {
	accounts   map[string]domain.Account
	alerts     []domain.Alert
	lastFilter domain.AlertFilter
	lastID     string
	lastUpdate domain.AlertUpdate
	updateErr  error
}

func (b *fakeBackend) Accounts(context.Context) ([]domain.Account, error) {
	out := make([]domain.Account, 0, len(b.accounts))
	for _, account := range b.accounts {
		out = append(out, account)
	}
	return out, nil
}

func (b *fakeBackend) Account(_ context.Context, accountID string) (domain.Account, error) {
	account, ok := b.accounts[accountID]
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: %q", domain.ErrAccountNotFound, accountID)
	}
	return account, nil
}

func (b *fakeBackend) Alerts(_ context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	b.lastFilter = filter
	if filter.AccountID != "" {
		if _, ok := b.accounts[filter.AccountID]; !ok {
			return nil, domain.ErrAccountNotFound
		}
	}
	out := make([]domain.Alert, 0, len(b.alerts))
	for _, alert := range b.alerts {
		if filter.Match(alert) {
			out = append(out, alert)
		}
	}
	return out, nil
}

func (b *fakeBackend) UpdateAlert(_ context.Context, alertID string, update domain.AlertUpdate) (lifecycle.UpsertResult, error) {
	b.lastID = alertID
	b.lastUpdate = update
	if b.updateErr != nil {
		return lifecycle.UpsertResult{}, b.updateErr
	}
	result := lifecycle.UpsertResult{Changed: []string{"status"}}
	if update.Note != nil {
		result.Changed = append(result.Changed, "notes")
		result.Note = &domain.AlertNote{ID: "n-1", AlertID: alertID, Content: update.Note.Content}
	}
	return result, nil
}

func newTestHandler(t *testing.T) (*Handler, *fakeBackend) {
	t.Helper()
	catalog, err := playbook.Default()
	if err != nil {
		t.Fatalf("playbook.Default: %v", err)
	}
	backend := &fakeBackend{
		accounts: map[string]domain.Account{
			"acc-1": {AccountID: "acc-1", AccountName: "Acme", Health: domain.AccountHealth{Score: 42, Grade: domain.GradeD}},
		},
		alerts: []domain.Alert{
			{ID: "churn_risk-acc-1", AccountID: "acc-1", Type: domain.AlertChurnRisk, Severity: domain.SeverityCritical, Status: domain.StatusOpen},
			{ID: "expansion_opportunity-acc-2", AccountID: "acc-2", Type: domain.AlertExpansionOpportunity, Severity: domain.SeverityLow, Status: domain.StatusOpen},
		},
	}
	return NewHandler("/api", backend, catalog, logging.Discard()), backend
}

func TestReadEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "accounts", path: "/api/accounts", wantStatus: http.StatusOK, wantBody: `"accountId":"acc-1"`},
		{name: "account", path: "/api/accounts/acc-1", wantStatus: http.StatusOK, wantBody: `"score":42`},
		{name: "missing account", path: "/api/accounts/nope", wantStatus: http.StatusNotFound, wantBody: "account not found"},
		{name: "account alerts", path: "/api/accounts/acc-1/alerts", wantStatus: http.StatusOK, wantBody: `"churn_risk-acc-1"`},
		{name: "alerts by severity", path: "/api/alerts?severity=low", wantStatus: http.StatusOK, wantBody: `"expansion_opportunity-acc-2"`},
		{name: "bad severity", path: "/api/alerts?severity=urgent", wantStatus: http.StatusBadRequest, wantBody: "unsupported severity"},
		{name: "bad status", path: "/api/alerts?status=done", wantStatus: http.StatusBadRequest, wantBody: "unsupported status"},
		{name: "playbook", path: "/api/playbooks/churn-prevention", wantStatus: http.StatusOK, wantBody: `"id":"churn-prevention"`},
		{name: "missing playbook", path: "/api/playbooks/nope", wantStatus: http.StatusNotFound, wantBody: "playbook not found"},
		{name: "playbooks", path: "/api/playbooks", wantStatus: http.StatusOK, wantBody: `"payment-collection"`},
		{name: "outside prefix", path: "/accounts", wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			handler, _ := newTestHandler(t)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if recorder.Code != tc.wantStatus {
				t.Fatalf("status=%d want %d body=%s", recorder.Code, tc.wantStatus, recorder.Body.String())
			}
			if tc.wantBody != "" && !strings.Contains(recorder.Body.String(), tc.wantBody) {
				t.Fatalf("body %s does not contain %s", recorder.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestAccountAlertsScopesFilter(t *testing.T) {
	t.Parallel()

	handler, backend := newTestHandler(t)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/accounts/acc-1/alerts?status=OPEN", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status=%d", recorder.Code)
	}
	if backend.lastFilter.AccountID != "acc-1" || backend.lastFilter.Status != domain.StatusOpen {
		t.Fatalf("filter=%+v", backend.lastFilter)
	}
	var alerts []domain.Alert
	if err := json.Unmarshal(recorder.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != "churn_risk-acc-1" {
		t.Fatalf("alerts=%+v", alerts)
	}
}

func TestUpdateAlert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		backendErr error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "acknowledge with note",
			body:       `{"status":"acknowledged","acknowledgedBy":"csm","note":{"content":"called","createdBy":"csm"}}`,
			wantStatus: http.StatusOK,
			wantBody:   `"changed":["status","notes"]`,
		},
		{name: "unknown status", body: `{"status":"closed"}`, wantStatus: http.StatusBadRequest, wantBody: "unsupported status"},
		{name: "snooze without deadline", body: `{"status":"snoozed"}`, wantStatus: http.StatusBadRequest, wantBody: "snoozedUntil"},
		{name: "empty note", body: `{"note":{"content":"  "}}`, wantStatus: http.StatusBadRequest, wantBody: "note.content"},
		{name: "malformed json", body: `{"status":`, wantStatus: http.StatusBadRequest, wantBody: "decode update"},
		{
			name:       "invalid alert id",
			body:       `{"status":"resolved"}`,
			backendErr: domain.ErrInvalidAlertID,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store failure",
			body:       `{"status":"resolved"}`,
			backendErr: errors.New("kv down"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   "internal error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			handler, backend := newTestHandler(t)
			backend.updateErr = tc.backendErr
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodPatch, "/api/alerts/churn_risk-acc-1", strings.NewReader(tc.body))
			handler.ServeHTTP(recorder, request)
			if recorder.Code != tc.wantStatus {
				t.Fatalf("status=%d want %d body=%s", recorder.Code, tc.wantStatus, recorder.Body.String())
			}
			if tc.wantBody != "" && !strings.Contains(recorder.Body.String(), tc.wantBody) {
				t.Fatalf("body %s does not contain %s", recorder.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestUpdateAlertPassesIDAndFields(t *testing.T) {
	t.Parallel()

	handler, backend := newTestHandler(t)
	recorder := httptest.NewRecorder()
	body := `{"assignedTo":"csm-2","assignedToName":"Robin"}`
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPatch, "/api/alerts/health_drop-acc-9", strings.NewReader(body)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", recorder.Code, recorder.Body.String())
	}
	if backend.lastID != "health_drop-acc-9" {
		t.Fatalf("alert id=%q", backend.lastID)
	}
	if backend.lastUpdate.AssignedTo == nil || *backend.lastUpdate.AssignedTo != "csm-2" {
		t.Fatalf("update=%+v", backend.lastUpdate)
	}
}

func TestWrongMethodRejected(t *testing.T) {
	t.Parallel()

	handler, _ := newTestHandler(t)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/api/alerts/churn_risk-acc-1", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", recorder.Code)
	}
}
