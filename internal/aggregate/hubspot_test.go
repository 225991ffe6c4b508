package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cshealth/internal/clock"
	"cshealth/internal/config"
)

func newHubSpotTestServer(t *testing.T, searchResponse string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/crm/v3/objects/companies/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			FilterGroups []struct {
				Filters []struct {
					PropertyName string `json:"propertyName"`
					Value        string `json:"value"`
				} `json:"filters"`
			} `json:"filterGroups"`
			Properties []string `json:"properties"`
		}
		if err := json.Unmarshal(raw, &body); err != nil || len(body.FilterGroups) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		filter := body.FilterGroups[0].Filters[0]
		if filter.PropertyName != "tenant_id" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if filter.Value != "tenant-1" {
			_, _ = io.WriteString(w, `{"total":0,"results":[]}`)
			return
		}
		_, _ = io.WriteString(w, searchResponse)
	})
	mux.HandleFunc("/crm/v3/owners/77", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"id":"77","firstName":"Robin","lastName":"Lee","email":"robin@example.com"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func hubspotConfig(baseURL string) config.HubSpotConfig {
	return config.HubSpotConfig{
		Enabled:             true,
		BaseURL:             baseURL,
		Token:               "secret",
		TimeoutSec:          2,
		TenantProperty:      "tenant_id",
		ChampionProperty:    "has_champion",
		InteractionProperty: "cs_touches_30d",
		SegmentProperty:     "segment",
		TierProperty:        "tier",
	}
}

func TestHubSpotSourceMapsCompany(t *testing.T) {
	t.Parallel()

	server := newHubSpotTestServer(t, `{
		"total": 1,
		"results": [{
			"id": "9001",
			"properties": {
				"name": "Acme",
				"hubspot_owner_id": "77",
				"notes_last_contacted": "2026-04-24T12:00:00Z",
				"has_champion": "true",
				"cs_touches_30d": "4",
				"segment": "enterprise",
				"tier": "gold"
			}
		}]
	}`)
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	source := NewHubSpotSource(hubspotConfig(server.URL), clock.Fixed{At: now})

	record, err := source.Company(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("company: %v", err)
	}
	if record.CompanyID != "9001" || record.Name != "Acme" || record.OwnerID != "77" || record.OwnerName != "Robin Lee" {
		t.Fatalf("unexpected identity %+v", record)
	}
	if record.DaysSinceLastCSContact == nil || *record.DaysSinceLastCSContact != 10 {
		t.Fatalf("unexpected contact recency %v", record.DaysSinceLastCSContact)
	}
	if record.InteractionCountLast30Days == nil || *record.InteractionCountLast30Days != 4 {
		t.Fatalf("unexpected interactions %v", record.InteractionCountLast30Days)
	}
	if record.HasChampion == nil || !*record.HasChampion || record.Segment != "enterprise" || record.Tier != "gold" {
		t.Fatalf("unexpected mapped properties %+v", record)
	}
}

func TestHubSpotSourceMissingPropertiesStayAbsent(t *testing.T) {
	t.Parallel()

	server := newHubSpotTestServer(t, `{"total":1,"results":[{"id":"1","properties":{"name":"Bare"}}]}`)
	source := NewHubSpotSource(hubspotConfig(server.URL), clock.Fixed{At: time.Now()})

	record, err := source.Company(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("company: %v", err)
	}
	if record.DaysSinceLastCSContact != nil || record.InteractionCountLast30Days != nil || record.HasChampion != nil || record.OwnerName != "" {
		t.Fatalf("absent properties must stay nil: %+v", record)
	}
}

func TestHubSpotSourceErrors(t *testing.T) {
	t.Parallel()

	server := newHubSpotTestServer(t, `{}`)
	source := NewHubSpotSource(hubspotConfig(server.URL), nil)
	if _, err := source.Company(context.Background(), "tenant-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	cfg := hubspotConfig(server.URL)
	cfg.Token = "wrong"
	if _, err := NewHubSpotSource(cfg, nil).Company(context.Background(), "tenant-1"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transport error for unauthorized call, got %v", err)
	}
}

func TestParseHubSpotTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Time
	}{
		{in: "2026-04-24T12:00:00Z", want: time.Date(2026, 4, 24, 12, 0, 0, 0, time.UTC)},
		{in: "1777032000000", want: time.UnixMilli(1777032000000).UTC()},
	}
	for _, tc := range cases {
		got, err := parseHubSpotTime(tc.in)
		if err != nil || !got.Equal(tc.want) {
			t.Fatalf("parse %q: got %v err=%v", tc.in, got, err)
		}
	}
	if _, err := parseHubSpotTime("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}
