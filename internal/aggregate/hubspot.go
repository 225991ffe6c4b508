package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cshealth/internal/clock"
	"cshealth/internal/config"
	"cshealth/internal/domain"

	"github.com/tidwall/gjson"
)

const (
	hubspotSearchPath        = "/crm/v3/objects/companies/search"
	hubspotOwnerPath         = "/crm/v3/owners/"
	hubspotLastContactedProp = "notes_last_contacted"
	hubspotOwnerProp         = "hubspot_owner_id"
	hubspotMaxErrorBody      = 512
)

// HubSpotSource resolves companies through HubSpot CRM v3 search.
// Params: API base URL, private app token, property mapping, HTTP client, and clock.
// Returns: CRMSource implementation.
type HubSpotSource struct {
	baseURL string
	token   string
	props   config.HubSpotConfig
	client  *http.Client
	clock   clock.Clock
}

// NewHubSpotSource creates CRM source from config.
// Params: HubSpot settings and clock.
// Returns: configured source.
func NewHubSpotSource(cfg config.HubSpotConfig, clk clock.Clock) *HubSpotSource {
	if clk == nil {
		clk = clock.RealClock{}
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HubSpotSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		props:   cfg,
		client:  &http.Client{Timeout: timeout},
		clock:   clk,
	}
}

// Company searches company by tenant property and maps relationship signals.
// Params: context and tenant ID.
// Returns: CRM record, ErrNotFound when no company matches, or transport error.
func (s *HubSpotSource) Company(ctx context.Context, tenantID string) (domain.CRMRecord, error) {
	body, err := json.Marshal(s.searchRequest(tenantID))
	if err != nil {
		return domain.CRMRecord{}, fmt.Errorf("encode hubspot search: %w", err)
	}
	raw, err := s.do(ctx, http.MethodPost, hubspotSearchPath, body)
	if err != nil {
		return domain.CRMRecord{}, err
	}
	if gjson.GetBytes(raw, "total").Int() == 0 {
		return domain.CRMRecord{}, ErrNotFound
	}
	company := gjson.GetBytes(raw, "results.0")
	if !company.Exists() {
		return domain.CRMRecord{}, ErrNotFound
	}
	record := s.companyRecord(company)
	if record.OwnerID != "" {
		name, err := s.ownerName(ctx, record.OwnerID)
		if err != nil {
			return domain.CRMRecord{}, err
		}
		record.OwnerName = name
	}
	return record, nil
}

func (s *HubSpotSource) searchRequest(tenantID string) map[string]any {
	properties := []string{"name", hubspotOwnerProp, hubspotLastContactedProp}
	for _, prop := range []string{s.props.ChampionProperty, s.props.InteractionProperty, s.props.SegmentProperty, s.props.TierProperty} {
		if prop != "" {
			properties = append(properties, prop)
		}
	}
	return map[string]any{
		"filterGroups": []map[string]any{{
			"filters": []map[string]string{{
				"propertyName": s.props.TenantProperty,
				"operator":     "EQ",
				"value":        tenantID,
			}},
		}},
		"properties": properties,
		"limit":      1,
	}
}

func (s *HubSpotSource) companyRecord(company gjson.Result) domain.CRMRecord {
	props := company.Get("properties")
	record := domain.CRMRecord{
		CompanyID: company.Get("id").String(),
		Name:      props.Get("name").String(),
		OwnerID:   props.Get(hubspotOwnerProp).String(),
	}
	if s.props.SegmentProperty != "" {
		record.Segment = props.Get(s.props.SegmentProperty).String()
	}
	if s.props.TierProperty != "" {
		record.Tier = props.Get(s.props.TierProperty).String()
	}
	if contacted := props.Get(hubspotLastContactedProp).String(); contacted != "" {
		if at, err := parseHubSpotTime(contacted); err == nil {
			days := int(s.clock.Now().Sub(at).Hours() / 24)
			record.DaysSinceLastCSContact = &days
		}
	}
	if s.props.InteractionProperty != "" {
		if value := props.Get(s.props.InteractionProperty).String(); value != "" {
			if count, err := strconv.Atoi(value); err == nil && count >= 0 {
				record.InteractionCountLast30Days = &count
			}
		}
	}
	if s.props.ChampionProperty != "" {
		if value := props.Get(s.props.ChampionProperty).String(); value != "" {
			hasChampion := parseHubSpotBool(value)
			record.HasChampion = &hasChampion
		}
	}
	return record
}

func (s *HubSpotSource) ownerName(ctx context.Context, ownerID string) (string, error) {
	raw, err := s.do(ctx, http.MethodGet, hubspotOwnerPath+url.PathEscape(ownerID), nil)
	if err != nil {
		return "", fmt.Errorf("resolve hubspot owner %s: %w", ownerID, err)
	}
	owner := gjson.ParseBytes(raw)
	name := strings.TrimSpace(owner.Get("firstName").String() + " " + owner.Get("lastName").String())
	if name == "" {
		name = owner.Get("email").String()
	}
	return name, nil
}

func (s *HubSpotSource) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build hubspot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hubspot %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read hubspot response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(raw) > hubspotMaxErrorBody {
			raw = raw[:hubspotMaxErrorBody]
		}
		return nil, fmt.Errorf("hubspot %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// parseHubSpotTime accepts ISO timestamps and epoch milliseconds.
func parseHubSpotTime(value string) (time.Time, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, value)
}

func parseHubSpotBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1", "y":
		return true
	default:
		return false
	}
}
