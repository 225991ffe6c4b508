package e2e

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cshealth/internal/domain"
)

func reloadingConfig(port int, webhookURL, alertsSection string) string {
	prefix := strings.Replace(e2eConfigPrefix("cshealth-reload", port, true),
		"reload_enabled = false", "reload_enabled = true\nreload_interval_sec = 1", 1)
	return prefix + alertsSection + e2eWebhookNotify(webhookURL, "critical")
}

func TestReloadDisablesAlertType(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e test")
	}
	port, err := freePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	collector := &notificationCollector{}
	webhook := httptest.NewServer(http.HandlerFunc(collector.Handle))
	defer webhook.Close()

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte(reloadingConfig(port, webhook.URL, "")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	service := newServiceFromConfig(t, configPath)
	cancel, done := runService(t, service)
	defer cancel()
	waitReady(t, port)
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	postReport(t, baseURL+"/ingest", silentReportJSON("acc-before", 40))
	waitFor(t, 5*time.Second, func() bool { return collector.Count("churn_risk-acc-before") == 1 })

	disabled := "\n[alerts]\ndisabled = [\"churn_risk\"]\n"
	if err := os.WriteFile(configPath, []byte(reloadingConfig(port, webhook.URL, disabled)), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(2500 * time.Millisecond)

	postReport(t, baseURL+"/ingest", silentReportJSON("acc-after", 40))
	waitFor(t, 5*time.Second, func() bool { return accountKnown(baseURL, "acc-after") })

	var alerts []domain.Alert
	getJSON(t, baseURL+"/api/accounts/acc-after/alerts", &alerts)
	if len(alerts) == 0 {
		t.Fatalf("expected remaining alert types for acc-after")
	}
	for _, alert := range alerts {
		if alert.Type == domain.AlertChurnRisk {
			t.Fatalf("churn_risk generated after reload disabled it: %+v", alert)
		}
	}
	time.Sleep(300 * time.Millisecond)
	if got := collector.Count("churn_risk-acc-after"); got != 0 {
		t.Fatalf("disabled alert type notified %d times", got)
	}

	cancel()
	waitServiceStop(t, done)
}

func TestReloadInvalidConfigKeepsPreviousSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("e2e test")
	}
	port, err := freePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	collector := &notificationCollector{}
	webhook := httptest.NewServer(http.HandlerFunc(collector.Handle))
	defer webhook.Close()

	disabled := "\n[alerts]\ndisabled = [\"churn_risk\"]\n"
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte(reloadingConfig(port, webhook.URL, disabled)), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	service := newServiceFromConfig(t, configPath)
	cancel, done := runService(t, service)
	defer cancel()
	waitReady(t, port)
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	broken := "\n[alerts]\ndisabled = [\"not_a_type\"]\n"
	if err := os.WriteFile(configPath, []byte(reloadingConfig(port, webhook.URL, broken)), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	time.Sleep(2500 * time.Millisecond)

	response, err := http.Get(baseURL + "/readyz")
	if err != nil {
		t.Fatalf("ready request: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("service not ready after failed reload: %d", response.StatusCode)
	}

	postReport(t, baseURL+"/ingest", silentReportJSON("acc-kept", 40))
	waitFor(t, 5*time.Second, func() bool { return accountKnown(baseURL, "acc-kept") })

	var alerts []domain.Alert
	getJSON(t, baseURL+"/api/alerts?severity=critical", &alerts)
	for _, alert := range alerts {
		if alert.Type == domain.AlertChurnRisk {
			t.Fatalf("previous snapshot lost, churn_risk generated: %+v", alert)
		}
	}
	if collector.Total() != 0 {
		t.Fatalf("unexpected notifications: %+v", collector.Snapshot())
	}

	cancel()
	waitServiceStop(t, done)
}
