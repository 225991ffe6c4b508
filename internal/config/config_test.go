package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	enterpriseSegment = `[scoring.segment.enterprise.weights]
adoption = 0.2
engagement = 0.2
relationship = 0.3
support = 0.15
commercial = 0.15`
	sqliteStore = `[store]
backend = "sqlite"
sqlite_path = "/tmp/cshealth.db"`
)

func TestLoadSnapshotDefaults(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, `[service]
name = "cs"`)

	if cfg.Service.Name != "cs" {
		t.Fatalf("unexpected service name %q", cfg.Service.Name)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("console sink must be enabled when no sink configured")
	}
	if cfg.Store.Backend != StoreBackendMemory || cfg.Store.Bucket != defaultLifecycleBucket {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Ingest.HTTP.Listen != defaultHTTPListen || cfg.Ingest.HTTP.APIPrefix != "/api" {
		t.Fatalf("unexpected http defaults: %+v", cfg.Ingest.HTTP)
	}
	if cfg.Notify.MinSeverity != "high" {
		t.Fatalf("unexpected min severity %q", cfg.Notify.MinSeverity)
	}
	if cfg.Aggregate.BatchSize != defaultBatchSize || cfg.Aggregate.Concurrency != defaultConcurrency {
		t.Fatalf("unexpected aggregate defaults: %+v", cfg.Aggregate)
	}
	if cfg.Scoring.Weights != nil || cfg.Scoring.Grades != nil {
		t.Fatalf("omitted scoring sections must stay nil")
	}
}

func TestLoadSnapshotFromDirMergesSections(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	writeConfigFile(t, filepath.Join(tmpDir, "a.toml"), joinSections(
		`[scoring.grades]
a = 85
b = 70
c = 55
d = 40`,
		enterpriseSegment,
		`[store]
backend = "memory"`,
	))
	writeConfigFile(t, filepath.Join(tmpDir, "b.toml"), joinSections(sqliteStore, `[scoring.segment.smb.grades]
a = 75
b = 60
c = 45
d = 30`))
	writeConfigFile(t, filepath.Join(tmpDir, "notes.txt"), "ignored")

	cfg, err := LoadSnapshot(ConfigSource{Dir: tmpDir})
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if cfg.Store.Backend != StoreBackendSQLite {
		t.Fatalf("later fragment must win, got %q", cfg.Store.Backend)
	}
	if cfg.Scoring.Grades == nil || cfg.Scoring.Grades.A != 85 {
		t.Fatalf("expected grades from first fragment, got %+v", cfg.Scoring.Grades)
	}
	if len(cfg.Scoring.Segment) != 2 {
		t.Fatalf("expected both segments merged, got %d", len(cfg.Scoring.Segment))
	}
	if cfg.Scoring.Segment["enterprise"].Weights.Relationship != 0.3 {
		t.Fatalf("unexpected enterprise weights %+v", cfg.Scoring.Segment["enterprise"].Weights)
	}
}

func TestLoadSnapshotValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "weights sum",
			content: `[scoring.weights]
adoption = 0.5
engagement = 0.5
relationship = 0.2
support = 0
commercial = 0`,
			wantErr: "must sum to 1.0",
		},
		{
			name: "negative weight",
			content: `[scoring.weights]
adoption = 1.2
engagement = -0.2`,
			wantErr: "must be >=0",
		},
		{
			name: "grades order",
			content: `[scoring.grades]
a = 80
b = 80
c = 50
d = 35`,
			wantErr: "strictly descending",
		},
		{
			name: "empty segment",
			content: `[scoring.segment.smb]
label = "small business"`,
			wantErr: "must override weights or grades",
		},
		{
			name: "disabled type",
			content: `[alerts]
disabled = ["churn_risk", "bogus"]`,
			wantErr: "unsupported alert type",
		},
		{
			name: "sqlite path",
			content: `[store]
backend = "sqlite"`,
			wantErr: "sqlite_path is required",
		},
		{
			name: "store backend",
			content: `[store]
backend = "redis"`,
			wantErr: "unsupported value",
		},
		{
			name: "cron",
			content: `[schedule]
enabled = true
cron = "every hour"`,
			wantErr: "schedule.cron is invalid",
		},
		{
			name: "hubspot token",
			content: `[sources.hubspot]
enabled = true`,
			wantErr: "sources.hubspot.token",
		},
		{
			name: "stripe key",
			content: `[sources.stripe]
enabled = true`,
			wantErr: "sources.stripe.api_key",
		},
		{
			name: "telegram credentials",
			content: `[notify.telegram]
enabled = true
bot_token = "x"`,
			wantErr: "bot_token and chat_id",
		},
		{
			name: "template",
			content: `[notify.http]
enabled = true
url = "http://127.0.0.1/hook"
message = "{{ .Alert.Title "`,
			wantErr: "notify.http.message is invalid",
		},
		{
			name: "min severity",
			content: `[notify]
min_severity = "urgent"`,
			wantErr: "notify.min_severity",
		},
		{
			name: "retry backoff",
			content: `[notify.slack]
enabled = true
bot_token = "xoxb"
channel_id = "C1"

[notify.slack.retry]
enabled = true
backoff = "linear"`,
			wantErr: "retry.backoff",
		},
		{
			name: "log level",
			content: `[log.console]
enabled = true
level = "trace"`,
			wantErr: "log.console.level",
		},
		{
			name: "file sink path",
			content: `[log.file]
enabled = true`,
			wantErr: "log.file.path is required",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := loadSnapshotErr(t, tc.content)
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadSnapshotAcceptsValidCronAndSegments(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, joinSections(
		`[schedule]
enabled = true
cron = "0 */6 * * *"`,
		enterpriseSegment,
		`[alerts]
disabled = ["champion_left"]`,
		`[notify.slack]
enabled = true
bot_token = "xoxb"
channel_id = "C1"

[notify.slack.retry]
enabled = true`,
	))
	if _, err := ParseCron(cfg.Schedule.Cron); err != nil {
		t.Fatalf("parse cron: %v", err)
	}
	retry := NotifyChannelRetry(cfg.Notify, NotifyChannelSlack)
	if retry.Backoff != "exponential" || retry.MaxAttempts != defaultRetryMaxAttempts {
		t.Fatalf("expected retry defaults, got %+v", retry)
	}
	if !NotifyChannelEnabled(cfg.Notify, NotifyChannelSlack) || NotifyChannelEnabled(cfg.Notify, NotifyChannelHTTP) {
		t.Fatalf("unexpected enabled channels")
	}
	if NotifyChannelMessage(cfg.Notify, NotifyChannelSlack) != defaultNotifyMessage {
		t.Fatalf("expected default slack message")
	}
}

func TestStoreNATSURLFallsBackToIngest(t *testing.T) {
	t.Parallel()

	cfg := mustLoadSnapshot(t, `[ingest.nats]
enabled = true
url = ["nats://10.0.0.1:4222"]`)
	if len(cfg.Store.NATSURL) != 1 || cfg.Store.NATSURL[0] != "nats://10.0.0.1:4222" {
		t.Fatalf("expected store url from ingest, got %v", cfg.Store.NATSURL)
	}
}

func TestFromCLI(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error without sources")
	}
	if _, err := FromCLI("a.toml", "dir"); err == nil {
		t.Fatalf("expected error with both sources")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil || src.File != "a.toml" {
		t.Fatalf("unexpected source %+v err=%v", src, err)
	}
}

func TestParseInline(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sqliteStore))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Store.SQLitePath != "/tmp/cshealth.db" {
		t.Fatalf("unexpected sqlite path %q", cfg.Store.SQLitePath)
	}
	if _, err := Parse([]byte("[store")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func mustLoadSnapshot(t *testing.T, content string) Config {
	t.Helper()
	cfg, err := loadSnapshotFromContent(t, content)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return cfg
}

func loadSnapshotErr(t *testing.T, content string) error {
	t.Helper()
	_, err := loadSnapshotFromContent(t, content)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	return err
}

func loadSnapshotFromContent(t *testing.T, content string) (Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfigFile(t, path, content)
	return LoadSnapshot(ConfigSource{File: path})
}

func joinSections(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		nonEmpty = append(nonEmpty, trimmed)
	}
	return strings.Join(nonEmpty, "\n\n") + "\n"
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}
