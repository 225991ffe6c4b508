package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"cshealth/internal/domain"
	"cshealth/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

const (
	defaultServiceName        = "cshealth"
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultIngestPath         = "/ingest"
	defaultAPIPrefix          = "/api"
	defaultMaxBodyBytes       = 4 << 20
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultNATSSubject        = "cshealth.reports"
	defaultNATSStream         = "CSHEALTH_REPORTS"
	defaultNATSConsumer       = "cshealth-ingest"
	defaultNATSDeliverGroup   = "cshealth-workers"
	defaultNATSAckWaitSec     = 30
	defaultNATSNackDelayMS    = 1000
	defaultNATSMaxDeliver     = -1
	defaultNATSMaxAckPending  = 1024
	defaultLifecycleBucket    = "alert_lifecycle"
	defaultReloadSeconds      = 10
	defaultBatchSize          = 10
	defaultBatchDelayMS       = 1000
	defaultConcurrency        = 4
	defaultRequestTimeoutSec  = 15
	defaultHubSpotBaseURL     = "https://api.hubapi.com"
	defaultHubSpotTenantProp  = "tenant_id"
	defaultStripeTenantKey    = "tenant_id"
	defaultNotifyMinSeverity  = "high"
	defaultNotifyTimeoutSec   = 10
	defaultNotifyMessage      = "[{{ .Alert.Severity }}] {{ .Alert.Title }} ({{ .Alert.AccountID }}): {{ .Alert.SuggestedAction }}"
	weightSumTolerance        = 1e-6
	defaultRetryInitialMS     = 200
	defaultRetryMaxMS         = 5000
	defaultRetryMaxAttempts   = 5
	defaultRetryBackoffPolicy = "exponential"

	// StoreBackendMemory keeps lifecycle state in process memory.
	StoreBackendMemory = "memory"
	// StoreBackendNATS keeps lifecycle state in JetStream KV.
	StoreBackendNATS = "nats"
	// StoreBackendSQLite keeps lifecycle state in a local SQLite file.
	StoreBackendSQLite = "sqlite"

	// NotifyChannelTelegram identifies Telegram transport.
	NotifyChannelTelegram = "telegram"
	// NotifyChannelHTTP identifies generic HTTP webhook transport.
	NotifyChannelHTTP = "http"
	// NotifyChannelSlack identifies Slack transport.
	NotifyChannelSlack = "slack"
)

var notifyChannelOrder = []string{
	NotifyChannelTelegram,
	NotifyChannelHTTP,
	NotifyChannelSlack,
}

// Config holds service runtime settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Log       LogConfig       `toml:"log"`
	Scoring   ScoringConfig   `toml:"scoring"`
	Alerts    AlertsConfig    `toml:"alerts"`
	Store     StoreConfig     `toml:"store"`
	Ingest    IngestConfig    `toml:"ingest"`
	Sources   SourcesConfig   `toml:"sources"`
	Aggregate AggregateConfig `toml:"aggregate"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Notify    NotifyConfig    `toml:"notify"`
	Playbooks PlaybooksConfig `toml:"playbooks"`
}

// ServiceConfig contains process-level settings.
// Params: name and reload settings.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name              string `toml:"name"`
	ReloadEnabled     bool   `toml:"reload_enabled"`
	ReloadIntervalSec int    `toml:"reload_interval_sec"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// ScoringConfig overrides health scoring weights and grade thresholds.
// Params: optional global weights/grades and per-segment overrides.
// Returns: settings converted by scoring package into immutable config.
type ScoringConfig struct {
	Weights *WeightsConfig           `toml:"weights"`
	Grades  *GradesConfig            `toml:"grades"`
	Segment map[string]SegmentConfig `toml:"segment"`
}

// WeightsConfig holds five component weights summing to 1.0.
type WeightsConfig struct {
	Adoption     float64 `toml:"adoption"`
	Engagement   float64 `toml:"engagement"`
	Relationship float64 `toml:"relationship"`
	Support      float64 `toml:"support"`
	Commercial   float64 `toml:"commercial"`
}

// Sum returns total weight.
// Params: none.
// Returns: sum of five weights.
func (w WeightsConfig) Sum() float64 {
	return w.Adoption + w.Engagement + w.Relationship + w.Support + w.Commercial
}

// GradesConfig holds minimum scores for grades A..D.
type GradesConfig struct {
	A int `toml:"a"`
	B int `toml:"b"`
	C int `toml:"c"`
	D int `toml:"d"`
}

// SegmentConfig replaces weights and/or grades for one account segment.
type SegmentConfig struct {
	Weights *WeightsConfig `toml:"weights"`
	Grades  *GradesConfig  `toml:"grades"`
}

// AlertsConfig controls rule table composition.
// Params: disabled alert type list.
// Returns: rule engine options.
type AlertsConfig struct {
	Disabled []string `toml:"disabled"`
}

// StoreConfig selects alert lifecycle persistence backend.
// Params: backend name and backend-specific connection settings.
// Returns: lifecycle store options.
type StoreConfig struct {
	Backend            string   `toml:"backend"`
	SQLitePath         string   `toml:"sqlite_path"`
	NATSURL            []string `toml:"nats_url"`
	Bucket             string   `toml:"bucket"`
	AllowCreateBuckets bool     `toml:"allow_create_buckets"`
}

// IngestConfig defines inbound report interfaces.
// Params: embedded HTTP and NATS subscription controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP HTTPIngestConfig `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
}

// HTTPIngestConfig configures HTTP listener for report ingest and API.
// Params: enable flag, listen/endpoints, and body size limit.
// Returns: HTTP behavior.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"health_path"`
	ReadyPath    string `toml:"ready_path"`
	IngestPath   string `toml:"ingest_path"`
	APIPrefix    string `toml:"api_prefix"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection, stream routing, and ack/redelivery policy.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"subject"`
	Stream        string   `toml:"stream"`
	ConsumerName  string   `toml:"consumer_name"`
	DeliverGroup  string   `toml:"deliver_group"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// SourcesConfig holds CRM and billing enrichment settings.
type SourcesConfig struct {
	HubSpot HubSpotConfig `toml:"hubspot"`
	Stripe  StripeConfig  `toml:"stripe"`
}

// HubSpotConfig configures CRM company lookup.
// Params: API endpoint/token and property names mapped into relationship signals.
// Returns: HubSpot source options.
type HubSpotConfig struct {
	Enabled             bool   `toml:"enabled"`
	BaseURL             string `toml:"base_url"`
	Token               string `toml:"token"`
	TimeoutSec          int    `toml:"timeout_sec"`
	TenantProperty      string `toml:"tenant_property"`
	ChampionProperty    string `toml:"champion_property"`
	InteractionProperty string `toml:"interaction_property"`
	SegmentProperty     string `toml:"segment_property"`
	TierProperty        string `toml:"tier_property"`
}

// StripeConfig configures billing lookup.
// Params: API key, optional API base override, and tenant metadata key.
// Returns: Stripe source options.
type StripeConfig struct {
	Enabled           bool   `toml:"enabled"`
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	TenantMetadataKey string `toml:"tenant_metadata_key"`
}

// AggregateConfig controls enrichment fan-out pacing.
// Params: batch size, inter-batch delay, parallel lookups, and per-request timeout.
// Returns: aggregator rate-limit settings.
type AggregateConfig struct {
	BatchSize         int `toml:"batch_size"`
	BatchDelayMS      int `toml:"batch_delay_ms"`
	Concurrency       int `toml:"concurrency"`
	RequestTimeoutSec int `toml:"request_timeout_sec"`
}

// ScheduleConfig controls periodic re-scoring of known accounts.
// Params: enable flag and 5-field cron expression.
// Returns: scheduler options.
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// NotifyConfig defines outbound alert notification behavior.
// Params: minimum severity and per-channel transport settings.
// Returns: notification controls.
type NotifyConfig struct {
	MinSeverity string           `toml:"min_severity"`
	Telegram    TelegramNotifier `toml:"telegram"`
	HTTP        HTTPNotifier     `toml:"http"`
	Slack       SlackNotifier    `toml:"slack"`
}

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// TelegramNotifier defines Telegram channel settings.
// Params: enabled flag, bot token, chat ID, API base URL, message template, and retry policy.
// Returns: Telegram sender configuration.
type TelegramNotifier struct {
	Enabled  bool        `toml:"enabled"`
	BotToken string      `toml:"bot_token"`
	ChatID   string      `toml:"chat_id"`
	APIBase  string      `toml:"api_base"`
	Message  string      `toml:"message"`
	Retry    NotifyRetry `toml:"retry"`
}

// HTTPNotifier defines generic outbound HTTP webhook.
// Params: URL, method, timeout, optional static headers, message template, and retry policy.
// Returns: HTTP notification sender configuration.
type HTTPNotifier struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
	Message    string            `toml:"message"`
	Retry      NotifyRetry       `toml:"retry"`
}

// SlackNotifier defines Slack channel settings.
// Params: bot token, channel ID, optional API URL override, message template, and retry policy.
// Returns: Slack sender configuration.
type SlackNotifier struct {
	Enabled   bool        `toml:"enabled"`
	BotToken  string      `toml:"bot_token"`
	ChannelID string      `toml:"channel_id"`
	APIURL    string      `toml:"api_url"`
	Message   string      `toml:"message"`
	Retry     NotifyRetry `toml:"retry"`
}

// PlaybooksConfig points at an optional playbook catalog override.
type PlaybooksConfig struct {
	File string `toml:"file"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes, defaults, and validates one in-memory TOML document.
// Params: TOML body.
// Returns: validated config or decode/validation error.
func Parse(body []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays non-empty sections of source onto destination.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	overlay(&dst.Service, src.Service)
	overlay(&dst.Log, src.Log)
	overlay(&dst.Alerts, src.Alerts)
	overlay(&dst.Store, src.Store)
	overlay(&dst.Ingest.HTTP, src.Ingest.HTTP)
	overlay(&dst.Ingest.NATS, src.Ingest.NATS)
	overlay(&dst.Sources.HubSpot, src.Sources.HubSpot)
	overlay(&dst.Sources.Stripe, src.Sources.Stripe)
	overlay(&dst.Aggregate, src.Aggregate)
	overlay(&dst.Schedule, src.Schedule)
	overlay(&dst.Playbooks, src.Playbooks)
	overlay(&dst.Notify.Telegram, src.Notify.Telegram)
	overlay(&dst.Notify.HTTP, src.Notify.HTTP)
	overlay(&dst.Notify.Slack, src.Notify.Slack)
	if src.Notify.MinSeverity != "" {
		dst.Notify.MinSeverity = src.Notify.MinSeverity
	}

	if src.Scoring.Weights != nil {
		dst.Scoring.Weights = src.Scoring.Weights
	}
	if src.Scoring.Grades != nil {
		dst.Scoring.Grades = src.Scoring.Grades
	}
	for name, segment := range src.Scoring.Segment {
		if dst.Scoring.Segment == nil {
			dst.Scoring.Segment = make(map[string]SegmentConfig)
		}
		dst.Scoring.Segment[name] = segment
	}
}

// overlay replaces destination section when source section is not empty.
// Params: destination pointer and source value of the same section type.
// Returns: destination replaced side-effect.
func overlay[T any](dst *T, src T) {
	if reflect.ValueOf(src).IsZero() {
		return
	}
	*dst = src
}

// applyDefaults fills omitted settings.
// Params: config pointer.
// Returns: defaults side-effect.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if cfg.Service.ReloadIntervalSec <= 0 {
		cfg.Service.ReloadIntervalSec = defaultReloadSeconds
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreBackendMemory
	}
	if strings.TrimSpace(cfg.Store.Bucket) == "" {
		cfg.Store.Bucket = defaultLifecycleBucket
	}
	if len(normalizeURLs(cfg.Store.NATSURL)) == 0 {
		if urls := normalizeURLs(cfg.Ingest.NATS.URL); len(urls) > 0 {
			cfg.Store.NATSURL = urls
		} else {
			cfg.Store.NATSURL = []string{defaultNATSURL}
		}
	}

	http := &cfg.Ingest.HTTP
	if strings.TrimSpace(http.Listen) == "" {
		http.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(http.HealthPath) == "" {
		http.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(http.ReadyPath) == "" {
		http.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(http.IngestPath) == "" {
		http.IngestPath = defaultIngestPath
	}
	if strings.TrimSpace(http.APIPrefix) == "" {
		http.APIPrefix = defaultAPIPrefix
	}
	if http.MaxBodyBytes <= 0 {
		http.MaxBodyBytes = defaultMaxBodyBytes
	}

	nats := &cfg.Ingest.NATS
	if len(normalizeURLs(nats.URL)) == 0 {
		nats.URL = []string{defaultNATSURL}
	}
	if strings.TrimSpace(nats.Subject) == "" {
		nats.Subject = defaultNATSSubject
	}
	if strings.TrimSpace(nats.Stream) == "" {
		nats.Stream = defaultNATSStream
	}
	if strings.TrimSpace(nats.ConsumerName) == "" {
		nats.ConsumerName = defaultNATSConsumer
	}
	if strings.TrimSpace(nats.DeliverGroup) == "" {
		nats.DeliverGroup = defaultNATSDeliverGroup
	}
	if nats.AckWaitSec <= 0 {
		nats.AckWaitSec = defaultNATSAckWaitSec
	}
	if nats.NackDelayMS == 0 {
		nats.NackDelayMS = defaultNATSNackDelayMS
	}
	if nats.MaxDeliver == 0 {
		nats.MaxDeliver = defaultNATSMaxDeliver
	}
	if nats.MaxAckPending <= 0 {
		nats.MaxAckPending = defaultNATSMaxAckPending
	}

	hubspot := &cfg.Sources.HubSpot
	if strings.TrimSpace(hubspot.BaseURL) == "" {
		hubspot.BaseURL = defaultHubSpotBaseURL
	}
	if hubspot.TimeoutSec <= 0 {
		hubspot.TimeoutSec = defaultRequestTimeoutSec
	}
	if strings.TrimSpace(hubspot.TenantProperty) == "" {
		hubspot.TenantProperty = defaultHubSpotTenantProp
	}
	if strings.TrimSpace(cfg.Sources.Stripe.TenantMetadataKey) == "" {
		cfg.Sources.Stripe.TenantMetadataKey = defaultStripeTenantKey
	}

	if cfg.Aggregate.BatchSize <= 0 {
		cfg.Aggregate.BatchSize = defaultBatchSize
	}
	if cfg.Aggregate.BatchDelayMS == 0 {
		cfg.Aggregate.BatchDelayMS = defaultBatchDelayMS
	}
	if cfg.Aggregate.Concurrency <= 0 {
		cfg.Aggregate.Concurrency = defaultConcurrency
	}
	if cfg.Aggregate.RequestTimeoutSec <= 0 {
		cfg.Aggregate.RequestTimeoutSec = defaultRequestTimeoutSec
	}

	cfg.Notify.MinSeverity = strings.ToLower(strings.TrimSpace(cfg.Notify.MinSeverity))
	if cfg.Notify.MinSeverity == "" {
		cfg.Notify.MinSeverity = defaultNotifyMinSeverity
	}
	if strings.TrimSpace(cfg.Notify.Telegram.Message) == "" {
		cfg.Notify.Telegram.Message = defaultNotifyMessage
	}
	if strings.TrimSpace(cfg.Notify.HTTP.Message) == "" {
		cfg.Notify.HTTP.Message = defaultNotifyMessage
	}
	if strings.TrimSpace(cfg.Notify.HTTP.Method) == "" {
		cfg.Notify.HTTP.Method = "POST"
	}
	if cfg.Notify.HTTP.TimeoutSec <= 0 {
		cfg.Notify.HTTP.TimeoutSec = defaultNotifyTimeoutSec
	}
	if strings.TrimSpace(cfg.Notify.Slack.Message) == "" {
		cfg.Notify.Slack.Message = defaultNotifyMessage
	}
	fillNotifyRetryDefaults(&cfg.Notify.Telegram.Retry)
	fillNotifyRetryDefaults(&cfg.Notify.HTTP.Retry)
	fillNotifyRetryDefaults(&cfg.Notify.Slack.Retry)
}

// fillNotifyRetryDefaults fills retry knobs when retry is enabled.
// Params: retry policy pointer.
// Returns: defaults side-effect.
func fillNotifyRetryDefaults(retry *NotifyRetry) {
	if !retry.Enabled {
		return
	}
	if strings.TrimSpace(retry.Backoff) == "" {
		retry.Backoff = defaultRetryBackoffPolicy
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = defaultRetryInitialMS
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = defaultRetryMaxMS
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = defaultRetryMaxAttempts
	}
}

// validateConfig validates a defaulted config snapshot.
// Params: config snapshot.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if cfg.Service.ReloadIntervalSec <= 0 {
		return errors.New("service.reload_interval_sec must be >0")
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}
	if err := validateScoring(cfg.Scoring); err != nil {
		return err
	}
	for i, raw := range cfg.Alerts.Disabled {
		if !domain.AlertType(strings.TrimSpace(raw)).IsKnown() {
			return fmt.Errorf("alerts.disabled[%d] has unsupported alert type %q", i, raw)
		}
	}
	if err := validateStore(cfg.Store); err != nil {
		return err
	}
	if err := validateIngest(cfg.Ingest); err != nil {
		return err
	}
	if cfg.Sources.HubSpot.Enabled && strings.TrimSpace(cfg.Sources.HubSpot.Token) == "" {
		return errors.New("sources.hubspot.token is required when sources.hubspot.enabled=true")
	}
	if cfg.Sources.Stripe.Enabled && strings.TrimSpace(cfg.Sources.Stripe.APIKey) == "" {
		return errors.New("sources.stripe.api_key is required when sources.stripe.enabled=true")
	}
	if cfg.Aggregate.BatchDelayMS < 0 {
		return errors.New("aggregate.batch_delay_ms must be >=0")
	}
	if cfg.Schedule.Enabled {
		if strings.TrimSpace(cfg.Schedule.Cron) == "" {
			return errors.New("schedule.cron is required when schedule.enabled=true")
		}
		if _, err := ParseCron(cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron is invalid: %w", err)
		}
	}
	return validateNotify(cfg.Notify)
}

// ParseCron parses standard 5-field cron expression.
// Params: expression like "0 * * * *".
// Returns: schedule or parse error.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(strings.TrimSpace(expr))
}

// validateScoring validates weights and grade thresholds.
// Params: scoring settings.
// Returns: validation error.
func validateScoring(cfg ScoringConfig) error {
	if cfg.Weights != nil {
		if err := validateWeights("scoring.weights", *cfg.Weights); err != nil {
			return err
		}
	}
	if cfg.Grades != nil {
		if err := validateGrades("scoring.grades", *cfg.Grades); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(cfg.Segment))
	for name := range cfg.Segment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return errors.New("scoring.segment name must not be empty")
		}
		segment := cfg.Segment[name]
		if segment.Weights == nil && segment.Grades == nil {
			return fmt.Errorf("scoring.segment.%s must override weights or grades", name)
		}
		if segment.Weights != nil {
			if err := validateWeights("scoring.segment."+name+".weights", *segment.Weights); err != nil {
				return err
			}
		}
		if segment.Grades != nil {
			if err := validateGrades("scoring.segment."+name+".grades", *segment.Grades); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateWeights checks non-negative weights summing to 1.0.
// Params: config path prefix and weights.
// Returns: validation error.
func validateWeights(path string, weights WeightsConfig) error {
	for name, value := range map[string]float64{
		"adoption":     weights.Adoption,
		"engagement":   weights.Engagement,
		"relationship": weights.Relationship,
		"support":      weights.Support,
		"commercial":   weights.Commercial,
	} {
		if value < 0 || math.IsNaN(value) {
			return fmt.Errorf("%s.%s must be >=0", path, name)
		}
	}
	if math.Abs(weights.Sum()-1) > weightSumTolerance {
		return fmt.Errorf("%s must sum to 1.0, got %.6f", path, weights.Sum())
	}
	return nil
}

// validateGrades checks strictly descending thresholds within 0..100.
// Params: config path prefix and thresholds.
// Returns: validation error.
func validateGrades(path string, grades GradesConfig) error {
	if grades.A > 100 || grades.D < 0 {
		return fmt.Errorf("%s must be within 0..100", path)
	}
	if !(grades.A > grades.B && grades.B > grades.C && grades.C > grades.D) {
		return fmt.Errorf("%s must be strictly descending a>b>c>d", path)
	}
	return nil
}

// validateStore validates lifecycle backend selection.
// Params: store settings.
// Returns: validation error.
func validateStore(cfg StoreConfig) error {
	switch cfg.Backend {
	case StoreBackendMemory:
	case StoreBackendSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return errors.New("store.sqlite_path is required when store.backend=sqlite")
		}
	case StoreBackendNATS:
		for i, url := range cfg.NATSURL {
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("store.nats_url[%d] is empty", i)
			}
		}
	default:
		return fmt.Errorf("store.backend has unsupported value %q", cfg.Backend)
	}
	return nil
}

// validateIngest validates HTTP and NATS ingest settings.
// Params: ingest settings.
// Returns: validation error.
func validateIngest(cfg IngestConfig) error {
	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		return errors.New("ingest.http.listen is required")
	}
	for name, path := range map[string]string{
		"health_path": cfg.HTTP.HealthPath,
		"ready_path":  cfg.HTTP.ReadyPath,
		"ingest_path": cfg.HTTP.IngestPath,
		"api_prefix":  cfg.HTTP.APIPrefix,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("ingest.http.%s must start with /", name)
		}
	}
	if !cfg.NATS.Enabled {
		return nil
	}
	for i, url := range cfg.NATS.URL {
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("ingest.nats.url[%d] is empty", i)
		}
	}
	if cfg.NATS.NackDelayMS < 0 {
		return errors.New("ingest.nats.nack_delay_ms must be >=0")
	}
	if cfg.NATS.MaxDeliver == 0 || cfg.NATS.MaxDeliver < -1 {
		return errors.New("ingest.nats.max_deliver must be -1 or >0")
	}
	return nil
}

// validateNotify validates notification channels and templates.
// Params: notify settings.
// Returns: validation error.
func validateNotify(cfg NotifyConfig) error {
	if !domain.Severity(cfg.MinSeverity).IsKnown() {
		return fmt.Errorf("notify.min_severity has unsupported value %q", cfg.MinSeverity)
	}
	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.BotToken) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "" {
			return errors.New("notify.telegram.bot_token and chat_id are required when enabled")
		}
	}
	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.URL) == "" {
		return errors.New("notify.http.url is required when enabled")
	}
	if cfg.Slack.Enabled {
		if strings.TrimSpace(cfg.Slack.BotToken) == "" || strings.TrimSpace(cfg.Slack.ChannelID) == "" {
			return errors.New("notify.slack.bot_token and channel_id are required when enabled")
		}
	}
	for _, channel := range notifyChannelOrder {
		if !NotifyChannelEnabled(cfg, channel) {
			continue
		}
		if err := validateMessageTemplate("notify."+channel+".message", NotifyChannelMessage(cfg, channel)); err != nil {
			return err
		}
		retry := NotifyChannelRetry(cfg, channel)
		if retry.Enabled {
			switch strings.ToLower(retry.Backoff) {
			case "fixed", "exponential":
			default:
				return fmt.Errorf("notify.%s.retry.backoff has unsupported value %q", channel, retry.Backoff)
			}
		}
	}
	return nil
}

// NotifyChannelNames returns supported channels in deterministic order.
// Params: none.
// Returns: channel keys.
func NotifyChannelNames() []string {
	out := make([]string, len(notifyChannelOrder))
	copy(out, notifyChannelOrder)
	return out
}

// NotifyChannelEnabled reports whether channel is enabled.
// Params: notify config and channel key.
// Returns: enabled flag.
func NotifyChannelEnabled(cfg NotifyConfig, channel string) bool {
	switch channel {
	case NotifyChannelTelegram:
		return cfg.Telegram.Enabled
	case NotifyChannelHTTP:
		return cfg.HTTP.Enabled
	case NotifyChannelSlack:
		return cfg.Slack.Enabled
	default:
		return false
	}
}

// NotifyChannelRetry returns retry policy for channel.
// Params: notify config and channel key.
// Returns: retry policy.
func NotifyChannelRetry(cfg NotifyConfig, channel string) NotifyRetry {
	switch channel {
	case NotifyChannelTelegram:
		return cfg.Telegram.Retry
	case NotifyChannelHTTP:
		return cfg.HTTP.Retry
	case NotifyChannelSlack:
		return cfg.Slack.Retry
	default:
		return NotifyRetry{}
	}
}

// NotifyChannelMessage returns message template body for channel.
// Params: notify config and channel key.
// Returns: template body.
func NotifyChannelMessage(cfg NotifyConfig, channel string) string {
	switch channel {
	case NotifyChannelTelegram:
		return cfg.Telegram.Message
	case NotifyChannelHTTP:
		return cfg.HTTP.Message
	case NotifyChannelSlack:
		return cfg.Slack.Message
	default:
		return ""
	}
}

// normalizeURLs trims and drops empty URL entries.
// Params: raw URL list.
// Returns: normalized list.
func normalizeURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// validateMessageTemplate validates one notification template body.
// Params: config path and template body.
// Returns: parse error.
func validateMessageTemplate(path, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("%s is required", path)
	}
	if _, err := templatefmt.ParseNotificationTemplate(path, trimmed); err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error", "panic":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
