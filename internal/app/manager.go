package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"cshealth/internal/aggregate"
	"cshealth/internal/clock"
	"cshealth/internal/config"
	"cshealth/internal/domain"
	"cshealth/internal/engine"
	"cshealth/internal/lifecycle"
	"cshealth/internal/notify"
	"cshealth/internal/notifyqueue"
	"cshealth/internal/playbook"
	"cshealth/internal/scoring"
)

const day = 24 * time.Hour

// Enqueuer accepts notification jobs for asynchronous delivery.
type Enqueuer interface {
	Enqueue(job notifyqueue.Job) error
}

// Manager coordinates enrichment, scoring, alert generation, lifecycle merge, and notifications.
// Params: runtime config, lifecycle store, aggregator, playbook catalog, logger, and clock.
// Returns: report sink, periodic re-scoring entrypoint, and query surface.
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*accountState

	// evalMu serializes score/alert passes so previous health is read and replaced atomically.
	evalMu sync.Mutex

	scoring    scoring.Config
	engine     *engine.Engine
	aggregator *aggregate.Aggregator
	store      lifecycle.Store
	playbooks  *playbook.Catalog
	dispatcher *notify.Dispatcher
	queue      Enqueuer
	logger     *slog.Logger
	clock      clock.Clock
}

type accountState struct {
	report      domain.UsageReport
	receivedAt  time.Time
	segment     string
	tier        string
	inputs      domain.AlertGenerationInput
	health      domain.AccountHealth
	alerts      []domain.Alert
	evaluatedAt time.Time
}

// NewManager creates manager with initial configuration.
// Params: config snapshot, logger, lifecycle store, aggregator, playbook catalog, and clock.
// Returns: initialized manager or scoring config error.
func NewManager(
	cfg config.Config,
	logger *slog.Logger,
	store lifecycle.Store,
	aggregator *aggregate.Aggregator,
	playbooks *playbook.Catalog,
	clk clock.Clock,
) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if aggregator == nil {
		aggregator = aggregate.New(nil, nil, aggregate.Options{}, logger)
	}
	if playbooks == nil {
		catalog, err := playbook.Default()
		if err != nil {
			return nil, err
		}
		playbooks = catalog
	}
	scoringCfg, err := scoring.ConfigFromSettings(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	return &Manager{
		accounts:   make(map[string]*accountState),
		scoring:    scoringCfg,
		engine:     buildEngine(cfg.Alerts, logger, clk),
		aggregator: aggregator,
		store:      store,
		playbooks:  playbooks,
		logger:     logger,
		clock:      clk,
	}, nil
}

func buildEngine(cfg config.AlertsConfig, logger *slog.Logger, clk clock.Clock) *engine.Engine {
	disabled := make([]domain.AlertType, 0, len(cfg.Disabled))
	for _, raw := range cfg.Disabled {
		disabled = append(disabled, domain.AlertType(strings.TrimSpace(raw)))
	}
	return engine.New(engine.WithoutTypes(engine.DefaultRules(), disabled), logger, clk)
}

// ApplyConfig swaps scoring weights and enabled rules from reloaded config.
// Params: validated config snapshot.
// Returns: scoring config error; manager keeps previous settings on failure.
func (m *Manager) ApplyConfig(cfg config.Config) error {
	scoringCfg, err := scoring.ConfigFromSettings(cfg.Scoring)
	if err != nil {
		return err
	}
	next := buildEngine(cfg.Alerts, m.logger, m.clock)
	m.mu.Lock()
	m.scoring = scoringCfg
	m.engine = next
	m.mu.Unlock()
	return nil
}

// SetNotifier swaps dispatcher and queue used for new alerts.
// Params: dispatcher (nil disables notifications) and queue (nil sends inline).
// Returns: none.
func (m *Manager) SetNotifier(dispatcher *notify.Dispatcher, queue Enqueuer) {
	m.mu.Lock()
	m.dispatcher = dispatcher
	m.queue = queue
	m.mu.Unlock()
}

// Push processes one incoming report from ingest interfaces.
// Params: context and validated report.
// Returns: lifecycle backend error.
func (m *Manager) Push(ctx context.Context, report domain.UsageReport) error {
	inputs := m.aggregator.Build(ctx, report)
	return m.evaluate(ctx, inputs, m.clock.Now())
}

// PushBatch processes batch of incoming reports with paced enrichment.
// Params: context and validated reports.
// Returns: first enrichment or lifecycle backend error.
func (m *Manager) PushBatch(ctx context.Context, reports []domain.UsageReport) error {
	all, err := m.aggregator.BuildAll(ctx, reports)
	if err != nil {
		return fmt.Errorf("aggregate batch: %w", err)
	}
	receivedAt := m.clock.Now()
	for _, inputs := range all {
		if err := m.evaluate(ctx, inputs, receivedAt); err != nil {
			return err
		}
	}
	return nil
}

// RescoreAll re-evaluates every known account from its latest report.
// Params: context for enrichment and lifecycle operations.
// Returns: first backend error; activity counters are aged by whole days since receipt.
func (m *Manager) RescoreAll(ctx context.Context) error {
	now := m.clock.Now()

	m.mu.RLock()
	reports := make([]domain.UsageReport, 0, len(m.accounts))
	for _, state := range m.accounts {
		reports = append(reports, ageReport(state.report, state.receivedAt, now))
	}
	m.mu.RUnlock()
	if len(reports) == 0 {
		return nil
	}

	all, err := m.aggregator.BuildAll(ctx, reports)
	if err != nil {
		return fmt.Errorf("aggregate rescore: %w", err)
	}
	for _, inputs := range all {
		if err := m.evaluateAt(ctx, inputs, now, false); err != nil {
			return err
		}
	}
	m.logger.Info("accounts rescored", "accounts", len(all))
	return nil
}

// ageReport advances recency counters by whole days elapsed since receipt.
func ageReport(report domain.UsageReport, receivedAt, now time.Time) domain.UsageReport {
	elapsed := int(now.Sub(receivedAt) / day)
	if elapsed <= 0 {
		return report
	}
	report.Usage.DaysSinceLastActivity += elapsed
	report.AccountAgeDays += elapsed
	return report
}

func (m *Manager) evaluate(ctx context.Context, inputs aggregate.Inputs, receivedAt time.Time) error {
	return m.evaluateAt(ctx, inputs, receivedAt, true)
}

// evaluateAt scores one account and records first-seen alerts.
// Rescore passes keep the stored report and receipt time so repeated passes never age twice.
func (m *Manager) evaluateAt(ctx context.Context, inputs aggregate.Inputs, receivedAt time.Time, replaceReport bool) error {
	accountID := inputs.Alerting.AccountID
	m.evalMu.Lock()
	defer m.evalMu.Unlock()

	now := m.clock.Now()
	m.mu.RLock()
	previous, known := m.accounts[accountID]
	scoringCfg := m.scoring
	rules := m.engine
	m.mu.RUnlock()

	scoringInput := inputs.Scoring
	var previousHealth *domain.AccountHealth
	if known {
		prior := previous.health
		previousHealth = &prior
		if scoringInput.PreviousScore == nil {
			score := prior.Score
			scoringInput.PreviousScore = &score
		}
	}
	health := scoring.CalculateHealthScore(scoringInput, scoringCfg, now)

	alerting := inputs.Alerting
	alerting.Health = &health
	alerting.PreviousHealth = previousHealth
	alerts := rules.Generate(alerting)

	fresh := make([]domain.Alert, 0, len(alerts))
	for _, alert := range alerts {
		stored, err := m.store.Get(ctx, alert.ID)
		switch {
		case err == nil:
			continue
		case errors.Is(err, lifecycle.ErrNotFound):
		default:
			return fmt.Errorf("load lifecycle %s: %w", alert.ID, err)
		}
		firstSeen := alert.CreatedAt
		result, err := m.store.Upsert(ctx, alert.ID, domain.AlertUpdate{FirstSeenAt: &firstSeen})
		if err != nil {
			return fmt.Errorf("record first seen %s: %w", alert.ID, err)
		}
		stored = result.Stored
		fresh = append(fresh, lifecycle.MergeAlert(alert, &stored, now))
	}

	state := &accountState{
		report:      inputs.Report,
		receivedAt:  receivedAt,
		segment:     scoringInput.Segment,
		tier:        scoringInput.Tier,
		inputs:      alerting,
		health:      health,
		alerts:      alerts,
		evaluatedAt: now,
	}
	m.mu.Lock()
	if !replaceReport && known {
		state.report = previous.report
		state.receivedAt = previous.receivedAt
	}
	m.accounts[accountID] = state
	m.mu.Unlock()

	m.logger.Debug("account evaluated",
		"account_id", accountID,
		"score", health.Score,
		"grade", health.Grade,
		"alerts", len(alerts),
		"new_alerts", len(fresh),
	)
	for _, alert := range fresh {
		m.notifyNew(ctx, alert, health)
	}
	return nil
}

// notifyNew hands first-seen alert to dispatcher when it passes severity floor.
func (m *Manager) notifyNew(ctx context.Context, alert domain.Alert, health domain.AccountHealth) {
	m.mu.RLock()
	dispatcher, queue := m.dispatcher, m.queue
	m.mu.RUnlock()
	if dispatcher == nil || !dispatcher.Enabled() || !dispatcher.ShouldNotify(alert) {
		return
	}

	score := health.Score
	notification := domain.Notification{
		Alert:       alert,
		HealthScore: &score,
		HealthGrade: health.Grade,
		Timestamp:   m.clock.Now(),
	}
	if alert.Playbook != "" {
		notification.PlaybookName = m.playbooks.Name(alert.Playbook)
	}

	if queue != nil {
		job := notifyqueue.Job{Notification: notification, CreatedAt: notification.Timestamp}
		if err := queue.Enqueue(job); err != nil {
			m.logger.Error("notification enqueue failed", "alert_id", alert.ID, "error", err.Error())
		}
		return
	}
	if err := dispatcher.Notify(ctx, notification); err != nil {
		m.logger.Error("notification failed", "alert_id", alert.ID, "error", err.Error())
	}
}

// ProcessQueuedNotification delivers one queued notification job.
// Params: context and queued job.
// Returns: joined channel errors.
func (m *Manager) ProcessQueuedNotification(ctx context.Context, job notifyqueue.Job) error {
	m.mu.RLock()
	dispatcher := m.dispatcher
	m.mu.RUnlock()
	if dispatcher == nil {
		return nil
	}
	return dispatcher.Notify(ctx, job.Notification)
}

// UpdateAlert applies lifecycle update for alert ID.
// Params: context, alert ID, and partial update.
// Returns: changed fields and created note; unknown but well-formed IDs create new state.
func (m *Manager) UpdateAlert(ctx context.Context, alertID string, update domain.AlertUpdate) (lifecycle.UpsertResult, error) {
	if _, _, ok := engine.ParseAlertID(alertID); !ok {
		return lifecycle.UpsertResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidAlertID, alertID)
	}
	update.FirstSeenAt = nil
	result, err := m.store.Upsert(ctx, alertID, update)
	if err != nil {
		return lifecycle.UpsertResult{}, err
	}
	if len(result.Changed) > 0 {
		m.logger.Info("alert updated", "alert_id", alertID, "changed", strings.Join(result.Changed, ","))
	}
	return result, nil
}

// Account returns unified view for one account.
// Params: context and account ID.
// Returns: account view or domain.ErrAccountNotFound.
func (m *Manager) Account(_ context.Context, accountID string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.accounts[accountID]
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: %q", domain.ErrAccountNotFound, accountID)
	}
	return state.view(accountID), nil
}

// Accounts lists all known accounts, weakest health first.
// Params: context.
// Returns: account views ordered by score ascending then ID.
func (m *Manager) Accounts(_ context.Context) ([]domain.Account, error) {
	m.mu.RLock()
	out := make([]domain.Account, 0, len(m.accounts))
	for accountID, state := range m.accounts {
		out = append(out, state.view(accountID))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Health.Score != out[j].Health.Score {
			return out[i].Health.Score < out[j].Health.Score
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out, nil
}

// Alerts lists current alerts merged with lifecycle state.
// Params: context and filter; AccountID limits listing to one account.
// Returns: filtered alerts in severity/ARR order, or lifecycle backend error.
func (m *Manager) Alerts(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	m.mu.RLock()
	if filter.AccountID != "" {
		if _, ok := m.accounts[filter.AccountID]; !ok {
			m.mu.RUnlock()
			return nil, fmt.Errorf("%w: %q", domain.ErrAccountNotFound, filter.AccountID)
		}
	}
	generated := make([]domain.Alert, 0, len(m.accounts)*2)
	for accountID, state := range m.accounts {
		if filter.AccountID != "" && accountID != filter.AccountID {
			continue
		}
		generated = append(generated, state.alerts...)
	}
	m.mu.RUnlock()

	stored, err := m.storedIndex(ctx, generated)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	out := make([]domain.Alert, 0, len(generated))
	for _, alert := range generated {
		var lifecycleState *domain.StoredUpdate
		if s, ok := stored[alert.ID]; ok {
			lifecycleState = &s
		}
		merged := lifecycle.MergeAlert(alert, lifecycleState, now)
		if filter.Match(merged) {
			out = append(out, merged)
		}
	}
	engine.SortAlerts(out)
	return out, nil
}

// storedIndex loads lifecycle state for alerts; small sets use point reads.
func (m *Manager) storedIndex(ctx context.Context, alerts []domain.Alert) (map[string]domain.StoredUpdate, error) {
	index := make(map[string]domain.StoredUpdate, len(alerts))
	if len(alerts) <= 16 {
		for _, alert := range alerts {
			stored, err := m.store.Get(ctx, alert.ID)
			if errors.Is(err, lifecycle.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load lifecycle %s: %w", alert.ID, err)
			}
			index[alert.ID] = stored
		}
		return index, nil
	}
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle: %w", err)
	}
	for _, stored := range all {
		index[stored.AlertID] = stored
	}
	return index, nil
}

func (s *accountState) view(accountID string) domain.Account {
	return domain.Account{
		AccountID:   accountID,
		AccountName: s.inputs.AccountName,
		OwnerID:     s.inputs.OwnerID,
		OwnerName:   s.inputs.OwnerName,
		Segment:     s.segment,
		Tier:        s.tier,
		Health:      s.health,
		Usage:       s.inputs.Usage,
		Commercial:  s.inputs.Commercial,
		Support:     s.inputs.Support,
		ARR:         s.inputs.ARR,
		AlertCount:  len(s.alerts),
		ReceivedAt:  s.receivedAt,
		EvaluatedAt: s.evaluatedAt,
	}
}
