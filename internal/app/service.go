package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"cshealth/internal/aggregate"
	"cshealth/internal/api"
	"cshealth/internal/clock"
	"cshealth/internal/config"
	"cshealth/internal/ingest"
	"cshealth/internal/lifecycle"
	"cshealth/internal/logging"
	"cshealth/internal/notify"
	"cshealth/internal/notifyqueue"
	"cshealth/internal/playbook"
	"cshealth/internal/schedule"
)

const shutdownTimeout = 10 * time.Second

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable health scoring service.
type Service struct {
	source    config.ConfigSource
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	store     lifecycle.Store
	playbooks *playbook.Catalog
	manager   *Manager
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	notifyQ   *notifyqueue.Queue
	scheduler *schedule.Runner
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = logger.With("service", cfg.Service.Name)

	service := &Service{
		source:   source,
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		clock:    clk,
	}
	if err := service.build(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	return service, nil
}

func (s *Service) build() error {
	playbooks, err := playbook.Load(s.cfg.Playbooks.File)
	if err != nil {
		return err
	}
	s.playbooks = playbooks

	store, err := lifecycle.Open(s.cfg.Store, s.clock)
	if err != nil {
		return err
	}
	s.store = store

	manager, err := NewManager(s.cfg, s.logger, store, buildAggregator(s.cfg, s.logger, s.clock), playbooks, s.clock)
	if err != nil {
		return err
	}
	s.manager = manager

	if err := s.buildNotifier(s.cfg); err != nil {
		return err
	}
	if err := s.buildScheduler(); err != nil {
		return err
	}
	s.buildHTTPServer()
	return s.buildNATSSubscriber()
}

// buildAggregator wires enabled CRM and billing sources into aggregator.
func buildAggregator(cfg config.Config, logger *slog.Logger, clk clock.Clock) *aggregate.Aggregator {
	var crm aggregate.CRMSource
	if cfg.Sources.HubSpot.Enabled {
		crm = aggregate.NewHubSpotSource(cfg.Sources.HubSpot, clk)
	}
	var billing aggregate.BillingSource
	if cfg.Sources.Stripe.Enabled {
		billing = aggregate.NewStripeSource(cfg.Sources.Stripe, clk)
	}
	return aggregate.New(crm, billing, aggregate.OptionsFromConfig(cfg.Aggregate), logger)
}

// Run starts service lifecycle and blocks until shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Ingest.HTTP.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.scheduler != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := s.scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("scheduler stopped", "error", err.Error())
			}
		}()
	}

	if s.cfg.Service.ReloadEnabled {
		reloadTicker := time.NewTicker(time.Duration(s.cfg.Service.ReloadIntervalSec) * time.Second)
		defer reloadTicker.Stop()
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-reloadTicker.C:
					if err := s.reloadConfig(); err != nil {
						s.logger.Error("reload failed", "error", err.Error())
					}
				}
			}
		}()
	}

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errChan:
		runErr = fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
	}
	cancel()
	workers.Wait()
	if err := s.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.notifyQ != nil {
		if err := s.notifyQ.Close(ctx); err != nil {
			s.logger.Error("notify queue drain failed", "error", err.Error())
			markErr(fmt.Errorf("notify queue close: %w", err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.notifyQ != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = s.notifyQ.Close(ctx)
		cancel()
		s.notifyQ = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires probes, report ingest, and presentation API.
// Params: none.
// Returns: none.
func (s *Service) buildHTTPServer() {
	httpCfg := s.cfg.Ingest.HTTP
	mux := http.NewServeMux()
	mux.HandleFunc(httpCfg.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(httpCfg.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})

	if httpCfg.Enabled {
		handler := ingest.NewHTTPHandler(s.manager, httpCfg.MaxBodyBytes, s.logger)
		mux.Handle(httpCfg.IngestPath, handler)
		batchPath := strings.TrimSuffix(httpCfg.IngestPath, "/") + "/batch"
		if batchPath != httpCfg.IngestPath {
			mux.Handle(batchPath, handler)
		}
	}

	prefix := strings.TrimRight(httpCfg.APIPrefix, "/")
	mux.Handle(prefix+"/", api.NewHandler(prefix, s.manager, s.playbooks, s.logger))

	s.httpSrv = &http.Server{
		Addr:              httpCfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildNATSSubscriber starts NATS ingest when enabled.
// Params: none.
// Returns: initialization error.
func (s *Service) buildNATSSubscriber() error {
	if !s.cfg.Ingest.NATS.Enabled {
		return nil
	}
	subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.manager, s.logger)
	if err != nil {
		return err
	}
	s.natsSub = subscriber
	return nil
}

// buildScheduler prepares periodic re-scoring when enabled.
// Params: none.
// Returns: cron parse error.
func (s *Service) buildScheduler() error {
	if !s.cfg.Schedule.Enabled {
		return nil
	}
	runner, err := schedule.New("rescore", s.cfg.Schedule.Cron, s.manager.RescoreAll, s.clock, s.logger)
	if err != nil {
		return err
	}
	s.scheduler = runner
	return nil
}

// buildNotifier creates dispatcher and delivery queue for config snapshot.
// Params: config snapshot.
// Returns: template error; queue is started only when a channel is enabled.
func (s *Service) buildNotifier(cfg config.Config) error {
	dispatcher, err := notify.NewDispatcher(cfg.Notify, s.logger)
	if err != nil {
		return err
	}
	if !dispatcher.Enabled() {
		s.manager.SetNotifier(nil, nil)
		return nil
	}
	if s.notifyQ == nil {
		s.notifyQ = notifyqueue.New(notifyqueue.Options{}, s.manager.ProcessQueuedNotification, s.logger)
	}
	s.manager.SetNotifier(dispatcher, s.notifyQ)
	s.logger.Info("notifications enabled", "channels", strings.Join(dispatcher.Channels(), ","), "min_severity", cfg.Notify.MinSeverity)
	return nil
}

// reloadConfig reloads config snapshot and applies scoring, rule, and notify changes.
// Params: none.
// Returns: load/apply error; previous snapshot stays active on failure.
func (s *Service) reloadConfig() error {
	nextCfg, err := config.LoadSnapshot(s.source)
	if err != nil {
		return err
	}
	if !sameStore(nextCfg.Store, s.cfg.Store) {
		return errors.New("store change requires restart")
	}
	if err := s.manager.ApplyConfig(nextCfg); err != nil {
		return err
	}
	if err := s.buildNotifier(nextCfg); err != nil {
		return err
	}
	s.cfg.Scoring = nextCfg.Scoring
	s.cfg.Alerts = nextCfg.Alerts
	s.cfg.Notify = nextCfg.Notify
	s.logger.Info("configuration reloaded")
	return nil
}

func sameStore(a, b config.StoreConfig) bool {
	return a.Backend == b.Backend &&
		a.SQLitePath == b.SQLitePath &&
		a.Bucket == b.Bucket &&
		strings.Join(a.NATSURL, ",") == strings.Join(b.NATSURL, ",")
}
