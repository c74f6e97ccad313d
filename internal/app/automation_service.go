package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vanviegen/lightlynx-sub001/internal/config"
	"github.com/vanviegen/lightlynx-sub001/internal/engine"
	"github.com/vanviegen/lightlynx-sub001/internal/ledger"
	"github.com/vanviegen/lightlynx-sub001/internal/timerange"
)

// AutomationService runs the automation engine and the ledger retention loop.
type AutomationService struct {
	cfg      *config.Config
	resolver *timerange.Resolver
	ledger   *ledger.Ledger   // nil when disabled
	recorder *ledger.Recorder // nil when disabled

	Engine *engine.Engine
}

// NewAutomationService creates the service. l may be nil.
func NewAutomationService(cfg *config.Config, resolver *timerange.Resolver, l *ledger.Ledger) *AutomationService {
	return &AutomationService{
		cfg:      cfg,
		resolver: resolver,
		ledger:   l,
	}
}

// Start builds the engine on top of gateway and starts it.
func (s *AutomationService) Start(ctx context.Context, gateway engine.Gateway, sink engine.CommandSink) error {
	opts := engine.Options{
		TickInterval:   s.cfg.Automation.TickInterval.Duration(),
		DebounceWindow: s.cfg.Automation.Debounce.Duration(),
		TimeTransition: config.Seconds(s.cfg.Automation.TimeTransition),
		IdleTransition: config.Seconds(s.cfg.Automation.IdleTransition),
		QueueSize:      s.cfg.EventBus.GetQueueSize(),
	}

	if s.ledger != nil {
		s.recorder = ledger.NewRecorder(sink, s.ledger)
		sink = s.recorder
		opts.OnRebuild = s.recorder.RecordRebuild
		go s.runLedgerCleanup(ctx)
	}

	s.Engine = engine.New(gateway, sink, s.resolver, opts)
	return s.Engine.Start(ctx)
}

// Ready reports whether the engine has built its catalog.
func (s *AutomationService) Ready() bool {
	return s.Engine != nil && s.Engine.Ready()
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *AutomationService) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// Close stops the engine, then flushes the ledger records it left queued.
func (s *AutomationService) Close() {
	if s.Engine != nil {
		s.Engine.Stop()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
}
