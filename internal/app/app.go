// Package app wires configuration, storage, the zigbee2mqtt gateway and the
// automation engine into a runnable process.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/vanviegen/lightlynx-sub001/internal/config"
)

// App runs one lightlynx controller: a broker connection, the zigbee2mqtt
// gateway on top of it and the automation engine driving the groups.
type App struct {
	cfg      *config.Config
	services *Services

	// Cancelled by Stop; Wait returns once it is done.
	ctx    context.Context
	cancel context.CancelFunc
}

// New opens the database and resolves the sun-times location.
// Nothing talks to the broker until Start.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Start connects to the broker, subscribes the gateway to the bridge topics
// and starts the automation engine. Cancelling ctx ends Wait.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx); err != nil {
		return err
	}

	log.Info().
		Str("broker", a.cfg.MQTT.Broker).
		Str("base_topic", a.cfg.MQTT.BaseTopic).
		Msg("LightLynx automation started")
	return nil
}

// Stop halts the engine first so no command is queued after the broker goes away.
func (a *App) Stop() error {
	log.Info().Msg("Stopping automation")

	if a.cancel != nil {
		a.cancel()
	}
	if a.services == nil {
		return nil
	}
	return a.services.Stop()
}

// Wait blocks until the controller is told to stop.
func (a *App) Wait() {
	if a.ctx == nil {
		return
	}
	<-a.ctx.Done()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		log.Warn().Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
