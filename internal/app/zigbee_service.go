package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/vanviegen/lightlynx-sub001/internal/config"
	"github.com/vanviegen/lightlynx-sub001/internal/eventbus"
	"github.com/vanviegen/lightlynx-sub001/internal/mqtt"
	"github.com/vanviegen/lightlynx-sub001/internal/z2m"
)

// ZigbeeService wraps the MQTT connection, the event bus and the zigbee2mqtt gateway.
type ZigbeeService struct {
	cfg *config.Config

	Client  *mqtt.Client
	Bus     *eventbus.Bus
	Gateway *z2m.Gateway
}

// NewZigbeeService creates the bus. The broker is contacted in Start.
func NewZigbeeService(cfg *config.Config) *ZigbeeService {
	return &ZigbeeService{
		cfg: cfg,
		Bus: eventbus.NewWithConfig(1, cfg.EventBus.GetQueueSize()),
	}
}

// Start connects to the broker and subscribes the gateway to the bridge topics.
func (s *ZigbeeService) Start(ctx context.Context) error {
	client, err := mqtt.Connect(ctx, s.cfg.MQTT)
	if err != nil {
		return err
	}
	s.Client = client

	s.Gateway = z2m.New(client, s.Bus, z2m.Options{
		BaseTopic:    s.cfg.MQTT.BaseTopic,
		QoS:          byte(s.cfg.MQTT.QoS),
		RateLimitRPS: s.cfg.MQTT.RateLimitRPS,
	})
	if err := s.Gateway.Start(ctx); err != nil {
		return err
	}

	client.SetOnDisconnect(func(err error) {
		log.Warn().Err(err).Msg("Lost connection to broker, commands will fail until reconnected")
	})
	return nil
}

// Ready reports whether the broker is connected and the bridge groups are known.
func (s *ZigbeeService) Ready() bool {
	return s.Client != nil && s.Client.IsConnected() && s.Gateway != nil && s.Gateway.Ready()
}

// Close releases all resources.
func (s *ZigbeeService) Close() {
	if s.Gateway != nil {
		s.Gateway.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.Client != nil {
		s.Client.Close()
	}
}
