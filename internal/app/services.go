package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vanviegen/lightlynx-sub001/internal/config"
	"github.com/vanviegen/lightlynx-sub001/internal/db"
	"github.com/vanviegen/lightlynx-sub001/internal/engine"
	"github.com/vanviegen/lightlynx-sub001/internal/geo"
	"github.com/vanviegen/lightlynx-sub001/internal/ledger"
	"github.com/vanviegen/lightlynx-sub001/internal/timerange"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger // nil when disabled

	GeoCalc  *geo.Calculator
	Resolver *timerange.Resolver

	// High-level services
	Zigbee     *ZigbeeService
	Automation *AutomationService
	Health     *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	if cfg.Ledger.IsEnabled() {
		s.Ledger = ledger.New(database.DB)
	}

	tz, err := cfg.Geo.Location()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Geo.Timezone, err)
	}

	location, err := resolveLocation(cfg.Geo, geo.NewCache(database.DB))
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Info().
		Str("name", location.Name).
		Float64("lat", location.Latitude).
		Float64("lon", location.Longitude).
		Str("timezone", tz.String()).
		Msg("Using location for sun times")

	s.GeoCalc = geo.NewCalculator(location, tz)
	s.Resolver = timerange.NewResolver(s.GeoCalc, tz)

	s.Zigbee = NewZigbeeService(cfg)
	s.Automation = NewAutomationService(cfg, s.Resolver, s.Ledger)
	s.Health = NewHealthService(cfg, s.Ready, s.status, s.Ledger)

	return s, nil
}

// resolveLocation uses configured coordinates, or geocodes the configured name.
func resolveLocation(cfg config.GeoConfig, cache *geo.Cache) (geo.Location, error) {
	if cfg.HasCoordinates() {
		return geo.Location{Name: cfg.Name, Latitude: cfg.Lat, Longitude: cfg.Lon}, nil
	}

	log.Warn().Str("name", cfg.Name).Msg("No lat/lon configured, will use Nominatim geocoding (cached in SQLite)")
	geocoder := geo.NewGeocoder(geo.DefaultNominatimURL, cfg.HTTPTimeout.Duration(), cache)

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.HTTPTimeout.Duration())
	defer cancel()
	location, err := geocoder.Lookup(ctx, cfg.Name)
	if err != nil {
		return geo.Location{}, fmt.Errorf("failed to geocode %q: %w", cfg.Name, err)
	}
	return location, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.Zigbee.Start(ctx); err != nil {
		return err
	}

	if err := s.Automation.Start(ctx, s.Zigbee.Gateway, s.Zigbee.Gateway); err != nil {
		return err
	}

	s.Health.Start(ctx)
	return nil
}

// Ready reports whether the broker, the gateway and the engine are all up.
func (s *Services) Ready() bool {
	return s.Zigbee.Ready() && s.Automation.Ready()
}

func (s *Services) status(ctx context.Context) (engine.Status, error) {
	if s.Automation.Engine == nil {
		return engine.Status{}, engine.ErrStopped
	}
	return s.Automation.Engine.Status(ctx)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Automation != nil {
		s.Automation.Close()
	}
	if s.Zigbee != nil {
		s.Zigbee.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
