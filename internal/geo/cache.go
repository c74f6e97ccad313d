package geo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache persists geocoded locations so restarts do not hit Nominatim again.
type Cache struct {
	db *sql.DB
}

// NewCache creates a cache on the geocache table.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// Get looks up a previously geocoded query.
func (c *Cache) Get(ctx context.Context, query string) (Location, bool) {
	var loc Location
	err := c.db.QueryRowContext(ctx, `
		SELECT display_name, latitude, longitude
		FROM geocache
		WHERE query = ?
	`, query).Scan(&loc.Name, &loc.Latitude, &loc.Longitude)

	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, false
	}
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("Failed to read geocache")
		return Location{}, false
	}

	log.Debug().Str("query", query).Float64("lat", loc.Latitude).Float64("lon", loc.Longitude).Msg("Geocache hit")
	return loc, true
}

// Put stores a geocoded location, replacing any earlier entry for query.
func (c *Cache) Put(ctx context.Context, query string, loc Location) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO geocache (query, display_name, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, query, loc.Name, loc.Latitude, loc.Longitude, time.Now().Unix())
	if err != nil {
		return err
	}

	log.Info().Str("query", query).Float64("lat", loc.Latitude).Float64("lon", loc.Longitude).Msg("Geocache stored")
	return nil
}
