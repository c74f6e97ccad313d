package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultNominatimURL is the public OpenStreetMap search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"

// ErrLocationNotFound is returned when a place name has no geocoding result.
var ErrLocationNotFound = errors.New("location not found")

// Geocoder resolves place names via Nominatim, consulting an optional persistent cache first.
type Geocoder struct {
	client    *http.Client
	endpoint  string
	userAgent string
	timeout   time.Duration
	cache     *Cache
}

// NewGeocoder creates a geocoder. cache may be nil.
func NewGeocoder(endpoint string, timeout time.Duration, cache *Cache) *Geocoder {
	if endpoint == "" {
		endpoint = DefaultNominatimURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Geocoder{
		client:    &http.Client{},
		endpoint:  endpoint,
		userAgent: "lightlynx/1.0",
		timeout:   timeout,
		cache:     cache,
	}
}

// Lookup returns the coordinates of a place name.
func (g *Geocoder) Lookup(ctx context.Context, query string) (Location, error) {
	if g.cache != nil {
		if loc, ok := g.cache.Get(ctx, query); ok {
			return loc, nil
		}
	}

	loc, err := g.search(ctx, query)
	if err != nil {
		return Location{}, err
	}

	if g.cache != nil {
		if err := g.cache.Put(ctx, query, loc); err != nil {
			log.Warn().Err(err).Str("query", query).Msg("Failed to write geocache")
		}
	}
	return loc, nil
}

func (g *Geocoder) search(ctx context.Context, query string) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Location{}, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geocoding failed with status %d", resp.StatusCode)
	}

	var results []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Location{}, fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if len(results) == 0 {
		return Location{}, fmt.Errorf("%w: %s", ErrLocationNotFound, query)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Location{}, fmt.Errorf("invalid latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Location{}, fmt.Errorf("invalid longitude %q: %w", results[0].Lon, err)
	}

	loc := Location{Name: results[0].DisplayName, Latitude: lat, Longitude: lon}
	log.Info().
		Str("query", query).
		Str("resolved", loc.Name).
		Float64("lat", lat).
		Float64("lon", lon).
		Msg("Location geocoded via Nominatim")
	return loc, nil
}
