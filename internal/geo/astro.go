// Package geo computes sunrise and sunset for a fixed location and resolves
// place names to coordinates.
package geo

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoSunEvent is returned when the sun does not cross the horizon on a date
// (polar day or night).
var ErrNoSunEvent = errors.New("sun does not rise or set")

// Horizon angles in degrees
const (
	horizonSunriseSunset = -0.833
	horizonCivilTwilight = -6.0
)

// Location is a point on earth.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Day holds the solar events of one calendar day.
// Dawn and Dusk are zero when civil twilight does not occur.
type Day struct {
	Dawn    time.Time `json:"dawn"`
	Sunrise time.Time `json:"sunrise"`
	Noon    time.Time `json:"noon"`
	Sunset  time.Time `json:"sunset"`
	Dusk    time.Time `json:"dusk"`
}

// Calculator computes solar events for one location, caching them per day.
type Calculator struct {
	location Location
	tz       *time.Location

	mu    sync.RWMutex
	cache map[string]cachedDay // by local date "2006-01-02"
}

type cachedDay struct {
	day Day
	err error
}

// NewCalculator creates a calculator. A nil tz means time.Local.
func NewCalculator(location Location, tz *time.Location) *Calculator {
	if tz == nil {
		tz = time.Local
	}

	log.Info().
		Str("name", location.Name).
		Float64("lat", location.Latitude).
		Float64("lon", location.Longitude).
		Str("timezone", tz.String()).
		Msg("Sun calculator initialized")

	return &Calculator{
		location: location,
		tz:       tz,
		cache:    make(map[string]cachedDay),
	}
}

// Location returns the calculator's location
func (c *Calculator) Location() Location {
	return c.location
}

// Day returns the solar events for the calendar day of date in the calculator's timezone.
func (c *Calculator) Day(date time.Time) (Day, error) {
	local := date.In(c.tz)
	key := local.Format("2006-01-02")

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached.day, cached.err
	}

	day, err := calculate(c.location.Latitude, c.location.Longitude, local, c.tz)

	c.mu.Lock()
	c.cache[key] = cachedDay{day: day, err: err}
	c.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("date", key).Msg("No sunrise or sunset")
	}
	return day, err
}

// SunTimes returns sunrise and sunset for the day of date.
func (c *Calculator) SunTimes(date time.Time) (sunrise, sunset time.Time, err error) {
	day, err := c.Day(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day.Sunrise, day.Sunset, nil
}

// calculate evaluates the NOAA sunrise equation for the local date.
func calculate(lat, lon float64, local time.Time, tz *time.Location) (Day, error) {
	// The equation expects the Julian day at noon
	jd := julianDay(local) + 0.5
	transit, declination := solarTransit(jd, lon)

	day := Day{Noon: fromJulian(transit, tz)}

	omega, ok := hourAngle(lat, declination, horizonSunriseSunset)
	if !ok {
		return day, fmt.Errorf("%w: %s at %.4f,%.4f", ErrNoSunEvent, local.Format("2006-01-02"), lat, lon)
	}
	day.Sunrise = fromJulian(transit-omega/360.0, tz)
	day.Sunset = fromJulian(transit+omega/360.0, tz)

	if omega, ok := hourAngle(lat, declination, horizonCivilTwilight); ok {
		day.Dawn = fromJulian(transit-omega/360.0, tz)
		day.Dusk = fromJulian(transit+omega/360.0, tz)
	}
	return day, nil
}

// julianDay converts a calendar date to the Julian day number at midnight.
func julianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

// solarTransit returns the Julian date of solar noon and the sun's declination in radians.
func solarTransit(jd, lon float64) (transit, declination float64) {
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	// Solar mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := radians(m)

	// Equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// Ecliptic longitude
	lambdaRad := radians(math.Mod(m+c+180+102.9372, 360.0))

	transit = 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)
	declination = math.Asin(math.Sin(lambdaRad) * math.Sin(radians(23.44)))
	return transit, declination
}

// hourAngle returns the hour angle in degrees at which the sun crosses angle.
// Returns false when it never does.
func hourAngle(lat, declination, angle float64) (float64, bool) {
	latRad := radians(lat)
	cosOmega := (math.Sin(radians(angle)) - math.Sin(latRad)*math.Sin(declination)) /
		(math.Cos(latRad) * math.Cos(declination))
	if cosOmega < -1 || cosOmega > 1 || math.IsNaN(cosOmega) {
		return 0, false
	}
	return math.Acos(cosOmega) * 180.0 / math.Pi, true
}

// fromJulian converts a Julian date to an instant in tz.
func fromJulian(jd float64, tz *time.Location) time.Time {
	unix := (jd - 2440587.5) * 86400.0
	sec := math.Floor(unix)
	return time.Unix(int64(sec), int64((unix-sec)*1e9)).In(tz)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
