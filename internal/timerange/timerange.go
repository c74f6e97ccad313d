// Package timerange resolves compact time specs ("17", "17:30", "2bs", "1ar")
// to minutes since midnight and evaluates whether a moment falls inside a range.
package timerange

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the modulus every resolved time is normalized into.
const MinutesPerDay = 24 * 60

var (
	// ErrMalformedTimeSpec is returned for specs that fail the grammar or cannot be resolved.
	ErrMalformedTimeSpec = errors.New("malformed time spec")
	// ErrSunReferenceUnavailable is returned when a sunrise/sunset-relative spec cannot be
	// anchored, e.g. at polar latitudes. It is always reported together with ErrMalformedTimeSpec.
	ErrSunReferenceUnavailable = errors.New("sun reference unavailable")
)

// Reference is the anchor of a spec.
type Reference int

const (
	ReferenceClock Reference = iota
	ReferenceSunrise
	ReferenceSunset
)

// String returns the reference name.
func (r Reference) String() string {
	switch r {
	case ReferenceSunrise:
		return "sunrise"
	case ReferenceSunset:
		return "sunset"
	default:
		return "clock"
	}
}

// Direction tells whether the offset is applied before or after the reference.
type Direction int

const (
	DirectionAfter Direction = iota
	DirectionBefore
)

// Spec is a parsed time-range endpoint
type Spec struct {
	Raw       string
	Hour      int
	Minute    int
	Reference Reference
	Direction Direction
}

// Match patterns like "7", "17:30", "2bs", "0:30ar"
var specPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?(?:([ba])([sr]))?$`)

// Parse parses a time spec of the form HH[:MM][(b|a)(s|r)].
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	matches := specPattern.FindStringSubmatch(s)
	if matches == nil {
		return Spec{}, fmt.Errorf("%w: %q", ErrMalformedTimeSpec, raw)
	}

	hour, _ := strconv.Atoi(matches[1])
	minute := 0
	if matches[2] != "" {
		minute, _ = strconv.Atoi(matches[2])
	}
	if hour > 23 {
		return Spec{}, fmt.Errorf("%w: invalid hour %d in %q", ErrMalformedTimeSpec, hour, raw)
	}
	if minute > 59 {
		return Spec{}, fmt.Errorf("%w: invalid minute %d in %q", ErrMalformedTimeSpec, minute, raw)
	}

	spec := Spec{Raw: s, Hour: hour, Minute: minute}
	if matches[3] != "" {
		if matches[3] == "b" {
			spec.Direction = DirectionBefore
		}
		spec.Reference = ReferenceSunset
		if matches[4] == "r" {
			spec.Reference = ReferenceSunrise
		}
	}
	return spec, nil
}

// IsFixed returns true for absolute clock times.
func (s Spec) IsFixed() bool {
	return s.Reference == ReferenceClock
}

// String returns the original spec string
func (s Spec) String() string {
	return s.Raw
}

// SunTimesProvider supplies sunrise and sunset for the date of the given moment.
// Implementations must be free of side effects.
type SunTimesProvider interface {
	SunTimes(date time.Time) (sunrise, sunset time.Time, err error)
}

// Match is the outcome of a range evaluation.
// Duration is the width of the range in minutes, used to prefer narrower ranges.
type Match struct {
	Matched  bool
	Duration int
}

// Resolver evaluates specs against wall-clock time in a fixed timezone.
type Resolver struct {
	sun SunTimesProvider
	tz  *time.Location
}

// NewResolver creates a resolver. sun may be nil, in which case only fixed specs resolve.
func NewResolver(sun SunTimesProvider, tz *time.Location) *Resolver {
	if tz == nil {
		tz = time.Local
	}
	return &Resolver{sun: sun, tz: tz}
}

// ResolveMinutes parses spec and resolves it for the day of now, in [0, MinutesPerDay).
func (r *Resolver) ResolveMinutes(spec string, now time.Time) (int, error) {
	parsed, err := Parse(spec)
	if err != nil {
		return 0, err
	}
	return r.Minutes(parsed, now)
}

// Minutes resolves an already parsed spec for the day of now.
func (r *Resolver) Minutes(spec Spec, now time.Time) (int, error) {
	if spec.IsFixed() {
		return normalize(spec.Hour*60 + spec.Minute), nil
	}

	if r.sun == nil {
		return 0, fmt.Errorf("%w: %w: no sun times provider for %q", ErrMalformedTimeSpec, ErrSunReferenceUnavailable, spec.Raw)
	}
	sunrise, sunset, err := r.sun.SunTimes(now.In(r.tz))
	if err != nil {
		return 0, fmt.Errorf("%w: %w: %q: %w", ErrMalformedTimeSpec, ErrSunReferenceUnavailable, spec.Raw, err)
	}

	ref := sunset
	if spec.Reference == ReferenceSunrise {
		ref = sunrise
	}
	if ref.IsZero() {
		return 0, fmt.Errorf("%w: %w: no %s for %q", ErrMalformedTimeSpec, ErrSunReferenceUnavailable, spec.Reference, spec.Raw)
	}
	ref = ref.In(r.tz)

	var hour, minute int
	if spec.Direction == DirectionAfter {
		hour = ref.Hour() + spec.Hour
		minute = ref.Minute() + spec.Minute
	} else {
		// Reference first, offset second; may go negative and is normalized below.
		hour = ref.Hour() - spec.Hour
		minute = ref.Minute() - spec.Minute
	}
	return normalize(hour*60 + minute), nil
}

// InRange reports whether now lies within [start, end], both inclusive.
// A range whose end precedes its start spans midnight.
// A spec that fails to resolve yields a non-matching, zero-duration result and the error.
func (r *Resolver) InRange(startSpec, endSpec string, now time.Time) (Match, error) {
	start, err := r.ResolveMinutes(startSpec, now)
	if err != nil {
		return Match{}, err
	}
	end, err := r.ResolveMinutes(endSpec, now)
	if err != nil {
		return Match{}, err
	}

	local := now.In(r.tz)
	current := local.Hour()*60 + local.Minute()

	if end < start {
		end += MinutesPerDay
	}
	if current < start {
		current += MinutesPerDay
	}

	return Match{
		Matched:  start <= current && current <= end,
		Duration: end - start,
	}, nil
}

// Timezone returns the resolver's timezone
func (r *Resolver) Timezone() *time.Location {
	return r.tz
}

// normalize maps any minute count, including negative ones, into [0, MinutesPerDay).
func normalize(minutes int) int {
	return ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
}
