package catalog

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoTrigger is returned for scene names without a trailing "(trigger)".
	ErrNoTrigger = errors.New("scene name has no trigger")
	// ErrMalformedSceneKey is returned for scene metadata keys not shaped "<sceneID>_<groupID>".
	ErrMalformedSceneKey = errors.New("malformed scene key")
)

var (
	// Match names like "Evening (single)", "  Night ( 22:00-6ar )  "
	sceneNamePattern = regexp.MustCompile(`^\s*(.*?)\s*\(([^()]+)\)\s*$`)
	// Match triggers like "08:00-20:00", "1bs-23", "6ar-10"
	timeTriggerPattern = regexp.MustCompile(`^([0-9:abrs]+)-([0-9:abrs]+)$`)
	// Match descriptions containing "lightlynx-timeout 30s", "lightlynx-timeout 5m"
	timeoutPattern = regexp.MustCompile(`lightlynx-timeout\s+(\d+)([smh])`)
	// Match descriptions containing "lightlynx-groups 1,2,3"
	groupRefsPattern = regexp.MustCompile(`lightlynx-groups\s+(\d+(?:\s*,\s*\d+)*)`)
)

// Trigger is the parsed form of a scene display name.
type Trigger struct {
	Label string // name without the parenthetical
	Name  string // bucket name; TimeTrigger for time ranges
	Start string // time-range start spec, TimeTrigger only
	End   string // time-range end spec, TimeTrigger only
}

// IsTimed returns true for time-range triggers.
func (t Trigger) IsTimed() bool {
	return t.Name == TimeTrigger
}

// ParseSceneName extracts the trigger from a name shaped "<label> (<trigger>)".
// The parenthetical is taken verbatim as the bucket name unless it is a
// time range "<spec>-<spec>", which files the scene under TimeTrigger.
func ParseSceneName(name string) (Trigger, error) {
	matches := sceneNamePattern.FindStringSubmatch(name)
	if matches == nil {
		return Trigger{}, fmt.Errorf("%w: %q", ErrNoTrigger, name)
	}

	trigger := Trigger{Label: matches[1], Name: matches[2]}
	if tm := timeTriggerPattern.FindStringSubmatch(strings.TrimSpace(matches[2])); tm != nil {
		trigger.Name = TimeTrigger
		trigger.Start = tm[1]
		trigger.End = tm[2]
	}
	return trigger, nil
}

// ParseSceneKey splits an endpoint scene metadata key into scene and owning group id.
func ParseSceneKey(key string) (sceneID, groupID int, err error) {
	sceneStr, groupStr, ok := strings.Cut(key, "_")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedSceneKey, key)
	}
	sceneID, err = strconv.Atoi(sceneStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedSceneKey, key)
	}
	groupID, err = strconv.Atoi(groupStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedSceneKey, key)
	}
	return sceneID, groupID, nil
}

// SceneKey builds the metadata key for a scene owned by a group.
func SceneKey(sceneID, groupID int) string {
	return strconv.Itoa(sceneID) + "_" + strconv.Itoa(groupID)
}

// ParseTimeout extracts the idle timeout from a group description.
// Returns false when the description carries none, or one too large to represent,
// meaning the idle timer is disabled.
func ParseTimeout(description string) (time.Duration, bool) {
	matches := timeoutPattern.FindStringSubmatch(description)
	if matches == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, false
	}

	unit := time.Second
	switch matches[2] {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// ParseGroupRefs extracts the group ids from a device description containing
// "lightlynx-groups <id,id,...>". Returns nil when absent.
func ParseGroupRefs(description string) []int {
	matches := groupRefsPattern.FindStringSubmatch(description)
	if matches == nil {
		return nil
	}

	var ids []int
	for _, part := range strings.Split(matches[1], ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
