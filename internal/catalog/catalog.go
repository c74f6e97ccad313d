// Package catalog derives per-group scene catalogs from free-form scene names
// and group descriptions.
package catalog

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// TimeTrigger is the reserved bucket for scenes carrying a time range.
const TimeTrigger = "time"

// SceneMeta is a scene as stored on a member endpoint.
type SceneMeta struct {
	Name string `json:"name"`
}

// Endpoint is a group member endpoint.
// Scenes is keyed "<sceneID>_<groupID>"; an endpoint that belongs to several
// groups may carry copies for all of them.
type Endpoint struct {
	Device   string
	Endpoint int
	Scenes   map[string]SceneMeta
}

// GroupDescriptor describes a group as reported by the gateway.
type GroupDescriptor struct {
	ID          int
	Name        string
	Description string
	Members     []Endpoint
}

// Scene is a cataloged scene. Start and End are set for time-bucketed scenes only.
type Scene struct {
	ID    int
	Name  string
	Label string
	Start string
	End   string
}

// Group is the catalog entry for one group.
type Group struct {
	ID      int
	Name    string
	Timeout time.Duration // 0 disables the idle timer
	// Triggers maps bucket name to scenes in discovery order.
	Triggers map[string][]Scene
}

// Scenes returns the scenes filed under a trigger bucket (exact, case-sensitive).
func (g *Group) Scenes(trigger string) []Scene {
	return g.Triggers[trigger]
}

// SceneCount returns the number of cataloged scenes across all buckets.
func (g *Group) SceneCount() int {
	n := 0
	for _, scenes := range g.Triggers {
		n += len(scenes)
	}
	return n
}

// Catalog is an immutable snapshot of all group catalogs.
// It is replaced wholesale on every rebuild.
type Catalog struct {
	groups []*Group
	byName map[string]*Group
	byID   map[int]*Group
}

// Build derives the catalog for every group descriptor.
// Malformed scene names and keys are skipped; they never fail the build.
func Build(descs []GroupDescriptor) *Catalog {
	c := &Catalog{
		byName: make(map[string]*Group, len(descs)),
		byID:   make(map[int]*Group, len(descs)),
	}

	for _, desc := range descs {
		if _, exists := c.byName[desc.Name]; exists {
			log.Warn().Str("group", desc.Name).Int("id", desc.ID).Msg("Duplicate group name, keeping first")
			continue
		}

		g := buildGroup(desc)
		c.groups = append(c.groups, g)
		c.byName[g.Name] = g
		c.byID[g.ID] = g
	}

	return c
}

func buildGroup(desc GroupDescriptor) *Group {
	g := &Group{
		ID:       desc.ID,
		Name:     desc.Name,
		Triggers: make(map[string][]Scene),
	}
	if timeout, ok := ParseTimeout(desc.Description); ok {
		g.Timeout = timeout
	}

	seen := make(map[int]bool)
	for _, member := range desc.Members {
		for _, entry := range sortedEntries(member.Scenes) {
			sceneID, groupID, err := ParseSceneKey(entry.key)
			if err != nil {
				log.Debug().Err(err).Str("group", desc.Name).Str("device", member.Device).Msg("Skipping scene entry")
				continue
			}
			// Stale copies for other groups on shared endpoints
			if groupID != desc.ID || seen[sceneID] {
				continue
			}

			trigger, err := ParseSceneName(entry.meta.Name)
			if err != nil {
				continue
			}
			seen[sceneID] = true

			g.Triggers[trigger.Name] = append(g.Triggers[trigger.Name], Scene{
				ID:    sceneID,
				Name:  entry.meta.Name,
				Label: trigger.Label,
				Start: trigger.Start,
				End:   trigger.End,
			})
		}
	}

	return g
}

type sceneEntry struct {
	key     string
	sceneID int
	meta    SceneMeta
}

// sortedEntries orders endpoint metadata by scene id so discovery order is deterministic.
func sortedEntries(scenes map[string]SceneMeta) []sceneEntry {
	entries := make([]sceneEntry, 0, len(scenes))
	for key, meta := range scenes {
		sceneID, _, _ := ParseSceneKey(key)
		entries = append(entries, sceneEntry{key: key, sceneID: sceneID, meta: meta})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].sceneID != entries[j].sceneID {
			return entries[i].sceneID < entries[j].sceneID
		}
		return entries[i].key < entries[j].key
	})
	return entries
}

// Group looks up a group by name.
func (c *Catalog) Group(name string) (*Group, bool) {
	g, ok := c.byName[name]
	return g, ok
}

// GroupByID looks up a group by id.
func (c *Catalog) GroupByID(id int) (*Group, bool) {
	g, ok := c.byID[id]
	return g, ok
}

// Groups returns all groups in descriptor order.
func (c *Catalog) Groups() []*Group {
	result := make([]*Group, len(c.groups))
	copy(result, c.groups)
	return result
}

// Len returns the number of cataloged groups.
func (c *Catalog) Len() int {
	return len(c.groups)
}
