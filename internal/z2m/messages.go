package z2m

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vanviegen/lightlynx-sub001/internal/catalog"
)

// bridgeGroup is one entry of the retained <base>/bridge/groups payload.
type bridgeGroup struct {
	ID           int    `json:"id"`
	FriendlyName string `json:"friendly_name"`
	Description  string `json:"description"`
	Members      []struct {
		IEEEAddress string `json:"ieee_address"`
		Endpoint    int    `json:"endpoint"`
	} `json:"members"`
	Scenes []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"scenes"`
}

// bridgeDevice is one entry of the retained <base>/bridge/devices payload.
type bridgeDevice struct {
	IEEEAddress  string `json:"ieee_address"`
	FriendlyName string `json:"friendly_name"`
	Description  string `json:"description"`
	Type         string `json:"type"`
}

// entityUpdate is the subset of a <base>/<friendly_name> state message we use.
type entityUpdate struct {
	State  string `json:"state"`
	Action string `json:"action"`
}

// descriptor converts a bridge group into the catalog's view. Every member
// endpoint carries the group's scenes keyed "<sceneID>_<groupID>".
func (g bridgeGroup) descriptor() catalog.GroupDescriptor {
	desc := catalog.GroupDescriptor{
		ID:          g.ID,
		Name:        g.FriendlyName,
		Description: g.Description,
		Members:     make([]catalog.Endpoint, 0, len(g.Members)),
	}

	scenes := make(map[string]catalog.SceneMeta, len(g.Scenes))
	for _, s := range g.Scenes {
		scenes[catalog.SceneKey(s.ID, g.ID)] = catalog.SceneMeta{Name: s.Name}
	}

	for _, m := range g.Members {
		desc.Members = append(desc.Members, catalog.Endpoint{
			Device:   m.IEEEAddress,
			Endpoint: m.Endpoint,
			Scenes:   scenes,
		})
	}
	return desc
}

// sceneSignature identifies the scene set of all groups, independent of order.
func sceneSignature(groups []bridgeGroup) string {
	var parts []string
	for _, g := range groups {
		for _, s := range g.Scenes {
			parts = append(parts, strconv.Itoa(g.ID)+"/"+strconv.Itoa(s.ID)+"="+s.Name)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}

// memberSignature identifies groups with their names, descriptions and members.
func memberSignature(groups []bridgeGroup) string {
	var parts []string
	for _, g := range groups {
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, m.IEEEAddress+"/"+strconv.Itoa(m.Endpoint))
		}
		sort.Strings(members)
		parts = append(parts, strconv.Itoa(g.ID)+"="+g.FriendlyName+"|"+g.Description+"|"+strings.Join(members, ","))
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}
