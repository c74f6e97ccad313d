package catalog

import (
	"errors"
	"testing"
	"time"
)

func endpoint(device string, scenes map[string]string) Endpoint {
	meta := make(map[string]SceneMeta, len(scenes))
	for key, name := range scenes {
		meta[key] = SceneMeta{Name: name}
	}
	return Endpoint{Device: device, Endpoint: 1, Scenes: meta}
}

func TestParseSceneName(t *testing.T) {
	tests := []struct {
		name      string
		wantLabel string
		wantName  string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{name: "Evening (single)", wantLabel: "Evening", wantName: "single"},
		{name: "  Bright (double)  ", wantLabel: "Bright", wantName: "double"},
		{name: "Toggle (brightness_up_click)", wantLabel: "Toggle", wantName: "brightness_up_click"},
		{name: "Day (08:00-20:00)", wantLabel: "Day", wantName: TimeTrigger, wantStart: "08:00", wantEnd: "20:00"},
		{name: "Dusk (1bs-23)", wantLabel: "Dusk", wantName: TimeTrigger, wantStart: "1bs", wantEnd: "23"},
		{name: "Morning (6ar-9:30)", wantLabel: "Morning", wantName: TimeTrigger, wantStart: "6ar", wantEnd: "9:30"},
		{name: "Weird (8-x)", wantLabel: "Weird", wantName: "8-x"},
		{name: "(single)", wantLabel: "", wantName: "single"},
		{name: "Evening", wantErr: true},
		{name: "Evening (single) extra", wantErr: true},
		{name: "Evening ()", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSceneName(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrNoTrigger) {
					t.Errorf("ParseSceneName(%q) error = %v, want ErrNoTrigger", tt.name, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSceneName(%q) error = %v", tt.name, err)
			}
			if got.Label != tt.wantLabel || got.Name != tt.wantName || got.Start != tt.wantStart || got.End != tt.wantEnd {
				t.Errorf("ParseSceneName(%q) = %+v, want label=%q name=%q start=%q end=%q",
					tt.name, got, tt.wantLabel, tt.wantName, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		description string
		want        time.Duration
		wantOK      bool
	}{
		{"lightlynx-timeout 30s", 30 * time.Second, true},
		{"Kitchen lights lightlynx-timeout 5m", 5 * time.Minute, true},
		{"lightlynx-timeout 2h and more", 2 * time.Hour, true},
		{"lightlynx-timeout 0s", 0, true},
		{"lightlynx-timeout 30", 0, false},
		{"lightlynx-timeout 30d", 0, false},
		{"lightlynx-timeout 2562047h", 2562047 * time.Hour, true},
		{"lightlynx-timeout 2562048h", 0, false},
		{"lightlynx-timeout 9999999999h", 0, false},
		{"lightlynx-timeout 99999999999999999999s", 0, false},
		{"", 0, false},
		{"no timeout here", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got, ok := ParseTimeout(tt.description)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseTimeout(%q) = %v, %v; want %v, %v", tt.description, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseGroupRefs(t *testing.T) {
	got := ParseGroupRefs("Hallway switch lightlynx-groups 3, 7,12")
	want := []int{3, 7, 12}
	if len(got) != len(want) {
		t.Fatalf("ParseGroupRefs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseGroupRefs[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if refs := ParseGroupRefs("just a switch"); refs != nil {
		t.Errorf("ParseGroupRefs without marker = %v, want nil", refs)
	}
}

func TestParseSceneKey(t *testing.T) {
	sceneID, groupID, err := ParseSceneKey("12_3")
	if err != nil || sceneID != 12 || groupID != 3 {
		t.Errorf("ParseSceneKey(\"12_3\") = %d, %d, %v; want 12, 3, nil", sceneID, groupID, err)
	}
	if SceneKey(12, 3) != "12_3" {
		t.Errorf("SceneKey(12, 3) = %q, want \"12_3\"", SceneKey(12, 3))
	}

	for _, key := range []string{"", "12", "a_3", "12_b", "_"} {
		if _, _, err := ParseSceneKey(key); !errors.Is(err, ErrMalformedSceneKey) {
			t.Errorf("ParseSceneKey(%q) error = %v, want ErrMalformedSceneKey", key, err)
		}
	}
}

func TestBuild_BucketsAndTimeout(t *testing.T) {
	c := Build([]GroupDescriptor{{
		ID:          1,
		Name:        "living",
		Description: "lightlynx-timeout 30s",
		Members: []Endpoint{
			endpoint("bulb1", map[string]string{
				"1_1": "Evening (single)",
				"2_1": "Party (double)",
				"3_1": "Day (08:00-20:00)",
				"4_1": "Plain scene",
				"5_1": "Off (on_press)",
			}),
		},
	}})

	g, ok := c.Group("living")
	if !ok {
		t.Fatal("group living not found")
	}
	if g.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", g.Timeout)
	}

	if scenes := g.Scenes("single"); len(scenes) != 1 || scenes[0].ID != 1 || scenes[0].Label != "Evening" {
		t.Errorf("single = %+v, want scene 1 Evening", scenes)
	}
	if scenes := g.Scenes("double"); len(scenes) != 1 || scenes[0].ID != 2 {
		t.Errorf("double = %+v, want scene 2", scenes)
	}
	if scenes := g.Scenes("on_press"); len(scenes) != 1 || scenes[0].ID != 5 {
		t.Errorf("on_press = %+v, want scene 5", scenes)
	}
	timed := g.Scenes(TimeTrigger)
	if len(timed) != 1 || timed[0].Start != "08:00" || timed[0].End != "20:00" {
		t.Errorf("time = %+v, want Day 08:00-20:00", timed)
	}
	if g.SceneCount() != 4 {
		t.Errorf("SceneCount = %d, want 4 (unparsable names are not cataloged)", g.SceneCount())
	}
	if scenes := g.Scenes("Single"); scenes != nil {
		t.Errorf("bucket lookup must be case-sensitive, got %+v", scenes)
	}
}

func TestBuild_DedupAcrossEndpoints(t *testing.T) {
	c := Build([]GroupDescriptor{{
		ID:   1,
		Name: "living",
		Members: []Endpoint{
			endpoint("bulb1", map[string]string{"7_1": "Evening (single)"}),
			endpoint("bulb2", map[string]string{"7_1": "Evening (single)"}),
			endpoint("bulb3", map[string]string{"7_1": "Renamed (double)"}),
		},
	}})

	g, _ := c.Group("living")
	if g.SceneCount() != 1 {
		t.Fatalf("SceneCount = %d, want 1", g.SceneCount())
	}
	if scenes := g.Scenes("single"); len(scenes) != 1 || scenes[0].ID != 7 {
		t.Errorf("single = %+v, want scene 7", scenes)
	}
	if scenes := g.Scenes("double"); len(scenes) != 0 {
		t.Errorf("first match determines the bucket, got double = %+v", scenes)
	}
}

func TestBuild_IgnoresOtherGroupsScenes(t *testing.T) {
	shared := endpoint("bulb1", map[string]string{
		"1_1": "Evening (single)",
		"1_2": "Kitchen evening (single)",
		"2_2": "Kitchen party (double)",
		"bad": "Broken (single)",
	})

	c := Build([]GroupDescriptor{
		{ID: 1, Name: "living", Members: []Endpoint{shared}},
		{ID: 2, Name: "kitchen", Description: "lightlynx-timeout 2m", Members: []Endpoint{shared}},
	})

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	living, _ := c.Group("living")
	if living.SceneCount() != 1 || living.Scenes("single")[0].Name != "Evening (single)" {
		t.Errorf("living catalog = %+v", living.Triggers)
	}
	if living.Timeout != 0 {
		t.Errorf("living Timeout = %v, want 0", living.Timeout)
	}

	kitchen, ok := c.GroupByID(2)
	if !ok {
		t.Fatal("group 2 not found by id")
	}
	if kitchen.SceneCount() != 2 {
		t.Errorf("kitchen SceneCount = %d, want 2", kitchen.SceneCount())
	}
	if kitchen.Timeout != 2*time.Minute {
		t.Errorf("kitchen Timeout = %v, want 2m", kitchen.Timeout)
	}
}

func TestBuild_DiscoveryOrder(t *testing.T) {
	c := Build([]GroupDescriptor{{
		ID:   4,
		Name: "hall",
		Members: []Endpoint{
			endpoint("bulb1", map[string]string{
				"9_4": "Late (22-6)",
				"3_4": "Early (6-9)",
			}),
			endpoint("bulb2", map[string]string{
				"1_4": "Noon (11-13)",
			}),
		},
	}})

	g, _ := c.Group("hall")
	timed := g.Scenes(TimeTrigger)
	wantIDs := []int{3, 9, 1} // per endpoint, then by scene id
	if len(timed) != len(wantIDs) {
		t.Fatalf("time bucket = %+v, want %d scenes", timed, len(wantIDs))
	}
	for i, id := range wantIDs {
		if timed[i].ID != id {
			t.Errorf("time[%d].ID = %d, want %d", i, timed[i].ID, id)
		}
	}
}

func TestBuild_DuplicateGroupName(t *testing.T) {
	c := Build([]GroupDescriptor{
		{ID: 1, Name: "living"},
		{ID: 2, Name: "living"},
	})
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if g, _ := c.Group("living"); g.ID != 1 {
		t.Errorf("living ID = %d, want 1", g.ID)
	}
	if _, ok := c.GroupByID(2); ok {
		t.Error("dropped duplicate should not be reachable by id")
	}
}

func TestBuild_Empty(t *testing.T) {
	c := Build(nil)
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	if _, ok := c.Group("anything"); ok {
		t.Error("empty catalog should not find groups")
	}
}
