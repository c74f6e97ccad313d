package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vanviegen/lightlynx-sub001/internal/catalog"
	"github.com/vanviegen/lightlynx-sub001/internal/db"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

type capture struct {
	topics   []string
	payloads []string
}

func (c *capture) Publish(topic string, payload []byte) {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, string(payload))
}

func TestLedger_AppendAndGetByType(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.Append(ctx, EventCommandSent, "engine", map[string]any{"topic": "a"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Append(ctx, EventCatalogRebuilt, "engine", nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Append(ctx, EventCommandSent, "engine", map[string]any{"topic": "b"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries, err := l.GetByType(ctx, EventCommandSent, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	// Newest first
	if entries[0].Payload["topic"] != "b" || entries[1].Payload["topic"] != "a" {
		t.Errorf("topics = %v, %v, want b, a", entries[0].Payload["topic"], entries[1].Payload["topic"])
	}
	if entries[0].Source != "engine" {
		t.Errorf("Source = %q, want engine", entries[0].Source)
	}

	rebuilt, err := l.GetByType(ctx, EventCatalogRebuilt, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(rebuilt) != 1 || rebuilt[0].Payload != nil {
		t.Errorf("rebuilt = %+v, want one entry with nil payload", rebuilt)
	}
}

func TestLedger_TimeRangeAndRetention(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, age := range []time.Duration{40 * 24 * time.Hour, 10 * 24 * time.Hour, time.Hour} {
		l.now = func() time.Time { return base.Add(-age) }
		if err := l.Append(ctx, EventCommandSent, "engine", map[string]any{"n": i}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	l.now = func() time.Time { return base }

	recent, err := l.GetByTimeRange(ctx, base.Add(-24*time.Hour), base, 10)
	if err != nil {
		t.Fatalf("GetByTimeRange() error = %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("len(recent) = %d, want 1", len(recent))
	}

	deleted, err := l.DeleteOlderThan(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	remaining, err := l.GetByType(ctx, EventCommandSent, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("len(remaining) = %d, want 2", len(remaining))
	}
}

func TestRecorder_ForwardsAndRecords(t *testing.T) {
	l := newTestLedger(t)
	next := &capture{}
	r := NewRecorder(next, l)

	r.Publish("zigbee2mqtt/living/set", []byte(`{"scene_recall":5}`))

	if len(next.topics) != 1 || next.topics[0] != "zigbee2mqtt/living/set" || next.payloads[0] != `{"scene_recall":5}` {
		t.Errorf("forwarded = %v %v", next.topics, next.payloads)
	}
	r.Close()

	entries, err := l.GetByType(context.Background(), EventCommandSent, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Payload["topic"] != "zigbee2mqtt/living/set" {
		t.Errorf("topic = %v", entries[0].Payload["topic"])
	}
	payload, ok := entries[0].Payload["payload"].(map[string]any)
	if !ok || payload["scene_recall"] != float64(5) {
		t.Errorf("payload = %#v, want scene_recall 5", entries[0].Payload["payload"])
	}
}

func TestRecorder_RecordRebuild(t *testing.T) {
	l := newTestLedger(t)
	r := NewRecorder(&capture{}, l)

	c := catalog.Build([]catalog.GroupDescriptor{
		{ID: 1, Name: "living", Description: "lightlynx-timeout 30s", Members: []catalog.Endpoint{{
			Device: "0x01", Endpoint: 1,
			Scenes: map[string]catalog.SceneMeta{"5_1": {Name: "Evening (single)"}},
		}}},
		{ID: 2, Name: "kitchen"},
	})
	r.RecordRebuild(c)
	r.Close()

	entries, err := l.GetByType(context.Background(), EventCatalogRebuilt, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Payload["group_count"] != float64(2) {
		t.Errorf("group_count = %v, want 2", entries[0].Payload["group_count"])
	}
	groups := entries[0].Payload["groups"].(map[string]any)
	living := groups["living"].(map[string]any)
	if living["scenes"] != float64(1) || living["timeout_seconds"] != float64(30) {
		t.Errorf("living = %v", living)
	}
}

func TestRecorder_FullQueueNeverBlocksDispatch(t *testing.T) {
	l := newTestLedger(t)
	next := &capture{}
	// No writer running yet: the queue fills up after one record
	r := &Recorder{
		next:    next,
		ledger:  l,
		writes:  make(chan record, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 3; i++ {
			r.Publish("zigbee2mqtt/living/set", []byte(`{"state":"OFF"}`))
		}
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full ledger queue")
	}
	if len(next.topics) != 3 {
		t.Errorf("forwarded %d commands, want 3", len(next.topics))
	}

	go r.run()
	r.Close()

	entries, err := l.GetByType(context.Background(), EventCommandSent, 10)
	if err != nil {
		t.Fatalf("GetByType() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}

	// Closed: further records are ignored, commands still go out
	r.Publish("zigbee2mqtt/living/set", []byte(`{"state":"ON"}`))
	if len(next.topics) != 4 {
		t.Errorf("forwarded %d commands after Close, want 4", len(next.topics))
	}
}
