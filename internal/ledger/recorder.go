package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vanviegen/lightlynx-sub001/internal/catalog"
)

const (
	sourceEngine = "engine"
	writeTimeout = 5 * time.Second

	// DefaultRecorderQueueSize bounds the writes waiting for the database.
	DefaultRecorderQueueSize = 256
)

// Publisher dispatches an encoded command.
type Publisher interface {
	Publish(topic string, payload []byte)
}

type record struct {
	eventType EventType
	payload   map[string]any
}

// Recorder forwards commands to the next publisher and records each one.
// Writes happen on a background goroutine: a full queue drops the record,
// a failed write is logged. Neither ever delays dispatch.
type Recorder struct {
	next   Publisher
	ledger *Ledger

	writes    chan record
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder wraps next so every command is also written to the ledger.
// Call Close to flush queued writes.
func NewRecorder(next Publisher, l *Ledger) *Recorder {
	r := &Recorder{
		next:    next,
		ledger:  l,
		writes:  make(chan record, DefaultRecorderQueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Publish forwards the command, then queues its record.
func (r *Recorder) Publish(topic string, payload []byte) {
	r.next.Publish(topic, payload)

	entry := map[string]any{"topic": topic}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err == nil {
		entry["payload"] = decoded
	} else {
		entry["payload"] = string(payload)
	}
	r.enqueue(record{eventType: EventCommandSent, payload: entry})
}

// RecordRebuild queues a catalog_rebuilt entry summarizing the catalog.
func (r *Recorder) RecordRebuild(c *catalog.Catalog) {
	groups := make(map[string]any, c.Len())
	for _, g := range c.Groups() {
		groups[g.Name] = map[string]any{
			"id":              g.ID,
			"scenes":          g.SceneCount(),
			"timeout_seconds": g.Timeout.Seconds(),
		}
	}
	r.enqueue(record{eventType: EventCatalogRebuilt, payload: map[string]any{
		"group_count": c.Len(),
		"groups":      groups,
	}})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case <-r.closing:
		return
	default:
	}

	select {
	case r.writes <- rec:
	default:
		log.Warn().Str("event_type", string(rec.eventType)).Msg("Ledger queue full, dropping record")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case rec := <-r.writes:
			r.write(rec)
		case <-r.closing:
			// Flush what was queued before Close
			for {
				select {
				case rec := <-r.writes:
					r.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(rec record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.ledger.Append(ctx, rec.eventType, sourceEngine, rec.payload); err != nil {
		log.Warn().Err(err).Str("event_type", string(rec.eventType)).Msg("Failed to record ledger entry")
	}
}

// Close stops accepting records and waits until the queued ones are written.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	<-r.done
}
