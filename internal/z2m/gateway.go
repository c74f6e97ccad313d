// Package z2m adapts a zigbee2mqtt bridge, reached over MQTT, to the automation
// engine: it tracks groups, scenes and device descriptions from the bridge's
// retained topics, turns entity state messages into notifications and paces
// outbound commands.
package z2m

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vanviegen/lightlynx-sub001/internal/catalog"
	"github.com/vanviegen/lightlynx-sub001/internal/engine"
	"github.com/vanviegen/lightlynx-sub001/internal/eventbus"
	"github.com/vanviegen/lightlynx-sub001/internal/mqtt"
)

const defaultOutboxSize = 256

// Transport is the MQTT surface the gateway needs.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Options configures a Gateway.
type Options struct {
	BaseTopic    string
	QoS          byte
	RateLimitRPS float64
	OutboxSize   int
}

type outbound struct {
	topic   string
	payload []byte
}

// Gateway implements engine.Gateway and engine.CommandSink for zigbee2mqtt.
type Gateway struct {
	transport Transport
	bus       *eventbus.Bus
	baseTopic string
	qos       byte
	limiter   *rate.Limiter

	outbox    chan outbound
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	mu           sync.RWMutex
	groups       []catalog.GroupDescriptor
	groupIndex   map[int]int    // id -> index in groups
	groupNames   map[string]int // friendly name -> id
	devices      map[string]bridgeDevice
	states       map[string]engine.State
	scenesSig    string
	membersSig   string
	groupsLoaded bool
}

var (
	_ engine.Gateway     = (*Gateway)(nil)
	_ engine.CommandSink = (*Gateway)(nil)
)

// New creates a gateway. Call Start to subscribe and begin sending.
func New(transport Transport, bus *eventbus.Bus, opts Options) *Gateway {
	if opts.BaseTopic == "" {
		opts.BaseTopic = "zigbee2mqtt"
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutboxSize
	}

	limit := rate.Inf
	burst := 1
	if opts.RateLimitRPS > 0 {
		limit = rate.Limit(opts.RateLimitRPS)
		burst = max(1, int(opts.RateLimitRPS))
	}

	return &Gateway{
		transport:  transport,
		bus:        bus,
		baseTopic:  strings.TrimSuffix(opts.BaseTopic, "/"),
		qos:        opts.QoS,
		limiter:    rate.NewLimiter(limit, burst),
		outbox:     make(chan outbound, opts.OutboxSize),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		groupIndex: make(map[int]int),
		groupNames: make(map[string]int),
		devices:    make(map[string]bridgeDevice),
		states:     make(map[string]engine.State),
	}
}

// Start subscribes to the bridge topics and starts the command sender.
func (g *Gateway) Start(ctx context.Context) error {
	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{g.baseTopic + "/bridge/groups", g.handleGroups},
		{g.baseTopic + "/bridge/devices", g.handleDevices},
		{g.baseTopic + "/+", g.handleEntity},
	}
	for _, sub := range subscriptions {
		if err := g.transport.Subscribe(sub.topic, g.qos, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", sub.topic, err)
		}
		log.Debug().Str("topic", sub.topic).Msg("Subscribed")
	}

	go g.runSender(ctx)

	log.Info().Str("base_topic", g.baseTopic).Msg("zigbee2mqtt gateway started")
	return nil
}

// Close stops the sender. Queued commands that were not yet sent are dropped.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.closing)
	})
}

// Done is closed once the sender has stopped.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// Ready reports whether the group list has been received from the bridge.
func (g *Gateway) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.groupsLoaded
}

// BaseTopic implements engine.Gateway
func (g *Gateway) BaseTopic() string {
	return g.baseTopic
}

// Groups implements engine.Gateway
func (g *Gateway) Groups() []catalog.GroupDescriptor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]catalog.GroupDescriptor, len(g.groups))
	copy(result, g.groups)
	return result
}

// GroupByID implements engine.Gateway
func (g *Gateway) GroupByID(id int) (catalog.GroupDescriptor, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i, ok := g.groupIndex[id]
	if !ok {
		return catalog.GroupDescriptor{}, false
	}
	return g.groups[i], true
}

// GroupState implements engine.Gateway
func (g *Gateway) GroupState(name string) (engine.State, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	state, ok := g.states[name]
	return state, ok
}

// OnStateChange implements engine.Gateway
func (g *Gateway) OnStateChange(handler func(engine.StateChange)) engine.Subscription {
	return g.bus.Subscribe(eventbus.EventStateChange, func(ev eventbus.Event) {
		if change, ok := ev.Data.(engine.StateChange); ok {
			handler(change)
		}
	})
}

// OnScenesChanged implements engine.Gateway
func (g *Gateway) OnScenesChanged(handler func()) engine.Subscription {
	return g.bus.Subscribe(eventbus.EventScenesChanged, func(eventbus.Event) { handler() })
}

// OnMembersChanged implements engine.Gateway
func (g *Gateway) OnMembersChanged(handler func()) engine.Subscription {
	return g.bus.Subscribe(eventbus.EventMembersChanged, func(eventbus.Event) { handler() })
}

// Publish implements engine.CommandSink. It never blocks: commands are queued
// for the paced sender and dropped with a warning if the queue is full.
func (g *Gateway) Publish(topic string, payload []byte) {
	select {
	case <-g.closing:
		log.Warn().Str("topic", topic).Msg("Gateway closed, dropping command")
		return
	default:
	}

	select {
	case g.outbox <- outbound{topic: topic, payload: payload}:
	default:
		log.Warn().Str("topic", topic).Msg("Command queue full, dropping command")
	}
}

func (g *Gateway) runSender(ctx context.Context) {
	defer close(g.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.closing:
			return
		case msg := <-g.outbox:
			if err := g.limiter.Wait(ctx); err != nil {
				return
			}
			if err := g.transport.Publish(msg.topic, msg.payload, g.qos, false); err != nil {
				log.Error().Err(err).Str("topic", msg.topic).Msg("Failed to publish command")
				continue
			}
			log.Debug().Str("topic", msg.topic).RawJSON("payload", msg.payload).Msg("Command published")
		}
	}
}

func (g *Gateway) handleGroups(_ string, payload []byte) error {
	var groups []bridgeGroup
	if err := json.Unmarshal(payload, &groups); err != nil {
		return fmt.Errorf("invalid bridge/groups payload: %w", err)
	}

	scenesSig := sceneSignature(groups)
	membersSig := memberSignature(groups)

	g.mu.Lock()
	first := !g.groupsLoaded
	scenesChanged := first || scenesSig != g.scenesSig
	membersChanged := first || membersSig != g.membersSig

	g.groups = make([]catalog.GroupDescriptor, 0, len(groups))
	g.groupIndex = make(map[int]int, len(groups))
	g.groupNames = make(map[string]int, len(groups))
	for _, bg := range groups {
		g.groupIndex[bg.ID] = len(g.groups)
		g.groupNames[bg.FriendlyName] = bg.ID
		g.groups = append(g.groups, bg.descriptor())
	}
	g.scenesSig = scenesSig
	g.membersSig = membersSig
	g.groupsLoaded = true
	g.mu.Unlock()

	log.Debug().
		Int("groups", len(groups)).
		Bool("scenes_changed", scenesChanged).
		Bool("members_changed", membersChanged).
		Msg("Bridge groups received")

	if scenesChanged {
		g.bus.Publish(eventbus.Event{Type: eventbus.EventScenesChanged})
	}
	if membersChanged {
		g.bus.Publish(eventbus.Event{Type: eventbus.EventMembersChanged})
	}
	return nil
}

func (g *Gateway) handleDevices(_ string, payload []byte) error {
	var devices []bridgeDevice
	if err := json.Unmarshal(payload, &devices); err != nil {
		return fmt.Errorf("invalid bridge/devices payload: %w", err)
	}

	g.mu.Lock()
	g.devices = make(map[string]bridgeDevice, len(devices))
	for _, d := range devices {
		if d.Type == "Coordinator" {
			continue
		}
		g.devices[d.FriendlyName] = d
	}
	g.mu.Unlock()

	log.Debug().Int("devices", len(devices)).Msg("Bridge devices received")
	return nil
}

func (g *Gateway) handleEntity(topic string, payload []byte) error {
	name := strings.TrimPrefix(topic, g.baseTopic+"/")
	if name == "bridge" || name == topic {
		return nil
	}

	// Availability and other non-object payloads are not entity state
	if len(payload) == 0 || payload[0] != '{' {
		return nil
	}

	var update entityUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("invalid state payload: %w", err)
	}

	change := engine.StateChange{
		Entity: name,
		State:  engine.State(strings.ToUpper(update.State)),
		Action: update.Action,
	}
	if change.State != engine.StateOn && change.State != engine.StateOff {
		change.State = ""
	}

	g.mu.Lock()
	if id, ok := g.groupNames[name]; ok {
		change.Description = g.groups[g.groupIndex[id]].Description
		if change.State != "" {
			g.states[name] = change.State
		}
	} else if d, ok := g.devices[name]; ok {
		change.Description = d.Description
	}
	g.mu.Unlock()

	if change.State == "" && change.Action == "" {
		return nil
	}

	g.bus.Publish(eventbus.Event{Type: eventbus.EventStateChange, Data: change})
	return nil
}
