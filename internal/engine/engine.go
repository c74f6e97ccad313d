// Package engine turns device events and wall-clock time into scene recalls and
// on/off commands for groups of lights.
//
// All engine state is owned by a single goroutine: notifications, the periodic
// tick, debounce resolutions and idle expirations are queued onto it, so no two
// handlers ever mutate the catalog or the per-group records concurrently.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/vanviegen/lightlynx-sub001/internal/catalog"
	"github.com/vanviegen/lightlynx-sub001/internal/debounce"
	"github.com/vanviegen/lightlynx-sub001/internal/idle"
	"github.com/vanviegen/lightlynx-sub001/internal/timerange"
)

// Default timings
const (
	DefaultTickInterval   = 10 * time.Second
	DefaultTimeTransition = 10 * time.Second
	DefaultIdleTransition = 30 * time.Second
)

var (
	// ErrUnknownGroup is logged when a notification references a group missing from the catalog.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrUnresolvedTrigger is logged when no bucket matches a resolved click.
	ErrUnresolvedTrigger = errors.New("unresolved trigger")
)

// Options configures an Engine. Zero values fall back to the defaults.
type Options struct {
	Clock          clockwork.Clock
	TickInterval   time.Duration
	DebounceWindow time.Duration
	TimeTransition time.Duration
	IdleTransition time.Duration
	QueueSize      int

	// OnRebuild is called on the engine goroutine after every catalog rebuild.
	OnRebuild func(c *catalog.Catalog)
}

// Status is a point-in-time view of the engine.
type Status struct {
	Ready         bool           `json:"ready"`
	Groups        int            `json:"groups"`
	IdleTimers    int            `json:"idle_timers"`
	PendingClicks int            `json:"pending_clicks"`
	TimedScenes   map[string]int `json:"timed_scenes"`
}

// Engine is the automation engine.
type Engine struct {
	gateway  Gateway
	sink     CommandSink
	resolver *timerange.Resolver
	clock    clockwork.Clock
	opts     Options

	exec      *executor
	debouncer *debounce.Debouncer
	idle      *idle.Manager

	// Owned by the engine goroutine
	catalog *catalog.Catalog
	timed   map[string]int // group name -> active time-bucket scene id

	subs   []Subscription
	cancel context.CancelFunc
	ready  atomic.Bool
}

// New creates an Engine. It does nothing until Start.
func New(gateway Gateway, sink CommandSink, resolver *timerange.Resolver, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = debounce.DefaultWindow
	}
	if opts.TimeTransition <= 0 {
		opts.TimeTransition = DefaultTimeTransition
	}
	if opts.IdleTransition <= 0 {
		opts.IdleTransition = DefaultIdleTransition
	}

	e := &Engine{
		gateway:  gateway,
		sink:     sink,
		resolver: resolver,
		clock:    opts.Clock,
		opts:     opts,
		exec:     newExecutor(opts.QueueSize),
		catalog:  catalog.Build(nil),
		timed:    make(map[string]int),
	}

	e.debouncer = debounce.New(opts.Clock, opts.DebounceWindow, func(group, action string, count int) {
		e.exec.Do(func() { e.resolveClick(group, action, count) })
	})
	e.idle = idle.NewManager(opts.Clock, func(group string) {
		e.exec.Do(func() { e.expireIdle(group) })
	})

	return e
}

// Start subscribes to gateway notifications, rebuilds the catalog and starts the periodic tick.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	go e.exec.Run(runCtx)

	// Listen before the first rebuild so groups arriving in between still trigger one.
	e.subs = append(e.subs,
		e.gateway.OnStateChange(func(change StateChange) {
			e.exec.Do(func() { e.handleStateChange(change) })
		}),
		e.gateway.OnScenesChanged(func() {
			e.exec.Do(e.rebuild)
		}),
		e.gateway.OnMembersChanged(func() {
			e.exec.Do(e.rebuild)
		}),
	)

	if err := e.exec.Call(ctx, e.rebuild); err != nil {
		e.Stop()
		return err
	}

	ticker := e.clock.NewTicker(e.opts.TickInterval)
	go e.runTicker(runCtx, ticker)

	log.Info().
		Dur("tick_interval", e.opts.TickInterval).
		Dur("debounce", e.opts.DebounceWindow).
		Msg("Automation engine started")
	return nil
}

func (e *Engine) runTicker(ctx context.Context, ticker clockwork.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.exec.Do(func() {
				e.evaluateTimeTriggers(e.clock.Now())
			})
		}
	}
}

// Stop unregisters listeners, stops the tick and cancels every idle timer.
// Open debounce windows are abandoned and queued work is dropped.
func (e *Engine) Stop() {
	for _, sub := range e.subs {
		sub.Unsubscribe()
	}
	e.subs = nil

	if e.cancel != nil {
		e.cancel()
	}
	e.exec.Close()
	e.idle.CancelAll()
	e.debouncer.Close()
	e.ready.Store(false)

	log.Info().Msg("Automation engine stopped")
}

// Ready reports whether the catalog has been built.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// Status collects a snapshot on the engine goroutine.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var status Status
	err := e.exec.Call(ctx, func() {
		status = Status{
			Ready:         e.ready.Load(),
			Groups:        e.catalog.Len(),
			IdleTimers:    e.idle.Len(),
			PendingClicks: e.debouncer.Pending(),
			TimedScenes:   make(map[string]int, len(e.timed)),
		}
		for group, sceneID := range e.timed {
			status.TimedScenes[group] = sceneID
		}
	})
	return status, err
}

// rebuild replaces the catalog wholesale from the gateway's current groups.
func (e *Engine) rebuild() {
	e.catalog = catalog.Build(e.gateway.Groups())
	e.timed = make(map[string]int)
	e.ready.Store(true)

	log.Info().Int("groups", e.catalog.Len()).Msg("Scene catalog rebuilt")
	for _, g := range e.catalog.Groups() {
		log.Debug().
			Str("group", g.Name).
			Int("id", g.ID).
			Int("scenes", g.SceneCount()).
			Dur("timeout", g.Timeout).
			Msg("Group cataloged")
	}

	if e.opts.OnRebuild != nil {
		e.opts.OnRebuild(e.catalog)
	}
}

func (e *Engine) handleStateChange(change StateChange) {
	if g, ok := e.catalog.Group(change.Entity); ok && change.State == StateOn {
		e.touch(g)
	}

	if change.Action == "" {
		return
	}
	for _, id := range catalog.ParseGroupRefs(change.Description) {
		desc, ok := e.gateway.GroupByID(id)
		if !ok {
			log.Debug().
				Err(ErrUnknownGroup).
				Int("group_id", id).
				Str("entity", change.Entity).
				Msg("Ignoring action for group")
			continue
		}
		log.Debug().
			Str("group", desc.Name).
			Str("entity", change.Entity).
			Str("action", change.Action).
			Msg("Click registered")
		e.debouncer.Click(desc.Name, change.Action)
	}
}

// resolveClick dispatches the first scene of the first matching trigger bucket.
// A single click without any match toggles the group.
func (e *Engine) resolveClick(group, action string, count int) {
	g, ok := e.catalog.Group(group)
	if !ok {
		log.Debug().Err(ErrUnknownGroup).Str("group", group).Msg("Dropping click")
		return
	}

	for _, trigger := range debounce.Triggers(action, count) {
		scenes := g.Scenes(trigger)
		if len(scenes) == 0 {
			continue
		}
		scene := scenes[0]
		log.Info().
			Str("group", g.Name).
			Str("trigger", trigger).
			Int("count", count).
			Int("scene", scene.ID).
			Str("scene_name", scene.Name).
			Msg("Click resolved to scene")
		e.send(g.Name, RecallScene(scene.ID))
		e.touch(g)
		return
	}

	if count != 1 {
		log.Debug().
			Err(ErrUnresolvedTrigger).
			Str("group", g.Name).
			Str("action", action).
			Int("count", count).
			Msg("Dropping click")
		return
	}

	next := StateOn
	if state, _ := e.gateway.GroupState(g.Name); state == StateOn {
		next = StateOff
	}
	log.Info().Str("group", g.Name).Str("state", string(next)).Msg("Click toggles group")
	e.send(g.Name, SetState(next))
}

// evaluateTimeTriggers drives each group towards the best matching time-bucket scene.
func (e *Engine) evaluateTimeTriggers(now time.Time) {
	for _, g := range e.catalog.Groups() {
		scenes := g.Scenes(catalog.TimeTrigger)
		active, wasActive := e.timed[g.Name]
		if len(scenes) == 0 && !wasActive {
			continue
		}

		best, found := e.bestTimedScene(g.Name, scenes, now)
		switch {
		case found && (!wasActive || active != best.ID):
			e.timed[g.Name] = best.ID
			log.Info().
				Str("group", g.Name).
				Int("scene", best.ID).
				Str("scene_name", best.Name).
				Msg("Time range entered")
			e.send(g.Name, RecallSceneWithTransition(best.ID, e.opts.TimeTransition))
			e.touch(g)
		case !found && wasActive:
			delete(e.timed, g.Name)
			log.Info().Str("group", g.Name).Int("scene", active).Msg("Time range left")
			e.send(g.Name, TurnOff(e.opts.TimeTransition))
		}
	}
}

// bestTimedScene returns the matching scene with the narrowest range.
// Equal widths keep the first in catalog order.
func (e *Engine) bestTimedScene(group string, scenes []catalog.Scene, now time.Time) (catalog.Scene, bool) {
	var best catalog.Scene
	bestDuration := -1

	for _, scene := range scenes {
		match, err := e.resolver.InRange(scene.Start, scene.End, now)
		if err != nil {
			log.Debug().
				Err(err).
				Str("group", group).
				Str("scene_name", scene.Name).
				Msg("Skipping time range")
			continue
		}
		if !match.Matched {
			continue
		}
		if bestDuration < 0 || match.Duration < bestDuration {
			best = scene
			bestDuration = match.Duration
		}
	}

	return best, bestDuration >= 0
}

func (e *Engine) touch(g *catalog.Group) {
	if e.idle.Touch(g.Name, g.Timeout) {
		log.Debug().Str("group", g.Name).Dur("timeout", g.Timeout).Msg("Idle timer armed")
	}
}

func (e *Engine) expireIdle(group string) {
	// Touched again after the countdown fired but before we got here
	if _, armed := e.idle.Deadline(group); armed {
		return
	}
	log.Info().Str("group", group).Msg("Idle timeout elapsed")
	e.send(group, TurnOff(e.opts.IdleTransition))
}

func (e *Engine) send(group string, cmd Command) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		log.Error().Err(err).Str("group", group).Msg("Failed to encode command")
		return
	}
	topic := Topic(e.gateway.BaseTopic(), group)
	log.Info().Str("topic", topic).RawJSON("payload", payload).Msg("Dispatching command")
	e.sink.Publish(topic, payload)
}
