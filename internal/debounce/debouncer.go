// Package debounce turns bursts of repeated button actions into a single
// click-count resolution per (group, action) key.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWindow is the quiet period after which a click count is final.
const DefaultWindow = 300 * time.Millisecond

// clickNames maps click counts to their semantic trigger names
var clickNames = map[int]string{
	1: "single",
	2: "double",
	3: "triple",
	4: "quadruple",
	5: "many",
}

// ClickName returns the semantic trigger name for a click count.
// Counts above 5 have none.
func ClickName(count int) (string, bool) {
	name, ok := clickNames[count]
	return name, ok
}

// Triggers returns the trigger names to try, in order, for a resolved click:
// the raw action first, then the semantic name for the count.
func Triggers(action string, count int) []string {
	triggers := []string{action}
	if name, ok := ClickName(count); ok && name != action {
		triggers = append(triggers, name)
	}
	return triggers
}

// ResolveFunc receives the final click count for a key, once per debounce window.
type ResolveFunc func(group, action string, count int)

type key struct {
	group  string
	action string
}

// pending is the state of one open debounce window.
// gen identifies the scheduled callback that may resolve it.
type pending struct {
	count int
	timer clockwork.Timer
	gen   uint64
}

// Debouncer accumulates clicks per (group, action) and resolves each key
// after the window elapses without further clicks.
type Debouncer struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	window  time.Duration
	pending map[key]*pending
	nextGen uint64
	closed  bool

	onResolve ResolveFunc
}

// New creates a Debouncer. A non-positive window falls back to DefaultWindow.
func New(clock clockwork.Clock, window time.Duration, onResolve ResolveFunc) *Debouncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		clock:     clock,
		window:    window,
		pending:   make(map[key]*pending),
		onResolve: onResolve,
	}
}

// Click registers one action for a group and restarts that key's window.
func (d *Debouncer) Click(group, action string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	k := key{group: group, action: action}
	p, ok := d.pending[k]
	if !ok {
		p = &pending{}
		d.pending[k] = p
	}
	if p.timer != nil {
		p.timer.Stop()
	}

	d.nextGen++
	gen := d.nextGen
	p.count++
	p.gen = gen
	p.timer = d.clock.AfterFunc(d.window, func() {
		d.fire(k, gen)
	})
}

// fire resolves a key if gen is still the latest scheduled callback for it.
// A callback that lost the race against a newer click is discarded.
func (d *Debouncer) fire(k key, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[k]
	if !ok || p.gen != gen || d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.pending, k)
	count := p.count
	d.mu.Unlock()

	if d.onResolve != nil {
		d.onResolve(k.group, k.action, count)
	}
}

// Pending returns the number of open debounce windows.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close abandons all open windows without resolving them.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for k, p := range d.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(d.pending, k)
	}
}
