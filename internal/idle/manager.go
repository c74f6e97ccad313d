// Package idle keeps one auto-off countdown per group.
package idle

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ExpireFunc is called when a group's countdown elapses.
type ExpireFunc func(group string)

type countdown struct {
	timer    clockwork.Timer
	gen      uint64
	deadline time.Time
}

// Manager owns the idle countdowns of all groups, keyed by group name.
// Every countdown is one-shot: it fires at most once per Touch.
type Manager struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	countdowns map[string]*countdown
	nextGen    uint64

	onExpire ExpireFunc
}

// NewManager creates a Manager that calls onExpire for elapsed countdowns.
func NewManager(clock clockwork.Clock, onExpire ExpireFunc) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		clock:      clock,
		countdowns: make(map[string]*countdown),
		onExpire:   onExpire,
	}
}

// Touch cancels the group's current countdown and, if timeout is positive,
// arms a new one. Returns whether a countdown is now armed.
func (m *Manager) Touch(group string, timeout time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelLocked(group)
	if timeout <= 0 {
		return false
	}

	m.nextGen++
	gen := m.nextGen
	m.countdowns[group] = &countdown{
		gen:      gen,
		deadline: m.clock.Now().Add(timeout),
		timer: m.clock.AfterFunc(timeout, func() {
			m.fire(group, gen)
		}),
	}
	return true
}

func (m *Manager) fire(group string, gen uint64) {
	m.mu.Lock()
	c, ok := m.countdowns[group]
	if !ok || c.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.countdowns, group)
	m.mu.Unlock()

	if m.onExpire != nil {
		m.onExpire(group)
	}
}

// Cancel stops the group's countdown, if any.
func (m *Manager) Cancel(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked(group)
}

func (m *Manager) cancelLocked(group string) {
	if c, ok := m.countdowns[group]; ok {
		c.timer.Stop()
		delete(m.countdowns, group)
	}
}

// CancelAll stops every countdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for group, c := range m.countdowns {
		c.timer.Stop()
		delete(m.countdowns, group)
	}
}

// Deadline returns when the group's countdown elapses.
func (m *Manager) Deadline(group string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.countdowns[group]
	if !ok {
		return time.Time{}, false
	}
	return c.deadline, true
}

// Len returns the number of armed countdowns.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.countdowns)
}
