package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrStopped is returned when work is submitted to a stopped engine.
var ErrStopped = errors.New("engine stopped")

// work is a unit executed on the engine goroutine.
// All engine state MUST only be touched from work.
type work func()

// executor serializes notifications, ticks and timer expirations onto one goroutine.
type executor struct {
	queue chan work

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func newExecutor(queueSize int) *executor {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &executor{
		queue:   make(chan work, queueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run processes work until ctx is cancelled or the executor is closed.
func (x *executor) Run(ctx context.Context) {
	defer close(x.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-x.closing:
			return
		case w := <-x.queue:
			x.run(w)
		}
	}
}

func (x *executor) run(w work) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Engine work panicked")
		}
	}()
	w()
}

// Do queues work, blocking while the queue is full.
// Returns false if the executor is closing.
func (x *executor) Do(w work) bool {
	select {
	case <-x.closing:
		return false
	default:
	}

	select {
	case <-x.closing:
		return false
	case x.queue <- w:
		return true
	}
}

// Call queues work and waits for it to complete.
// Must not be called from within work.
func (x *executor) Call(ctx context.Context, w work) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		w()
	}

	select {
	case <-x.closing:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case x.queue <- wrapped:
	}

	select {
	case <-finished:
		return nil
	case <-x.closing:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work. Queued work that has not started is abandoned.
func (x *executor) Close() {
	x.closeOnce.Do(func() {
		close(x.closing)
	})
}

// Done is closed once Run has returned.
func (x *executor) Done() <-chan struct{} {
	return x.done
}
