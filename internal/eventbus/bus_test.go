package eventbus

import (
	"context"
	"testing"
	"time"
)

func receive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBus_DeliversInOrder(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	got := make(chan Event, 10)
	b.Subscribe(EventStateChange, func(ev Event) { got <- ev })

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: EventStateChange, Data: i})
	}
	for i := 0; i < 5; i++ {
		ev := receive(t, got)
		if ev.Data != i {
			t.Errorf("event %d Data = %v, want %d", i, ev.Data, i)
		}
	}
}

func TestBus_RoutesByType(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	scenes := make(chan Event, 1)
	members := make(chan Event, 1)
	b.Subscribe(EventScenesChanged, func(ev Event) { scenes <- ev })
	b.Subscribe(EventMembersChanged, func(ev Event) { members <- ev })

	b.Publish(Event{Type: EventMembersChanged})
	if ev := receive(t, members); ev.Type != EventMembersChanged {
		t.Errorf("Type = %v, want %v", ev.Type, EventMembersChanged)
	}

	select {
	case ev := <-scenes:
		t.Errorf("unexpected %v delivered to scenes handler", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	first := make(chan Event, 1)
	second := make(chan Event, 1)
	sub := b.Subscribe(EventStateChange, func(ev Event) { first <- ev })
	b.Subscribe(EventStateChange, func(ev Event) { second <- ev })

	sub.Unsubscribe()
	sub.Unsubscribe()
	if n := b.Subscribers(EventStateChange); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}

	b.Publish(Event{Type: EventStateChange})
	receive(t, second)

	select {
	case <-first:
		t.Error("unsubscribed handler received event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_PanicDoesNotStopWorker(t *testing.T) {
	b := New()
	defer b.Close(context.Background())

	got := make(chan Event, 1)
	b.Subscribe(EventStateChange, func(ev Event) {
		if ev.Data == "boom" {
			panic("boom")
		}
		got <- ev
	})

	b.Publish(Event{Type: EventStateChange, Data: "boom"})
	b.Publish(Event{Type: EventStateChange, Data: "ok"})

	if ev := receive(t, got); ev.Data != "ok" {
		t.Errorf("Data = %v, want ok", ev.Data)
	}
}

func TestBus_PublishAfterCloseIsDropped(t *testing.T) {
	b := New()
	called := make(chan struct{}, 1)
	b.Subscribe(EventStateChange, func(Event) { called <- struct{}{} })

	b.Close(context.Background())
	b.Close(context.Background())
	b.Publish(Event{Type: EventStateChange})

	select {
	case <-called:
		t.Error("handler called after Close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_FullQueueDrops(t *testing.T) {
	b := NewWithConfig(1, 1)
	defer b.Close(context.Background())

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	delivered := make(chan Event, 10)
	b.Subscribe(EventStateChange, func(ev Event) {
		if ev.Data == 0 {
			started <- struct{}{}
			<-release
		}
		delivered <- ev
	})

	b.Publish(Event{Type: EventStateChange, Data: 0})
	<-started
	b.Publish(Event{Type: EventStateChange, Data: 1}) // queued
	b.Publish(Event{Type: EventStateChange, Data: 2}) // dropped
	close(release)

	receive(t, delivered)
	if ev := receive(t, delivered); ev.Data != 1 {
		t.Errorf("Data = %v, want 1", ev.Data)
	}
	select {
	case ev := <-delivered:
		t.Errorf("unexpected delivery of %v", ev.Data)
	case <-time.After(50 * time.Millisecond):
	}
}
