package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StateChangedEvent, 1)

	unsub := bus.Subscribe(func(e StateChangedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(StateChangedEvent{From: "idle", To: "starting", Timestamp: "2025-01-27T10:30:00Z"})

	got := <-received
	if got.To != "starting" {
		t.Errorf("expected to=starting, got %s", got.To)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan RestartScheduledEvent, 1)
	received2 := make(chan RestartScheduledEvent, 1)

	unsub1 := bus.Subscribe(func(e RestartScheduledEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e RestartScheduledEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(RestartScheduledEvent{Attempt: 1, Delay: "1s"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan StateChangedEvent, 1)

	unsub := bus.Subscribe(func(e StateChangedEvent) {
		received <- e
	})

	bus.Publish(StateChangedEvent{From: "idle", To: "starting"})
	<-received

	unsub()
	bus.Publish(StateChangedEvent{From: "starting", To: "streaming"})

	select {
	case e := <-received:
		t.Errorf("received event after unsubscribe: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_UnknownHandlerIsNoop(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(s string) {})
	unsub()
}
