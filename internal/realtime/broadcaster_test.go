package realtime

import (
	"testing"
)

func pending(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestBroadcaster_PublishSignalsSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("session-1")
	defer b.Unsubscribe("session-1", ch)

	b.Publish("session-1")
	if !pending(ch) {
		t.Error("expected a signal for session-1")
	}
	if pending(ch) {
		t.Error("expected exactly one signal")
	}
}

func TestBroadcaster_PublishSignalsEverySubscriberOfTopic(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.Subscribe("s")
	ch2 := b.Subscribe("s")
	defer b.Unsubscribe("s", ch1)
	defer b.Unsubscribe("s", ch2)

	b.Publish("s")
	if !pending(ch1) {
		t.Error("ch1 not signalled")
	}
	if !pending(ch2) {
		t.Error("ch2 not signalled")
	}
}

func TestBroadcaster_TopicsAreIsolated(t *testing.T) {
	b := NewBroadcaster()
	mine := b.Subscribe("my-session")
	defer b.Unsubscribe("my-session", mine)

	for i := 0; i < 100; i++ {
		b.Publish("other-session")
	}
	if pending(mine) {
		t.Fatal("signalled for another session's change")
	}

	b.Publish("my-session")
	if !pending(mine) {
		t.Error("own change after a flood of other changes was not signalled")
	}
}

func TestBroadcaster_BurstCollapsesIntoOneSignal(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("s")
	defer b.Unsubscribe("s", ch)

	for i := 0; i < 50; i++ {
		b.Publish("s")
	}
	if len(ch) != 1 {
		t.Fatalf("pending signals = %d, want 1", len(ch))
	}
	<-ch

	// A change after the drain is signalled again.
	b.Publish("s")
	if !pending(ch) {
		t.Error("change after drain was not signalled")
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("s")
	b.Unsubscribe("s", ch)
	if _, open := <-ch; open {
		t.Error("channel should be closed after Unsubscribe")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
	// A second unsubscribe must not panic on the closed channel.
	b.Unsubscribe("s", ch)
	b.Publish("s")
}
