package ws

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestPublishReachesOnlySubjectSubscribers(t *testing.T) {
	h := NewHub(4)
	a1 := h.Subscribe("CS101")
	a2 := h.Subscribe("CS101")
	b := h.Subscribe("MA201")
	defer a1.Close()
	defer a2.Close()
	defer b.Close()

	h.Publish("CS101", "queue-changed")

	assert.Equal(t, Event{Subject: "CS101", Kind: "queue-changed"}, receive(t, a1))
	assert.Equal(t, Event{Subject: "CS101", Kind: "queue-changed"}, receive(t, a2))
	assert.Len(t, b.C, 0)
}

func TestEventsKeepPublishOrder(t *testing.T) {
	h := NewHub(8)
	s := h.Subscribe("CS101")
	defer s.Close()

	h.Publish("CS101", "queue-changed")
	h.Publish("CS101", "broadcast-changed")
	h.Publish("CS101", "queue-changed")

	assert.Equal(t, "queue-changed", receive(t, s).Kind)
	assert.Equal(t, "broadcast-changed", receive(t, s).Kind)
	assert.Equal(t, "queue-changed", receive(t, s).Kind)
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	h := NewHub(2)
	slow := h.Subscribe("CS101")
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish("CS101", "queue-changed")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, slow.C, 2)
	assert.EqualValues(t, 98, slow.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(1)
	s := h.Subscribe("CS101")
	require.Equal(t, 1, h.Subscribers("CS101"))

	s.Close()
	s.Close()

	_, ok := <-s.C
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers("CS101"))

	h.Publish("CS101", "queue-changed")
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	h := NewHub(16)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := h.Subscribe("CS101")
			s.Close()
		}()
		go func() {
			defer wg.Done()
			h.Publish("CS101", "queue-changed")
		}()
	}
	wg.Wait()
	assert.Zero(t, h.Subscribers("CS101"))
}
