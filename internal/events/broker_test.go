package events

import (
	"strconv"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestBrokerDeliversInPublishOrder(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()

	const total = 200
	var got []string
	done := make(chan struct{})
	sub := b.Subscribe("c1", func(ch Change) {
		got = append(got, ch.ID)
		if len(got) == total {
			close(done)
		}
	})
	defer sub.Release()

	var want []string
	for i := 0; i < total; i++ {
		id := strconv.Itoa(i)
		want = append(want, id)
		b.Publish(Change{ID: id, Kind: ChangeUpdated, CandidateID: "c1"})
	}
	waitDone(t, done)
	assert.Equal(t, want, got)
}

func TestBrokerRoutesByCandidate(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()

	mine := make(chan Change, 4)
	all := make(chan Change, 4)
	subMine := b.Subscribe("c1", func(ch Change) { mine <- ch })
	subAll := b.SubscribeAll(func(ch Change) { all <- ch })
	defer subMine.Release()
	defer subAll.Release()

	b.Publish(Change{Kind: ChangeUpdated, CandidateID: "c2"})
	b.Publish(Change{Kind: ChangeUpdated, CandidateID: "c1"})

	select {
	case ch := <-mine:
		assert.Equal(t, "c1", ch.CandidateID)
		assert.NotEmpty(t, ch.ID)
		assert.False(t, ch.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
	for i := 0; i < 2; i++ {
		select {
		case <-all:
		case <-time.After(time.Second):
			t.Fatal("table-wide subscriber missed a change")
		}
	}
	assert.Len(t, mine, 0)
}

func TestSlowHandlerDoesNotBlockPublish(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()

	block := make(chan struct{})
	sub := b.Subscribe("c1", func(Change) { <-block })
	defer sub.Release()

	published := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(Change{CandidateID: "c1"})
		}
		close(published)
	}()
	waitDone(t, published)
	close(block)
}

func TestReleaseInsideHandler(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()

	var mu sync.Mutex
	calls := 0
	ready := make(chan struct{})
	var sub *Subscription
	sub = b.Subscribe("c1", func(Change) {
		<-ready
		mu.Lock()
		calls++
		mu.Unlock()
		sub.Release()
	})
	close(ready)

	b.Publish(Change{CandidateID: "c1"})
	b.Publish(Change{CandidateID: "c1"})
	waitDone(t, sub.Done())

	b.Publish(Change{CandidateID: "c1"})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Zero(t, b.SubscriberCount("c1"))
}

func TestReleaseIsIdempotent(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()

	sub := b.Subscribe("c1", func(Change) {})
	require.Equal(t, 1, b.SubscriberCount("c1"))
	sub.Release()
	sub.Release()
	waitDone(t, sub.Done())
	assert.Zero(t, b.SubscriberCount("c1"))

	var nilSub *Subscription
	assert.NotPanics(t, nilSub.Release)
}

func TestPanickingHandlerKeepsSubscription(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()

	seen := make(chan string, 2)
	sub := b.Subscribe("c1", func(ch Change) {
		if ch.ID == "boom" {
			panic("handler failure")
		}
		seen <- ch.ID
	})
	defer sub.Release()

	b.Publish(Change{ID: "boom", CandidateID: "c1"})
	b.Publish(Change{ID: "ok", CandidateID: "c1"})

	select {
	case id := <-seen:
		assert.Equal(t, "ok", id)
	case <-time.After(time.Second):
		t.Fatal("delivery stopped after panic")
	}
}

func TestCloseStopsSubscribers(t *testing.T) {
	b := NewBroker(zap.NewNop())
	sub := b.Subscribe("c1", func(Change) {})
	b.Close()
	waitDone(t, sub.Done())

	late := b.Subscribe("c1", func(Change) { t.Error("delivered after close") })
	waitDone(t, late.Done())
	b.Publish(Change{CandidateID: "c1"})
	b.Close()
}

func TestSubscriptionKeySurvivesBufferReuse(t *testing.T) {
	b := NewBroker(zap.NewNop())
	defer b.Close()

	// Request routers hand out ids that alias a recycled buffer.
	buf := []byte("c1")
	key := unsafe.String(&buf[0], len(buf))

	got := make(chan Change, 1)
	sub := b.Subscribe(key, func(ch Change) { got <- ch })
	copy(buf, "zz")

	assert.Equal(t, 1, b.SubscriberCount("c1"))
	b.Publish(Change{Kind: ChangeUpdated, CandidateID: "c1"})
	select {
	case ch := <-got:
		assert.Equal(t, "c1", ch.CandidateID)
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}

	sub.Release()
	assert.Zero(t, b.SubscriberCount("c1"))
}
