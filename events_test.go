package hover

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusDeliversInPostedOrder(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	var mu sync.Mutex
	var seen []EventType

	bus.AddListener(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	bus.Post(Event{Type: EventJoinIn})
	bus.Post(Event{Type: EventLeftIn})
	bus.Post(Event{Type: EventMemberAdded})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []EventType{EventJoinIn, EventLeftIn, EventMemberAdded}, seen)
}

func TestBusListenerPanicDoesNotStopOtherListeners(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	var secondCalled bool
	var mu sync.Mutex

	bus.AddListener(func(e Event) {
		panic("boom")
	})
	bus.AddListener(func(e Event) {
		mu.Lock()
		secondCalled = true
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	bus.Post(Event{Type: EventEmpty})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondCalled
	}, time.Second, 5*time.Millisecond)
}

func TestBusMultipleListenersAllReceive(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	var count int32Counter
	bus.AddListener(func(e Event) { count.inc() })
	bus.AddListener(func(e Event) { count.inc() })
	bus.AddListener(func(e Event) { count.inc() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	bus.Post(Event{Type: EventEmpty})

	require.Eventually(t, func() bool { return count.get() == 3 }, time.Second, 5*time.Millisecond)
}

// int32Counter is a tiny mutex-guarded counter local to this test file.
type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
