package hover

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DiscoveryTicker periodically posts JoinOut for the local node and
// translates every MemberLeft into exactly one LeftOut (spec.md §4.5). It
// holds no state beyond its own timer.
type DiscoveryTicker struct {
	logger *zap.Logger
	bus    *Bus
	local  NodeMeta
	rate   time.Duration
}

// NewDiscoveryTicker constructs a ticker posting JoinOut every rate.
func NewDiscoveryTicker(logger *zap.Logger, bus *Bus, local NodeMeta, rate time.Duration) *DiscoveryTicker {
	return &DiscoveryTicker{logger: logger.Named("ticker"), bus: bus, local: local, rate: rate}
}

// Run posts JoinOut{local} every rate until ctx is done.
func (t *DiscoveryTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.bus.Post(Event{Type: EventJoinOut, Node: t.local})
		}
	}
}

// HandleEvent converts each MemberLeft into exactly one LeftOut (spec.md
// §4.5).
func (t *DiscoveryTicker) HandleEvent(e Event) {
	if e.Type == EventMemberLeft {
		t.bus.Post(Event{Type: EventLeftOut, Node: e.Node})
	}
}
