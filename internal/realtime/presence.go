package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizlive/internal/telemetry"
)

const (
	defaultHeartbeatTTL  = 15 * time.Second
	defaultPruneInterval = 5 * time.Second
)

type PresenceConfig struct {
	Clock         clockwork.Clock
	HeartbeatTTL  time.Duration
	PruneInterval time.Duration
}

// Presence tracks connection liveness from heartbeat frames. It only
// maintains the tracking table and the live-connections gauge: pruning a
// stale entry never touches rosters or recorded answers.
type Presence struct {
	clock clockwork.Clock
	ttl   time.Duration
	every time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewPresence(c PresenceConfig) *Presence {
	p := &Presence{
		clock:    c.Clock,
		ttl:      c.HeartbeatTTL,
		every:    c.PruneInterval,
		lastSeen: make(map[string]time.Time),
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	if p.ttl <= 0 {
		p.ttl = defaultHeartbeatTTL
	}
	if p.every <= 0 {
		p.every = defaultPruneInterval
	}

	return p
}

// Run prunes stale entries until the context is canceled.
func (p *Presence) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if pruned := p.prune(); pruned > 0 {
				slog.InfoContext(ctx, "presence: pruned stale connections", "count", pruned)
			}
		}
	}
}

func (p *Presence) Track(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastSeen[connectionID] = p.clock.Now()
	telemetry.ConnectionsLive.Set(float64(len(p.lastSeen)))
}

// Touch refreshes the heartbeat timestamp; unknown connections are ignored.
func (p *Presence) Touch(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.lastSeen[connectionID]; ok {
		p.lastSeen[connectionID] = p.clock.Now()
	}
}

func (p *Presence) Forget(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.lastSeen, connectionID)
	telemetry.ConnectionsLive.Set(float64(len(p.lastSeen)))
}

// Alive reports whether the connection has a fresh heartbeat.
func (p *Presence) Alive(connectionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen, ok := p.lastSeen[connectionID]
	return ok && p.clock.Now().Sub(seen) <= p.ttl
}

func (p *Presence) prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	pruned := 0
	for id, seen := range p.lastSeen {
		if now.Sub(seen) > p.ttl {
			delete(p.lastSeen, id)
			pruned++
		}
	}
	telemetry.ConnectionsLive.Set(float64(len(p.lastSeen)))

	return pruned
}
