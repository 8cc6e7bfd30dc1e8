package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/event"
)

const (
	EventTimerUpdate = "timer_update"
	EventTimeExpired = "time_expired"
)

type TimerUpdatePayload struct {
	TimeLeft int `json:"time_left"`
}

// Publisher is the slice of the broadcaster the pacer needs.
type Publisher interface {
	Publish(ctx context.Context, quizCode, eventName string, data any) error
}

type PacerConfig struct {
	EventBus  *event.Bus
	Publisher Publisher
	Clock     clockwork.Clock
}

// Pacer broadcasts the per-question countdown: one timer_update per second
// and a final time_expired. The countdown is advisory only; the router
// keeps accepting answers until the host moves on, so a slow client is
// never cut off by the server. Starting a question replaces any countdown
// already running for the session.
type Pacer struct {
	pub   Publisher
	clock clockwork.Clock

	mu     sync.Mutex
	active map[string]*countdown
}

type countdown struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPacer(c PacerConfig) *Pacer {
	p := &Pacer{
		pub:    c.Publisher,
		clock:  c.Clock,
		active: make(map[string]*countdown),
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}

	c.EventBus.Subscribe(domain.EventNameQuestionStarted, func(ctx context.Context, e event.Event) error {
		started := e.(domain.EventQuestionStarted)
		p.Restart(started.QuizCode, started.TimeLimitSeconds)
		return nil
	})

	c.EventBus.Subscribe(domain.EventNameSessionEnded, func(ctx context.Context, e event.Event) error {
		p.Stop(e.(domain.EventSessionEnded).QuizCode)
		return nil
	})

	return p
}

// Restart begins a fresh countdown for the session, replacing any running
// one.
func (p *Pacer) Restart(quizCode string, seconds int) {
	if seconds <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cd := &countdown{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.active[quizCode]
	p.active[quizCode] = cd
	p.mu.Unlock()

	stopCountdown(prev)

	go p.run(ctx, quizCode, seconds, cd)
}

// Stop cancels the session's countdown, if any.
func (p *Pacer) Stop(quizCode string) {
	p.mu.Lock()
	cd := p.active[quizCode]
	delete(p.active, quizCode)
	p.mu.Unlock()

	stopCountdown(cd)
}

// Shutdown cancels every running countdown.
func (p *Pacer) Shutdown() {
	p.mu.Lock()
	all := make([]*countdown, 0, len(p.active))
	for code, cd := range p.active {
		all = append(all, cd)
		delete(p.active, code)
	}
	p.mu.Unlock()

	for _, cd := range all {
		stopCountdown(cd)
	}
}

func (p *Pacer) run(ctx context.Context, quizCode string, seconds int, cd *countdown) {
	defer close(cd.done)

	ticker := p.clock.NewTicker(time.Second)
	defer ticker.Stop()

	timeLeft := seconds
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			timeLeft--
			p.publish(ctx, quizCode, EventTimerUpdate, TimerUpdatePayload{TimeLeft: timeLeft})
			if timeLeft <= 0 {
				p.publish(ctx, quizCode, EventTimeExpired, struct{}{})
				p.clear(quizCode, cd)
				return
			}
		}
	}
}

// clear drops the countdown from the active map unless it was already
// replaced by a newer one.
func (p *Pacer) clear(quizCode string, cd *countdown) {
	p.mu.Lock()
	if p.active[quizCode] == cd {
		delete(p.active, quizCode)
	}
	p.mu.Unlock()
}

func (p *Pacer) publish(ctx context.Context, quizCode, eventName string, data any) {
	if err := p.pub.Publish(ctx, quizCode, eventName, data); err != nil {
		slog.ErrorContext(ctx, "pacer: publish failed",
			"quiz", quizCode,
			"event", eventName,
			"error", err,
		)
	}
}

func stopCountdown(cd *countdown) {
	if cd == nil {
		return
	}
	cd.cancel()
	<-cd.done
}
