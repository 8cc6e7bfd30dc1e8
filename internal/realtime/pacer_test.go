package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/event"
)

type recordedPublish struct {
	Quiz  string
	Event string
	Data  any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedPublish
}

func (r *recordingPublisher) Publish(_ context.Context, quizCode, eventName string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedPublish{Quiz: quizCode, Event: eventName, Data: data})
	return nil
}

func (r *recordingPublisher) all() []recordedPublish {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedPublish(nil), r.events...)
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestPacer(t *testing.T) (*Pacer, *recordingPublisher, *clockwork.FakeClock) {
	t.Helper()

	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClock()
	p := NewPacer(PacerConfig{EventBus: event.NewBus(), Publisher: pub, Clock: clock})
	t.Cleanup(p.Shutdown)

	return p, pub, clock
}

func waitForCount(t *testing.T, pub *recordingPublisher, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return pub.count() >= n },
		2*time.Second, 5*time.Millisecond)
}

func TestPacer_Countdown(t *testing.T) {
	p, pub, clock := newTestPacer(t)

	p.Restart("ABCD", 2)
	clock.BlockUntil(1)

	clock.Advance(time.Second)
	waitForCount(t, pub, 1)

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	waitForCount(t, pub, 3)

	got := pub.all()
	require.Len(t, got, 3)
	assert.Equal(t, recordedPublish{Quiz: "ABCD", Event: EventTimerUpdate, Data: TimerUpdatePayload{TimeLeft: 1}}, got[0])
	assert.Equal(t, recordedPublish{Quiz: "ABCD", Event: EventTimerUpdate, Data: TimerUpdatePayload{TimeLeft: 0}}, got[1])
	assert.Equal(t, EventTimeExpired, got[2].Event)
}

func TestPacer_StopCancelsCountdown(t *testing.T) {
	p, pub, clock := newTestPacer(t)

	p.Restart("ABCD", 30)
	clock.BlockUntil(1)

	p.Stop("ABCD")

	clock.Advance(time.Second)
	assert.Zero(t, pub.count())
}

func TestPacer_RestartReplacesCountdown(t *testing.T) {
	p, pub, clock := newTestPacer(t)

	p.Restart("ABCD", 30)
	clock.BlockUntil(1)

	// The next question replaces the previous countdown entirely.
	p.Restart("ABCD", 1)
	clock.BlockUntil(1)

	clock.Advance(time.Second)
	waitForCount(t, pub, 2)

	got := pub.all()
	require.Len(t, got, 2)
	assert.Equal(t, TimerUpdatePayload{TimeLeft: 0}, got[0].Data)
	assert.Equal(t, EventTimeExpired, got[1].Event)
}

func TestPacer_NoCountdownWithoutTimeLimit(t *testing.T) {
	p, pub, clock := newTestPacer(t)

	p.Restart("ABCD", 0)

	clock.Advance(time.Second)
	assert.Zero(t, pub.count())
}

func TestPacer_DrivenByBusEvents(t *testing.T) {
	ctx := context.Background()

	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClock()
	eb := event.NewBus()
	p := NewPacer(PacerConfig{EventBus: eb, Publisher: pub, Clock: clock})
	t.Cleanup(p.Shutdown)

	eb.Publish(ctx, domain.EventQuestionStarted{
		QuizCode:         "ABCD",
		QuestionIndex:    0,
		TimeLimitSeconds: 1,
	})
	clock.BlockUntil(1)

	clock.Advance(time.Second)
	waitForCount(t, pub, 2)

	got := pub.all()
	assert.Equal(t, EventTimerUpdate, got[0].Event)
	assert.Equal(t, EventTimeExpired, got[1].Event)

	// Ending the session cancels any countdown a later question started.
	eb.Publish(ctx, domain.EventQuestionStarted{QuizCode: "ABCD", TimeLimitSeconds: 30})
	clock.BlockUntil(1)
	eb.Publish(ctx, domain.EventSessionEnded{QuizCode: "ABCD"})
	eb.Stop()

	before := pub.count()
	clock.Advance(time.Second)
	assert.Equal(t, before, pub.count())
}
