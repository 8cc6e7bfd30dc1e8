package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/event"
	"github.com/victornm/quizlive/internal/session"
)

func newTestGateway(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	reg := session.NewRegistry()
	bc := NewBroadcaster(BroadcasterConfig{Redis: client, Prefix: "quizlive"})
	router := session.NewService(session.Config{
		Registry:    reg,
		Directory:   session.NewDirectory(),
		Broadcaster: bc,
		EventBus:    event.NewBus(),
	})

	g := NewGateway(GatewayConfig{
		Router:      router,
		Redis:       client,
		Broadcaster: bc,
		Presence:    NewPresence(PresenceConfig{}),
	})

	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	t.Cleanup(srv.Close)

	return srv, reg
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, eventName string, data any) {
	t.Helper()

	b, err := json.Marshal(map[string]any{"event": eventName, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

// waitForFrame reads until a frame with the wanted event arrives, skipping
// everything else on the socket.
func waitForFrame(t *testing.T, conn *websocket.Conn, eventName string) Notification {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q frame", eventName)

		var n Notification
		require.NoError(t, json.Unmarshal(data, &n))
		if n.Event == eventName {
			return n
		}
	}
}

func gatewayQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		Title:            "capitals",
		TimeLimitSeconds: 20,
		Questions: []domain.Question{
			{ID: 1, Text: "Capital of France?", Answers: []domain.AnswerOption{
				{ID: 1, Text: "Paris", IsCorrect: true},
				{ID: 2, Text: "Lyon"},
			}},
		},
	}
}

func TestGateway_MalformedFrames(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dialWS(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	got := waitForFrame(t, conn, "error")
	assert.NotEmpty(t, got.Data)

	sendFrame(t, conn, "no_such_event", map[string]any{})
	got = waitForFrame(t, conn, "error")
	data := got.Data.(map[string]any)
	assert.Contains(t, data["message"], "no_such_event")
}

func TestGateway_JoinErrorsGoToSenderOnly(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dialWS(t, srv)

	sendFrame(t, conn, "join_game", map[string]any{"quiz_code": "NOPE42", "player_name": "ana"})

	got := waitForFrame(t, conn, "error")
	data := got.Data.(map[string]any)
	assert.Equal(t, float64(errors.CodeNotFound), data["code"])
}

func TestGateway_JoinGame(t *testing.T) {
	srv, reg := newTestGateway(t)
	reg.Adopt("ABCD", gatewayQuiz())

	ana := dialWS(t, srv)
	sendFrame(t, ana, "join_game", map[string]any{"quiz_code": "ABCD", "player_name": "ana"})

	// The joiner is in the group before the join is routed, so it observes
	// its own announcement as well as its private snapshot.
	joined := waitForFrame(t, ana, session.EventPlayerJoined)
	assert.Equal(t, "ana", joined.Data.(map[string]any)["name"])

	state := waitForFrame(t, ana, session.EventQuizState)
	assert.Equal(t, false, state.Data.(map[string]any)["is_active"])

	// A second joiner's announcement reaches the first connection through
	// the group channel.
	ben := dialWS(t, srv)
	sendFrame(t, ben, "join_game", map[string]any{"quiz_code": "abcd", "player_name": "ben"})

	joined = waitForFrame(t, ana, session.EventPlayerJoined)
	assert.Equal(t, "ben", joined.Data.(map[string]any)["name"])
}

func TestGateway_HostCommands(t *testing.T) {
	srv, reg := newTestGateway(t)
	sess := reg.Adopt("ABCD", gatewayQuiz())

	player := dialWS(t, srv)
	sendFrame(t, player, "join_game", map[string]any{"quiz_code": "ABCD", "player_name": "ana"})
	waitForFrame(t, player, session.EventQuizState)

	host := dialWS(t, srv)
	sendFrame(t, host, "join_host", map[string]any{"quiz_code": "ABCD"})
	waitForFrame(t, host, session.EventPlayersList)

	sendFrame(t, host, "start_quiz", map[string]any{"quiz_code": "ABCD"})
	waitForFrame(t, player, session.EventQuizStarted)
	assert.Equal(t, domain.PhaseActive, sess.Phase())

	// A player connection issuing a host command gets an error frame while
	// the session stays untouched.
	sendFrame(t, player, "quiz_ended", map[string]any{"quiz_code": "ABCD"})
	waitForFrame(t, player, "error")
	assert.Equal(t, domain.PhaseActive, sess.Phase())
}

func TestGateway_DisconnectRemovesPlayer(t *testing.T) {
	srv, reg := newTestGateway(t)
	sess := reg.Adopt("ABCD", gatewayQuiz())

	ana := dialWS(t, srv)
	sendFrame(t, ana, "join_game", map[string]any{"quiz_code": "ABCD", "player_name": "ana"})
	waitForFrame(t, ana, session.EventQuizState)

	ben := dialWS(t, srv)
	sendFrame(t, ben, "join_game", map[string]any{"quiz_code": "ABCD", "player_name": "ben"})
	waitForFrame(t, ben, session.EventQuizState)

	require.Equal(t, 2, sess.RosterSize())

	require.NoError(t, ana.Close())

	left := waitForFrame(t, ben, session.EventPlayerLeft)
	assert.Equal(t, float64(1), left.Data.(map[string]any)["player_id"])
	require.Eventually(t, func() bool { return sess.RosterSize() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestGateway_HeartbeatIsSilent(t *testing.T) {
	srv, _ := newTestGateway(t)
	conn := dialWS(t, srv)

	sendFrame(t, conn, "heartbeat", map[string]any{})

	// A heartbeat produces no reply; the next error frame on the socket
	// belongs to the unknown event sent after it.
	sendFrame(t, conn, "bogus", map[string]any{})
	got := waitForFrame(t, conn, "error")
	assert.Contains(t, got.Data.(map[string]any)["message"], "bogus")
}
