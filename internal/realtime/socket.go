package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/session"
)

// Inbound protocol events, decoded from {"event": ..., "data": {...}}
// frames.
const (
	inJoinHost       = "join_host"
	inJoinGame       = "join_game"
	inStartQuiz      = "start_quiz"
	inNextQuestion   = "next_question"
	inSelectAnswer   = "select_answer"
	inQuizEnded      = "quiz_ended"
	inQuizTerminated = "quiz_terminated"
	inHeartbeat      = "heartbeat"
)

const (
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	maxMessageSize = 4096
)

type GatewayConfig struct {
	Router      *session.Service
	Redis       redis.UniversalClient
	Broadcaster *Broadcaster
	Presence    *Presence
}

// Gateway upgrades HTTP connections to websockets and bridges them onto the
// protocol: inbound frames become router calls, and the connection's redis
// subscriptions (its private channel plus, after a successful join, the
// session group channel) flow back out over the socket.
type Gateway struct {
	router   *session.Service
	redis    redis.UniversalClient
	bc       *Broadcaster
	presence *Presence
	upgrader websocket.Upgrader
}

func NewGateway(c GatewayConfig) *Gateway {
	return &Gateway{
		router:   c.Router,
		redis:    c.Redis,
		bc:       c.Broadcaster,
		presence: c.Presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "realtime: websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	g.handleConn(r.Context(), conn, connID)
}

// inboundFrame is an envelope from the client; data stays raw until the
// event name tells us its shape.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (g *Gateway) handleConn(ctx context.Context, conn *websocket.Conn, connID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := g.redis.Subscribe(ctx, g.bc.ConnChannel(connID))

	g.presence.Track(connID)

	slog.InfoContext(ctx, "realtime: connection opened", "connection", connID)

	defer func() {
		g.presence.Forget(connID)
		g.router.Disconnect(context.WithoutCancel(ctx), connID)
		_ = sub.Close()
		_ = conn.Close()
		slog.InfoContext(ctx, "realtime: connection closed", "connection", connID)
	}()

	// Single writer: frames from redis and locally generated error frames
	// both go through outbound, because gorilla connections allow only one
	// concurrent writer.
	outbound := make(chan []byte, 32)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-sub.Channel():
				if !ok {
					return
				}
				g.write(conn, []byte(m.Payload))
			case b := <-outbound:
				g.write(conn, b)
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.WarnContext(ctx, "realtime: read failed", "connection", connID, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.sendError(outbound, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("malformed frame")))
			continue
		}

		if err := g.dispatch(ctx, sub, connID, frame); err != nil {
			g.sendError(outbound, err)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, sub *redis.PubSub, connID string, frame inboundFrame) error {
	switch frame.Event {
	case inJoinHost:
		var d struct {
			QuizCode string `json:"quiz_code"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return badData(err)
		}
		// Group membership precedes routing so the connection sees the
		// broadcasts its own join produces.
		group := g.bc.GroupChannel(session.CanonicalCode(d.QuizCode))
		if err := sub.Subscribe(ctx, group); err != nil {
			return err
		}
		if _, err := g.router.JoinHost(ctx, session.JoinHostRequest{ConnectionID: connID, QuizCode: d.QuizCode}); err != nil {
			_ = sub.Unsubscribe(ctx, group)
			return err
		}
		return nil

	case inJoinGame:
		var d struct {
			QuizCode   string `json:"quiz_code"`
			PlayerName string `json:"player_name"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return badData(err)
		}
		group := g.bc.GroupChannel(session.CanonicalCode(d.QuizCode))
		if err := sub.Subscribe(ctx, group); err != nil {
			return err
		}
		if _, err := g.router.JoinGame(ctx, session.JoinGameRequest{
			ConnectionID: connID,
			QuizCode:     d.QuizCode,
			PlayerName:   d.PlayerName,
		}); err != nil {
			_ = sub.Unsubscribe(ctx, group)
			return err
		}
		return nil

	case inStartQuiz:
		req, err := hostCommand(connID, frame.Data)
		if err != nil {
			return err
		}
		return g.router.StartQuiz(ctx, req)

	case inNextQuestion:
		req, err := hostCommand(connID, frame.Data)
		if err != nil {
			return err
		}
		return g.router.NextQuestion(ctx, req)

	case inQuizEnded:
		req, err := hostCommand(connID, frame.Data)
		if err != nil {
			return err
		}
		return g.router.EndQuiz(ctx, req)

	case inQuizTerminated:
		req, err := hostCommand(connID, frame.Data)
		if err != nil {
			return err
		}
		return g.router.Terminate(ctx, req)

	case inSelectAnswer:
		var d struct {
			QuizCode   string `json:"quiz_code"`
			PlayerID   int    `json:"player_id"`
			QuestionID int    `json:"question_id"`
			AnswerID   int    `json:"answer_id"`
		}
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			return badData(err)
		}
		return g.router.SelectAnswer(ctx, session.SelectAnswerRequest{
			QuizCode:   d.QuizCode,
			PlayerID:   d.PlayerID,
			QuestionID: d.QuestionID,
			AnswerID:   d.AnswerID,
		})

	case inHeartbeat:
		g.presence.Touch(connID)
		return nil

	default:
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown event %q", frame.Event))
	}
}

func hostCommand(connID string, data json.RawMessage) (session.HostCommandRequest, error) {
	var d struct {
		QuizCode string `json:"quiz_code"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return session.HostCommandRequest{}, badData(err)
	}
	return session.HostCommandRequest{ConnectionID: connID, QuizCode: d.QuizCode}, nil
}

func badData(err error) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("malformed event data"),
		errors.WithCause(err))
}

func (g *Gateway) write(conn *websocket.Conn, payload []byte) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Warn("realtime: write failed", "error", err)
	}
}

// sendError reports a failed event back to the originating connection only.
// Other connections and the session itself are unaffected.
func (g *Gateway) sendError(outbound chan<- []byte, err error) {
	e := errors.Convert(err)
	payload, mErr := json.Marshal(Notification{
		Event: "error",
		Data:  errorPayload{Code: int(e.Code), Message: e.Message},
	})
	if mErr != nil {
		return
	}

	select {
	case outbound <- payload:
	default:
		// Slow consumer; drop the error frame rather than block the reader.
	}
}
