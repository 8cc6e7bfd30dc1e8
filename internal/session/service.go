package session

import (
	"context"
	"log/slog"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/event"
)

// Broadcaster is the group-addressed transport the router emits through.
// The transport owns group membership; the router only deals in quiz codes
// as group identifiers and connection ids for single-connection emits.
// Delivery is fire-and-forget.
type Broadcaster interface {
	Publish(ctx context.Context, quizCode, eventName string, data any) error
	PublishTo(ctx context.Context, connectionID, eventName string, data any) error
}

type Config struct {
	Registry    *Registry
	Directory   *Directory
	Broadcaster Broadcaster
	EventBus    *event.Bus
}

// Service is the event router: it validates each inbound protocol event
// against the session's phase and the caller's role, applies the mutation
// under the per-session guard, and computes the outbound broadcasts.
// It holds no state of its own.
type Service struct {
	reg *Registry
	dir *Directory
	bc  Broadcaster
	eb  *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		reg: c.Registry,
		dir: c.Directory,
		bc:  c.Broadcaster,
		eb:  c.EventBus,
	}
}

type JoinHostRequest struct {
	ConnectionID string
	QuizCode     string
}

type JoinHostResponse struct {
	QuizCode string
}

// JoinHost binds the connection as the session's host and sends the current
// roster to that connection only. A rejoining host is not rejected.
func (s *Service) JoinHost(ctx context.Context, req JoinHostRequest) (*JoinHostResponse, error) {
	sess, err := s.reg.Get(req.QuizCode)
	if err != nil {
		return nil, err
	}

	s.dir.BindHost(req.ConnectionID, sess.Code())

	s.emitTo(ctx, req.ConnectionID, EventPlayersList, playersListPayload(sess.Players()))

	return &JoinHostResponse{QuizCode: sess.Code()}, nil
}

type JoinGameRequest struct {
	ConnectionID string
	QuizCode     string
	PlayerName   string
}

type JoinGameResponse struct {
	QuizCode string
	Player   domain.Player
}

// JoinGame is valid in any phase. It allocates a fresh player, announces it
// to the group, and sends the joining connection the roster plus a progress
// snapshot so a late joiner can reconstruct the board without replaying
// history.
func (s *Service) JoinGame(ctx context.Context, req JoinGameRequest) (*JoinGameResponse, error) {
	sess, err := s.reg.Get(req.QuizCode)
	if err != nil {
		return nil, err
	}
	if req.PlayerName == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("player name is required"))
	}

	player, snap := sess.Join(req.PlayerName, req.ConnectionID)
	s.dir.BindPlayer(req.ConnectionID, sess.Code(), player.ID)

	s.emit(ctx, sess.Code(), EventPlayerJoined, PlayerJoinedPayload{
		PlayerID: player.ID,
		Name:     player.Name,
		Color:    player.Color,
	})

	s.emitTo(ctx, req.ConnectionID, EventPlayersList, playersListPayload(sess.Players()))
	s.emitTo(ctx, req.ConnectionID, EventQuizState, QuizStatePayload{
		IsActive:             snap.IsActive,
		CurrentQuestionIndex: snap.CurrentQuestionIndex,
		PlayerAnswers:        snap.PlayerAnswers,
	})

	return &JoinGameResponse{QuizCode: sess.Code(), Player: player}, nil
}

type HostCommandRequest struct {
	ConnectionID string
	QuizCode     string
}

// StartQuiz moves the session to Active at question 0 and announces it.
// Only the bound host may start, and only from the Lobby with at least one
// player joined.
func (s *Service) StartQuiz(ctx context.Context, req HostCommandRequest) error {
	sess, err := s.hostSession(req)
	if err != nil {
		return err
	}

	if err := sess.Start(); err != nil {
		return err
	}

	s.emit(ctx, sess.Code(), EventQuizStarted, struct{}{})

	s.eb.Publish(ctx, domain.EventQuestionStarted{
		QuizCode:         sess.Code(),
		QuestionIndex:    0,
		TimeLimitSeconds: sess.TimeLimit(),
	})

	return nil
}

// NextQuestion advances the active session to the next question. When no
// questions remain the host is expected to end the quiz instead; advancing
// past the end fails.
func (s *Service) NextQuestion(ctx context.Context, req HostCommandRequest) error {
	sess, err := s.hostSession(req)
	if err != nil {
		return err
	}

	index, err := sess.Advance()
	if err != nil {
		return err
	}

	s.emit(ctx, sess.Code(), EventQuestionChanged, QuestionChangedPayload{QuestionIndex: index})

	s.eb.Publish(ctx, domain.EventQuestionStarted{
		QuizCode:         sess.Code(),
		QuestionIndex:    index,
		TimeLimitSeconds: sess.TimeLimit(),
	})

	return nil
}

type SelectAnswerRequest struct {
	QuizCode   string
	PlayerID   int
	QuestionID int
	AnswerID   int
}

// SelectAnswer records the player's answer for the current question and
// announces the selection to the group. A submission against a stale
// question or an unknown player is silently dropped, matching the lenient
// protocol: the sender gets no error and nothing is mutated.
func (s *Service) SelectAnswer(ctx context.Context, req SelectAnswerRequest) error {
	sess, err := s.reg.Get(req.QuizCode)
	if err != nil {
		return err
	}

	player, ok := sess.RecordAnswer(req.QuestionID, req.PlayerID, req.AnswerID)
	if !ok {
		slog.DebugContext(ctx, "session: dropped answer",
			"quiz", sess.Code(),
			"player_id", req.PlayerID,
			"question_id", req.QuestionID,
		)
		return nil
	}

	s.emit(ctx, sess.Code(), EventAnswerSelected, AnswerSelectedPayload{
		PlayerID:    player.ID,
		AnswerID:    req.AnswerID,
		PlayerName:  player.Name,
		PlayerColor: player.Color,
	})

	s.eb.Publish(ctx, domain.EventAnswerRecorded{
		QuizCode:   sess.Code(),
		PlayerID:   player.ID,
		QuestionID: req.QuestionID,
		AnswerID:   req.AnswerID,
	})

	return nil
}

// EndQuiz moves the active session to Ended and announces it. The session
// stays in the registry so stats remain queryable.
func (s *Service) EndQuiz(ctx context.Context, req HostCommandRequest) error {
	sess, err := s.hostSession(req)
	if err != nil {
		return err
	}

	if err := sess.End(); err != nil {
		return err
	}

	s.emit(ctx, sess.Code(), EventQuizEnded, struct{}{})

	s.eb.Publish(ctx, domain.EventSessionEnded{QuizCode: sess.Code()})

	return nil
}

// Terminate ends the session from any earlier phase, tells every player
// connection to leave immediately, and removes the session from the
// registry.
func (s *Service) Terminate(ctx context.Context, req HostCommandRequest) error {
	sess, err := s.hostSession(req)
	if err != nil {
		return err
	}

	if err := sess.Terminate(); err != nil {
		return err
	}

	s.emit(ctx, sess.Code(), EventQuizTerminated, struct{}{})

	s.reg.Remove(sess.Code())

	s.eb.Publish(ctx, domain.EventSessionEnded{QuizCode: sess.Code(), Terminated: true})

	return nil
}

// Disconnect routes connection cleanup. A player is removed from the roster
// (answers already recorded are kept) and the group is told; a host
// disconnect leaves the session running so the host can rejoin.
func (s *Service) Disconnect(ctx context.Context, connectionID string) {
	b, ok := s.dir.Unbind(connectionID)
	if !ok {
		return
	}

	if b.Role != domain.RolePlayer {
		return
	}

	sess, err := s.reg.Get(b.QuizCode)
	if err != nil {
		// Session already terminated; nothing to clean up.
		return
	}

	if sess.RemovePlayer(b.PlayerID) {
		s.emit(ctx, sess.Code(), EventPlayerLeft, PlayerLeftPayload{PlayerID: b.PlayerID})
	}
}

// hostSession resolves the session and checks that the connection is bound
// as its host.
func (s *Service) hostSession(req HostCommandRequest) (*Session, error) {
	sess, err := s.reg.Get(req.QuizCode)
	if err != nil {
		return nil, err
	}

	b, ok := s.dir.Lookup(req.ConnectionID)
	if !ok || b.Role != domain.RoleHost || b.QuizCode != sess.Code() {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("connection is not the host of quiz %s", sess.Code()))
	}

	return sess, nil
}

func (s *Service) emit(ctx context.Context, code, eventName string, data any) {
	if err := s.bc.Publish(ctx, code, eventName, data); err != nil {
		slog.ErrorContext(ctx, "session: broadcast failed",
			"quiz", code,
			"event", eventName,
			"error", err,
		)
	}
}

func (s *Service) emitTo(ctx context.Context, connectionID, eventName string, data any) {
	if err := s.bc.PublishTo(ctx, connectionID, eventName, data); err != nil {
		slog.ErrorContext(ctx, "session: emit failed",
			"connection", connectionID,
			"event", eventName,
			"error", err,
		)
	}
}

func playersListPayload(players []domain.Player) PlayersListPayload {
	list := PlayersListPayload{Players: make([]PlayerInfo, 0, len(players))}
	for _, p := range players {
		list.Players = append(list.Players, PlayerInfo{ID: p.ID, Name: p.Name, Color: p.Color})
	}
	return list
}
