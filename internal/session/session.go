package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
)

// Avatar palette. Colors are handed out in rotation so consecutive joiners
// never share a color until the palette wraps.
var playerColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8",
	"#F7DC6F", "#BB8FCE", "#85C1E2", "#F8B739", "#52B788",
}

// Session is the authoritative in-memory state of one running quiz.
// All mutations go through methods that hold the session mutex, so events
// for the same code are applied one at a time while sessions for different
// codes never contend.
type Session struct {
	mu sync.Mutex

	code string
	def  domain.QuizDefinition

	phase           domain.Phase
	currentQuestion int

	roster  map[int]*domain.Player
	answers map[int]map[int]int // question id -> player id -> answer id

	nextPlayerID int
	colorSeq     int
}

func newSession(code string, def domain.QuizDefinition) *Session {
	return &Session{
		code:    code,
		def:     def,
		phase:   domain.PhaseLobby,
		roster:  make(map[int]*domain.Player),
		answers: make(map[int]map[int]int),
	}
}

// Code returns the canonical (upper-case) session code.
func (s *Session) Code() string { return s.code }

func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Title() string { return s.def.Title }

func (s *Session) TimeLimit() int { return s.def.TimeLimitSeconds }

func (s *Session) IsAnonymous() bool { return s.def.IsAnonymous }

// Definition returns the immutable quiz content.
func (s *Session) Definition() domain.QuizDefinition { return s.def }

func (s *Session) CurrentQuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentQuestion
}

// Snapshot is a point-in-time reconstruction of session progress, sent to a
// connection that joins or rejoins mid-session.
type Snapshot struct {
	IsActive             bool
	CurrentQuestionIndex int
	PlayerAnswers        map[int]int
}

// Join adds a new player to the roster and returns the player together with
// a snapshot taken in the same critical section. Player ids are never
// reused; a name already present in the roster gets a numeric suffix.
func (s *Session) Join(name, connectionID string) (domain.Player, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPlayerID++
	if s.nameTaken(name) {
		name = fmt.Sprintf("%s%d", name, 10+s.nextPlayerID%90)
	}

	p := &domain.Player{
		ID:           s.nextPlayerID,
		Name:         name,
		Color:        playerColors[s.colorSeq%len(playerColors)],
		ConnectionID: connectionID,
	}
	s.colorSeq++
	s.roster[p.ID] = p

	return *p, s.snapshotLocked()
}

func (s *Session) nameTaken(name string) bool {
	for _, p := range s.roster {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Snapshot returns the current progress view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		IsActive:             s.phase == domain.PhaseActive,
		CurrentQuestionIndex: s.currentQuestion,
		PlayerAnswers:        make(map[int]int),
	}

	if snap.IsActive {
		q := s.def.Questions[s.currentQuestion]
		for pid, aid := range s.answers[q.ID] {
			snap.PlayerAnswers[pid] = aid
		}
	}

	return snap
}

// Players returns the roster in join order.
func (s *Session) Players() []domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]domain.Player, 0, len(s.roster))
	for _, p := range s.roster {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	return players
}

// RemovePlayer drops the player from the roster. Recorded answers are kept
// and keep counting toward statistics.
func (s *Session) RemovePlayer(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roster[id]; !ok {
		return false
	}
	delete(s.roster, id)
	return true
}

// Start moves the session from Lobby to Active at question 0.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseLobby {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s cannot start from phase %q", s.code, s.phase))
	}
	if len(s.def.Questions) == 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s has no questions", s.code))
	}
	if len(s.roster) == 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s cannot start without players", s.code))
	}

	s.phase = domain.PhaseActive
	s.currentQuestion = 0
	return nil
}

// Advance moves to the next question and returns its index.
func (s *Session) Advance() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseActive {
		return 0, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s is not active", s.code))
	}
	if s.currentQuestion+1 >= len(s.def.Questions) {
		return 0, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s has no questions remaining", s.code))
	}

	s.currentQuestion++
	return s.currentQuestion, nil
}

// RecordAnswer stores the player's answer for the current question,
// overwriting any earlier answer by the same player. A stale question id or
// an unknown player id is a silent no-op: ok is false and nothing changes.
// Late submissions are accepted for as long as the session stays active;
// the advertised time limit is advisory.
func (s *Session) RecordAnswer(questionID, playerID, answerID int) (domain.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseActive {
		return domain.Player{}, false
	}
	if s.def.Questions[s.currentQuestion].ID != questionID {
		return domain.Player{}, false
	}
	p, ok := s.roster[playerID]
	if !ok {
		return domain.Player{}, false
	}

	if s.answers[questionID] == nil {
		s.answers[questionID] = make(map[int]int)
	}
	s.answers[questionID][playerID] = answerID

	return *p, true
}

// End moves the session to Ended.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseActive {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s is not active", s.code))
	}

	s.phase = domain.PhaseEnded
	return nil
}

// Terminate moves the session to Ended from any earlier phase.
func (s *Session) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == domain.PhaseEnded {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s already ended", s.code))
	}

	s.phase = domain.PhaseEnded
	return nil
}

// AnswerCounts folds the full historical answers map into per-question,
// per-option counts, in definition order. Answers from players who later
// disconnected are included. The second return value is the number of
// distinct players that submitted for each question id.
func (s *Session) AnswerCounts() (map[int]map[int]int, map[int]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[int]map[int]int, len(s.answers))
	totals := make(map[int]int, len(s.answers))
	for qid, byPlayer := range s.answers {
		counts[qid] = make(map[int]int)
		for _, aid := range byPlayer {
			counts[qid][aid]++
		}
		totals[qid] = len(byPlayer)
	}

	return counts, totals
}

// RosterSize returns the number of currently joined players.
func (s *Session) RosterSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.roster)
}
