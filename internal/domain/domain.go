package domain

// Phase is the lifecycle stage of a live quiz session.
// Transitions are monotonic: Lobby -> Active -> Ended.
type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended"
)

// Role of a connection within a session.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// QuizDefinition is the immutable content of a quiz, supplied at creation
// time and copied into the live session.
type QuizDefinition struct {
	Title            string
	TimeLimitSeconds int
	IsAnonymous      bool
	Questions        []Question
}

type Question struct {
	ID      int
	Text    string
	Answers []AnswerOption
}

// AnswerOption is one selectable answer of a question. Exactly one option
// per question carries IsCorrect; that is enforced by the authoring side.
type AnswerOption struct {
	ID        int
	Text      string
	IsCorrect bool
}

// Player is a participant in a live session. The ID is stable for the
// session lifetime even after the player disconnects.
type Player struct {
	ID           int
	Name         string
	Color        string
	ConnectionID string
}

// QuizStats is the post-session aggregation of recorded answers.
type QuizStats struct {
	QuizTitle    string
	TotalPlayers int
	Questions    []QuestionStats
}

type QuestionStats struct {
	QuestionID   int
	QuestionText string
	Answers      []AnswerStats
}

type AnswerStats struct {
	AnswerID   int
	AnswerText string
	IsCorrect  bool
	Count      int
	// Share is the percentage of submissions for the question that picked
	// this option, rounded to one decimal place.
	Share string
}
