package domain

const (
	EventNameQuestionStarted = "question.started"
	EventNameAnswerRecorded  = "answer.recorded"
	EventNameSessionEnded    = "session.ended"
)

// EventQuestionStarted is published when a session starts or the host
// advances to the next question. The pacer uses it to (re)start the
// countdown broadcast for the session.
type EventQuestionStarted struct {
	QuizCode         string
	QuestionIndex    int
	TimeLimitSeconds int
}

func (EventQuestionStarted) Name() string { return EventNameQuestionStarted }

type EventAnswerRecorded struct {
	QuizCode   string
	PlayerID   int
	QuestionID int
	AnswerID   int
}

func (EventAnswerRecorded) Name() string { return EventNameAnswerRecorded }

// EventSessionEnded is published on quiz_ended and on termination.
type EventSessionEnded struct {
	QuizCode   string
	Terminated bool
}

func (EventSessionEnded) Name() string { return EventNameSessionEnded }
