package session

// Outbound protocol events. Inbound names live with the websocket gateway;
// these are the ones the router emits.
const (
	EventPlayersList     = "players_list"
	EventPlayerJoined    = "player_joined"
	EventPlayerLeft      = "player_left"
	EventQuizStarted     = "quiz_started"
	EventQuestionChanged = "question_changed"
	EventAnswerSelected  = "answer_selected"
	EventQuizEnded       = "quiz_ended"
	EventQuizTerminated  = "quiz_terminated"
	EventQuizState       = "quiz_state"
)

type (
	PlayerInfo struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}

	PlayersListPayload struct {
		Players []PlayerInfo `json:"players"`
	}

	PlayerJoinedPayload struct {
		PlayerID int    `json:"player_id"`
		Name     string `json:"name"`
		Color    string `json:"color"`
	}

	PlayerLeftPayload struct {
		PlayerID int `json:"player_id"`
	}

	QuestionChangedPayload struct {
		QuestionIndex int `json:"question_index"`
	}

	// AnswerSelectedPayload always carries the player's identity, even for
	// anonymous quizzes: the host needs it for accounting and other clients
	// for avatar movement. Hiding it on anonymous quizzes is a display
	// decision made by the receiving client.
	AnswerSelectedPayload struct {
		PlayerID    int    `json:"player_id"`
		AnswerID    int    `json:"answer_id"`
		PlayerName  string `json:"player_name"`
		PlayerColor string `json:"player_color"`
	}

	QuizStatePayload struct {
		IsActive             bool        `json:"is_active"`
		CurrentQuestionIndex int         `json:"current_question_index"`
		PlayerAnswers        map[int]int `json:"player_answers"`
	}
)
