package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/realtime"
	"github.com/victornm/quizlive/internal/session"
	"github.com/victornm/quizlive/internal/stats"
)

// Catalog is the slice of the quiz store the API needs.
type Catalog interface {
	SaveQuiz(ctx context.Context, code string, def domain.QuizDefinition) error
	GetQuiz(ctx context.Context, code string) (*domain.QuizDefinition, error)
}

type Config struct {
	Engine   *gin.Engine
	Registry *session.Registry
	Stats    *stats.Service
	Catalog  Catalog
	Gateway  *realtime.Gateway
}

type API struct {
	reg     *session.Registry
	stats   *stats.Service
	catalog Catalog
}

func New(c Config) *API {
	a := &API{
		reg:     c.Registry,
		stats:   c.Stats,
		catalog: c.Catalog,
	}

	c.Engine.POST("/api/quiz", a.createQuiz)
	c.Engine.GET("/api/quiz/:code", a.getQuiz)
	c.Engine.GET("/api/quiz/:code/stats", a.getStats)
	if c.Gateway != nil {
		c.Engine.GET("/ws", func(gc *gin.Context) {
			c.Gateway.ServeWS(gc.Writer, gc.Request)
		})
	}

	return a
}

type (
	createQuizRequest struct {
		Title       string `json:"title" binding:"required"`
		TimeLimit   int    `json:"time_limit"`
		IsAnonymous bool   `json:"is_anonymous"`
		Questions   []struct {
			Text    string `json:"text" binding:"required"`
			Answers []struct {
				Text      string `json:"text" binding:"required"`
				IsCorrect bool   `json:"is_correct"`
			} `json:"answers" binding:"required,min=1"`
		} `json:"questions" binding:"required,min=1"`
	}

	createQuizResponse struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
)

// createQuiz stores a new definition and registers a live session for it in
// the Lobby phase.
func (a *API) createQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	def := buildDefinition(req)

	code, err := a.reg.Create(def)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := a.catalog.SaveQuiz(c.Request.Context(), code, def); err != nil {
		a.reg.Remove(code)
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, createQuizResponse{Success: true, Code: code})
}

// buildDefinition assigns question and answer ids: questions are numbered
// in order, answer ids run across the whole quiz so a payload can never
// confuse options of different questions.
func buildDefinition(req createQuizRequest) domain.QuizDefinition {
	def := domain.QuizDefinition{
		Title:            req.Title,
		TimeLimitSeconds: req.TimeLimit,
		IsAnonymous:      req.IsAnonymous,
		Questions:        make([]domain.Question, 0, len(req.Questions)),
	}
	if def.TimeLimitSeconds <= 0 {
		def.TimeLimitSeconds = 30
	}

	answerID := 0
	for i, q := range req.Questions {
		question := domain.Question{
			ID:      i + 1,
			Text:    q.Text,
			Answers: make([]domain.AnswerOption, 0, len(q.Answers)),
		}
		for _, ans := range q.Answers {
			answerID++
			question.Answers = append(question.Answers, domain.AnswerOption{
				ID:        answerID,
				Text:      ans.Text,
				IsCorrect: ans.IsCorrect,
			})
		}
		def.Questions = append(def.Questions, question)
	}

	return def
}

type (
	quizView struct {
		Code                 string         `json:"code"`
		Title                string         `json:"title"`
		TimeLimit            int            `json:"time_limit"`
		IsAnonymous          bool           `json:"is_anonymous"`
		Questions            []questionView `json:"questions"`
		CurrentQuestionIndex int            `json:"current_question_index"`
		IsActive             bool           `json:"is_active"`
	}

	questionView struct {
		ID      int          `json:"id"`
		Text    string       `json:"text"`
		Answers []answerView `json:"answers"`
	}

	answerView struct {
		ID   int    `json:"id"`
		Text string `json:"text"`
		// IsCorrect is only populated for the host view.
		IsCorrect *bool `json:"is_correct"`
	}
)

// getQuiz returns the full definition plus live progress. The host view
// (?host=true) reveals which options are correct; the player view does not.
// When the process restarted and the session is gone from the registry, the
// definition is loaded from the catalog and re-adopted.
func (a *API) getQuiz(c *gin.Context) {
	code := session.CanonicalCode(c.Param("code"))

	sess, err := a.reg.Get(code)
	if errors.IsCode(err, errors.CodeNotFound) {
		def, cErr := a.catalog.GetQuiz(c.Request.Context(), code)
		if cErr != nil {
			abortWithError(c, cErr)
			return
		}
		sess = a.reg.Adopt(code, *def)
	} else if err != nil {
		abortWithError(c, err)
		return
	}

	hostView := c.Query("host") == "true"
	def := sess.Definition()
	snap := sess.Snapshot()

	view := quizView{
		Code:                 sess.Code(),
		Title:                def.Title,
		TimeLimit:            def.TimeLimitSeconds,
		IsAnonymous:          def.IsAnonymous,
		Questions:            make([]questionView, 0, len(def.Questions)),
		CurrentQuestionIndex: snap.CurrentQuestionIndex,
		IsActive:             snap.IsActive,
	}

	for _, q := range def.Questions {
		qv := questionView{ID: q.ID, Text: q.Text, Answers: make([]answerView, 0, len(q.Answers))}
		for _, ans := range q.Answers {
			av := answerView{ID: ans.ID, Text: ans.Text}
			if hostView {
				correct := ans.IsCorrect
				av.IsCorrect = &correct
			}
			qv.Answers = append(qv.Answers, av)
		}
		view.Questions = append(view.Questions, qv)
	}

	c.JSON(http.StatusOK, view)
}

type (
	statsResponse struct {
		QuizTitle    string              `json:"quiz_title"`
		TotalPlayers int                 `json:"total_players"`
		Stats        []questionStatsView `json:"stats"`
	}

	questionStatsView struct {
		QuestionID   int               `json:"question_id"`
		QuestionText string            `json:"question_text"`
		Answers      []answerStatsView `json:"answers"`
	}

	answerStatsView struct {
		AnswerID   int    `json:"answer_id"`
		AnswerText string `json:"answer_text"`
		IsCorrect  bool   `json:"is_correct"`
		Count      int    `json:"count"`
		Share      string `json:"share"`
	}
)

func (a *API) getStats(c *gin.Context) {
	out, err := a.stats.ComputeStats(c.Request.Context(), stats.ComputeStatsRequest{
		QuizCode: c.Param("code"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := statsResponse{
		QuizTitle:    out.QuizTitle,
		TotalPlayers: out.TotalPlayers,
		Stats:        make([]questionStatsView, 0, len(out.Questions)),
	}
	for _, q := range out.Questions {
		qv := questionStatsView{
			QuestionID:   q.QuestionID,
			QuestionText: q.QuestionText,
			Answers:      make([]answerStatsView, 0, len(q.Answers)),
		}
		for _, ans := range q.Answers {
			qv.Answers = append(qv.Answers, answerStatsView{
				AnswerID:   ans.AnswerID,
				AnswerText: ans.AnswerText,
				IsCorrect:  ans.IsCorrect,
				Count:      ans.Count,
				Share:      ans.Share,
			})
		}
		resp.Stats = append(resp.Stats, qv)
	}

	c.JSON(http.StatusOK, resp)
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}
