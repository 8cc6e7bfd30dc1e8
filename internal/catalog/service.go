package catalog

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service persists quiz definitions. The live session state never touches
// the database; the catalog exists so definitions can be created over HTTP
// and re-adopted into the registry after a restart.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

// SaveQuiz stores the definition under the session code in one transaction.
func (s *Service) SaveQuiz(ctx context.Context, code string, def domain.QuizDefinition) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		insQuizStmt     = `INSERT INTO quizzes (code, title, time_limit, is_anonymous) VALUES ($1, $2, $3, $4);`
		insQuestionStmt = `INSERT INTO quiz_questions (quiz_code, question_id, text, ord) VALUES ($1, $2, $3, $4);`
		insAnswerStmt   = `INSERT INTO quiz_answers (quiz_code, question_id, answer_id, text, is_correct, ord) VALUES ($1, $2, $3, $4, $5, $6);`
	)

	_, err = tx.Exec(ctx, insQuizStmt, code, def.Title, def.TimeLimitSeconds, def.IsAnonymous)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	for qIdx, q := range def.Questions {
		_, err = tx.Exec(ctx, insQuestionStmt, code, q.ID, q.Text, qIdx)
		if err != nil {
			return fmt.Errorf("insert question: %w", err)
		}

		for aIdx, a := range q.Answers {
			_, err = tx.Exec(ctx, insAnswerStmt, code, q.ID, a.ID, a.Text, a.IsCorrect, aIdx)
			if err != nil {
				return fmt.Errorf("insert answer: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// GetQuiz loads the full definition, questions and answers in stored order.
func (s *Service) GetQuiz(ctx context.Context, code string) (*domain.QuizDefinition, error) {
	const quizStmt = `SELECT title, time_limit, is_anonymous FROM quizzes WHERE code = $1;`

	var def domain.QuizDefinition
	err := s.db.QueryRow(ctx, quizStmt, code).Scan(&def.Title, &def.TimeLimitSeconds, &def.IsAnonymous)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: code=%s", code))
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}

	questions, err := s.loadQuestions(ctx, code)
	if err != nil {
		return nil, err
	}
	def.Questions = questions

	return &def, nil
}

func (s *Service) loadQuestions(ctx context.Context, code string) ([]domain.Question, error) {
	const questionStmt = `SELECT question_id, text FROM quiz_questions WHERE quiz_code = $1 ORDER BY ord;`

	rows, err := s.db.Query(ctx, questionStmt, code)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		if err := r.Scan(&q.ID, &q.Text); err != nil {
			return domain.Question{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	const answerStmt = `SELECT question_id, answer_id, text, is_correct FROM quiz_answers WHERE quiz_code = $1 ORDER BY question_id, ord;`

	rows, err = s.db.Query(ctx, answerStmt, code)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}

	type answerRow struct {
		questionID int
		answer     domain.AnswerOption
	}

	answers, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (answerRow, error) {
		var a answerRow
		if err := r.Scan(&a.questionID, &a.answer.ID, &a.answer.Text, &a.answer.IsCorrect); err != nil {
			return answerRow{}, err
		}
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect answers: %w", err)
	}

	byQuestion := make(map[int][]domain.AnswerOption, len(questions))
	for _, a := range answers {
		byQuestion[a.questionID] = append(byQuestion[a.questionID], a.answer)
	}
	for i := range questions {
		questions[i].Answers = byQuestion[questions[i].ID]
	}

	return questions, nil
}
