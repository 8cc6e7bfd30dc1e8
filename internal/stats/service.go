package stats

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/session"
)

type Config struct {
	Registry *session.Registry
}

// Service folds a session's recorded answers into per-question, per-option
// counts. Read-only; safe to call in any phase, typically once the quiz has
// ended.
type Service struct {
	reg *session.Registry
}

func NewService(c Config) *Service {
	return &Service{reg: c.Registry}
}

type ComputeStatsRequest struct {
	QuizCode string
}

// ComputeStats walks the questions in definition order and counts how many
// submissions picked each option. Counts cover the full historical answers
// map: a player who answered and later disconnected still counts.
func (s *Service) ComputeStats(ctx context.Context, req ComputeStatsRequest) (*domain.QuizStats, error) {
	sess, err := s.reg.Get(req.QuizCode)
	if err != nil {
		return nil, err
	}

	counts, totals := sess.AnswerCounts()
	def := sess.Definition()

	out := &domain.QuizStats{
		QuizTitle:    def.Title,
		TotalPlayers: sess.RosterSize(),
		Questions:    make([]domain.QuestionStats, 0, len(def.Questions)),
	}

	for _, q := range def.Questions {
		qs := domain.QuestionStats{
			QuestionID:   q.ID,
			QuestionText: q.Text,
			Answers:      make([]domain.AnswerStats, 0, len(q.Answers)),
		}

		for _, a := range q.Answers {
			count := counts[q.ID][a.ID]
			qs.Answers = append(qs.Answers, domain.AnswerStats{
				AnswerID:   a.ID,
				AnswerText: a.Text,
				IsCorrect:  a.IsCorrect,
				Count:      count,
				Share:      share(count, totals[q.ID]),
			})
		}

		out.Questions = append(out.Questions, qs)
	}

	return out, nil
}

// share renders count/total as a percentage with one decimal place.
func share(count, total int) string {
	if total == 0 {
		return "0"
	}

	return decimal.NewFromInt(int64(count)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Round(1).
		String()
}
