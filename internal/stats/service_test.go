package stats_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/errors"
	"github.com/victornm/quizlive/internal/session"
	"github.com/victornm/quizlive/internal/stats"
)

func statsQuiz() domain.QuizDefinition {
	return domain.QuizDefinition{
		Title: "capitals",
		Questions: []domain.Question{
			{
				ID:   1,
				Text: "Capital of France?",
				Answers: []domain.AnswerOption{
					{ID: 1, Text: "Paris", IsCorrect: true},
					{ID: 2, Text: "Lyon"},
					{ID: 3, Text: "Nice"},
				},
			},
			{
				ID:   2,
				Text: "Capital of Japan?",
				Answers: []domain.AnswerOption{
					{ID: 4, Text: "Osaka"},
					{ID: 5, Text: "Tokyo", IsCorrect: true},
				},
			},
		},
	}
}

func TestService_ComputeStats(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		svc := stats.NewService(stats.Config{Registry: session.NewRegistry()})

		_, err := svc.ComputeStats(ctx, stats.ComputeStatsRequest{QuizCode: "NOPE42"})
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})

	t.Run("no answers yet", func(t *testing.T) {
		reg := session.NewRegistry()
		reg.Adopt("ABCD", statsQuiz())
		svc := stats.NewService(stats.Config{Registry: reg})

		got, err := svc.ComputeStats(ctx, stats.ComputeStatsRequest{QuizCode: "ABCD"})
		require.NoError(t, err)

		require.Len(t, got.Questions, 2)
		for _, q := range got.Questions {
			for _, a := range q.Answers {
				assert.Zero(t, a.Count)
				assert.Equal(t, "0", a.Share)
			}
		}
	})

	t.Run("counts follow definition order and include leavers", func(t *testing.T) {
		reg := session.NewRegistry()
		sess := reg.Adopt("ABCD", statsQuiz())
		svc := stats.NewService(stats.Config{Registry: reg})

		ana, _ := sess.Join("ana", "c1")
		ben, _ := sess.Join("ben", "c2")
		cruz, _ := sess.Join("cruz", "c3")
		require.NoError(t, sess.Start())

		sess.RecordAnswer(1, ana.ID, 1)
		sess.RecordAnswer(1, ben.ID, 1)
		sess.RecordAnswer(1, cruz.ID, 2)

		_, err := sess.Advance()
		require.NoError(t, err)
		sess.RecordAnswer(2, ana.ID, 5)

		// cruz leaving must not erase the answer already on the board.
		require.True(t, sess.RemovePlayer(cruz.ID))

		got, err := svc.ComputeStats(ctx, stats.ComputeStatsRequest{QuizCode: "ABCD"})
		require.NoError(t, err)

		assert.Equal(t, "capitals", got.QuizTitle)
		assert.Equal(t, 2, got.TotalPlayers)
		require.Len(t, got.Questions, 2)

		q1 := got.Questions[0]
		assert.Equal(t, 1, q1.QuestionID)
		require.Len(t, q1.Answers, 3)
		assert.Equal(t, domain.AnswerStats{
			AnswerID: 1, AnswerText: "Paris", IsCorrect: true, Count: 2, Share: "66.7",
		}, q1.Answers[0])
		assert.Equal(t, domain.AnswerStats{
			AnswerID: 2, AnswerText: "Lyon", Count: 1, Share: "33.3",
		}, q1.Answers[1])
		assert.Equal(t, domain.AnswerStats{
			AnswerID: 3, AnswerText: "Nice", Count: 0, Share: "0",
		}, q1.Answers[2])

		q2 := got.Questions[1]
		require.Len(t, q2.Answers, 2)
		assert.Equal(t, 0, q2.Answers[0].Count)
		assert.Equal(t, "0", q2.Answers[0].Share)
		assert.Equal(t, 1, q2.Answers[1].Count)
		assert.Equal(t, "100", q2.Answers[1].Share)
	})

	t.Run("overwritten answers count once", func(t *testing.T) {
		reg := session.NewRegistry()
		sess := reg.Adopt("ABCD", statsQuiz())
		svc := stats.NewService(stats.Config{Registry: reg})

		ana, _ := sess.Join("ana", "c1")
		require.NoError(t, sess.Start())

		sess.RecordAnswer(1, ana.ID, 2)
		sess.RecordAnswer(1, ana.ID, 1)

		got, err := svc.ComputeStats(ctx, stats.ComputeStatsRequest{QuizCode: "ABCD"})
		require.NoError(t, err)

		q1 := got.Questions[0]
		assert.Equal(t, 1, q1.Answers[0].Count)
		assert.Equal(t, 0, q1.Answers[1].Count)
		assert.Equal(t, "100", q1.Answers[0].Share)
	})
}
