package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizlive_sessions_created_total",
		Help: "Quiz sessions created since process start.",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quizlive_sessions_active",
		Help: "Live quiz sessions currently registered.",
	})

	AnswersRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizlive_answers_recorded_total",
		Help: "Answer submissions accepted by the router.",
	})

	BroadcastsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizlive_broadcasts_published_total",
		Help: "Protocol events published to the broadcast fabric.",
	}, []string{"event"})

	ConnectionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quizlive_connections_live",
		Help: "Websocket connections currently tracked by the presence monitor.",
	})
)
