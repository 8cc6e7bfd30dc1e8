package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizlive/internal/api"
	"github.com/victornm/quizlive/internal/catalog"
	"github.com/victornm/quizlive/internal/domain"
	"github.com/victornm/quizlive/internal/event"
	"github.com/victornm/quizlive/internal/realtime"
	"github.com/victornm/quizlive/internal/session"
	"github.com/victornm/quizlive/internal/stats"
	"github.com/victornm/quizlive/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Catalog struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			pubsub redis.UniversalClient
		}

		postgres struct {
			catalog *pgxpool.Pool
		}
	}

	service struct {
		registry    *session.Registry
		directory   *session.Directory
		router      *session.Service
		stats       *stats.Service
		catalog     *catalog.Service
		broadcaster *realtime.Broadcaster
		gateway     *realtime.Gateway
		pacer       *realtime.Pacer
		presence    *realtime.Presence
	}

	http *http.Server

	cancelBackground context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Pubsub.Addrs,
		Password: s.c.Redis.Pubsub.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis.pubsub = r
	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := s.c.Postgres.Catalog
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres.catalog = db
	return nil
}

func (s *Server) initService() {
	s.service.registry = session.NewRegistry()
	s.service.directory = session.NewDirectory()

	s.service.broadcaster = realtime.NewBroadcaster(realtime.BroadcasterConfig{
		Redis:  s.infra.redis.pubsub,
		Prefix: s.c.Redis.Pubsub.Prefix,
	})

	s.service.router = session.NewService(session.Config{
		Registry:    s.service.registry,
		Directory:   s.service.directory,
		Broadcaster: s.service.broadcaster,
		EventBus:    s.eb,
	})

	s.service.stats = stats.NewService(stats.Config{
		Registry: s.service.registry,
	})

	s.eb.Subscribe(domain.EventNameAnswerRecorded, func(ctx context.Context, e event.Event) error {
		telemetry.AnswersRecorded.Inc()
		return nil
	})

	s.service.catalog = catalog.NewService(catalog.Config{
		DB: s.infra.postgres.catalog,
	})

	s.service.pacer = realtime.NewPacer(realtime.PacerConfig{
		EventBus:  s.eb,
		Publisher: s.service.broadcaster,
	})

	s.service.presence = realtime.NewPresence(realtime.PresenceConfig{})

	s.service.gateway = realtime.NewGateway(realtime.GatewayConfig{
		Router:      s.service.router,
		Redis:       s.infra.redis.pubsub,
		Broadcaster: s.service.broadcaster,
		Presence:    s.service.presence,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:   e,
		Registry: s.service.registry,
		Stats:    s.service.stats,
		Catalog:  s.service.catalog,
		Gateway:  s.service.gateway,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelBackground = cancel

	var eg errgroup.Group
	eg.Go(func() error {
		return s.service.presence.Run(ctx)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	if s.cancelBackground != nil {
		s.cancelBackground()
	}

	s.service.pacer.Shutdown()
	s.eb.Stop()

	s.infra.postgres.catalog.Close()
	if err := s.infra.redis.pubsub.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close redis failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
