package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizroom/internal/api"
	"github.com/victornm/quizroom/internal/event"
	"github.com/victornm/quizroom/internal/registry"
	"github.com/victornm/quizroom/internal/room"
	"github.com/victornm/quizroom/internal/score"
	"github.com/victornm/quizroom/internal/telemetry"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Origins []string

	Log telemetry.LogConfig

	Leaderboard struct {
		Size int
	}

	WS struct {
		SendQueue      int
		MaxMessageSize int64
	}

	Score struct {
		Backend string
	}

	Redis struct {
		Score  RedisConfig
		Pubsub RedisConfig
	}
}

// DefaultConfig is the configuration used when nothing overrides it.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 5000
	c.GRPC.Port = 5001
	c.Origins = []string{"https://quiz-quarters.vercel.app", "http://localhost:3000"}
	c.Log = telemetry.LogConfig{Level: "info", Format: "text"}
	c.Leaderboard.Size = 3
	c.WS.SendQueue = 256
	c.WS.MaxMessageSize = 1 << 20
	c.Score.Backend = BackendMemory
	c.Redis.Score.Prefix = "quizroom"
	c.Redis.Pubsub.Prefix = "quizroom"
	return c
}

type Server struct {
	c Config

	eb       *event.Bus
	registry *registry.Registry
	metrics  *telemetry.Metrics

	infra struct {
		redis struct {
			score  redis.UniversalClient
			pubsub redis.UniversalClient
		}
	}

	service struct {
		scores score.Store
		router *room.Router
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	return nil
}

// initRedis connects only the clients that have addresses configured.
func (s *Server) initRedis() error {
	connect := func(name string, rc RedisConfig) (redis.UniversalClient, error) {
		if len(rc.Addrs) == 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    rc.Addrs,
			Password: rc.Pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.score, err = connect("score", s.c.Redis.Score)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initService() error {
	s.registry = registry.New()

	switch s.c.Score.Backend {
	case "", BackendMemory:
		s.service.scores = score.NewMemoryStore()
	case BackendRedis:
		if s.infra.redis.score == nil {
			return fmt.Errorf("score backend %q needs Redis.Score.Addrs", BackendRedis)
		}

		st := score.NewRedisStore(score.RedisConfig{
			Redis:  s.infra.redis.score,
			Prefix: s.c.Redis.Score.Prefix,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.Reset(ctx); err != nil {
			return fmt.Errorf("reset scores: %w", err)
		}

		s.service.scores = st
	default:
		return fmt.Errorf("unknown score backend %q", s.c.Score.Backend)
	}

	s.metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer, s.registry.Stats)
	s.metrics.Subscribe(s.eb)

	s.service.router = room.NewRouter(room.Config{
		EventBus:        s.eb,
		Registry:        s.registry,
		Scores:          s.service.scores,
		LeaderboardSize: s.c.Leaderboard.Size,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptors(slog.Default())...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	cfg := api.Config{
		Engine:         e,
		EventBus:       s.eb,
		Router:         s.service.router,
		Stats:          s.registry.Stats,
		Metrics:        s.metrics,
		Origins:        s.c.Origins,
		SendQueue:      s.c.WS.SendQueue,
		MaxMessageSize: s.c.WS.MaxMessageSize,
	}
	if s.infra.redis.pubsub != nil {
		cfg.Redis = s.infra.redis.pubsub
		cfg.PubsubPrefix = s.c.Redis.Pubsub.Prefix
	}
	api.New(cfg)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for name, r := range map[string]redis.UniversalClient{
		"score":  s.infra.redis.score,
		"pubsub": s.infra.redis.pubsub,
	} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "client", name, "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
