package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/event"
	"github.com/victornm/quizroom/internal/room"
	"github.com/victornm/quizroom/internal/telemetry"
)

const (
	Liveness = "Quiz Room Backend is running"

	defaultSendQueue      = 256
	defaultMaxMessageSize = 1 << 20
)

type Config struct {
	Engine         *gin.Engine
	EventBus       *event.Bus
	Router         Router
	Stats          telemetry.StatsFunc
	Metrics        *telemetry.Metrics
	Origins        []string
	SendQueue      int
	MaxMessageSize int64

	// Redis enables the pub/sub mirror of room events when set.
	Redis        Redis
	PubsubPrefix string
}

// Router is the part of the room router the transport drives.
type Router interface {
	Connect(conn domain.Connection)
	Dispatch(ctx context.Context, connID string, msg room.Message) error
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	router  Router
	stats   telemetry.StatsFunc
	metrics *telemetry.Metrics
	origins []string

	upgrader       websocket.Upgrader
	sendQueue      int
	maxMessageSize int64

	redis  Redis
	prefix string
	mirror *mirror
}

func New(c Config) *API {
	a := &API{
		router:         c.Router,
		stats:          c.Stats,
		metrics:        c.Metrics,
		origins:        c.Origins,
		sendQueue:      c.SendQueue,
		maxMessageSize: c.MaxMessageSize,
		redis:          c.Redis,
		prefix:         c.PubsubPrefix,
	}

	if a.metrics == nil {
		a.metrics = telemetry.NewMetrics(prometheus.NewRegistry(), nil)
	}
	if a.sendQueue <= 0 {
		a.sendQueue = defaultSendQueue
	}
	if a.maxMessageSize <= 0 {
		a.maxMessageSize = defaultMaxMessageSize
	}

	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// ServeWS checks origins itself.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	// HTTP APIs
	c.Engine.GET("/ws", a.ServeWS)

	g := c.Engine.Group("/", cors.New(a.corsConfig()))
	g.GET("/", a.Liveness)
	g.GET("/stats", a.GetStats)

	// Register event handlers
	if a.redis != nil {
		a.mirror = newMirror()
		c.EventBus.Subscribe(domain.EventNameRoomUsers, func(_ context.Context, e event.Event) error {
			if ru := e.(domain.EventRoomUsers); len(ru.Members) == 0 {
				a.mirror.forget(ru.RoomID)
			}
			return nil
		})
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
		c.EventBus.Subscribe(domain.EventNameQuizEnded, func(ctx context.Context, e event.Event) error {
			return a.PublishQuizEnded(ctx, e.(domain.EventQuizEnded))
		})
	}

	return a
}

func (a *API) corsConfig() cors.Config {
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}

	if len(a.origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = a.origins
	}

	return c
}

// originAllowed accepts requests without an Origin header, which only
// non-browser clients send.
func (a *API) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(a.origins) == 0 {
		return true
	}
	return slices.Contains(a.origins, origin)
}

func (a *API) Liveness(c *gin.Context) {
	c.String(http.StatusOK, Liveness)
}

func (a *API) GetStats(c *gin.Context) {
	var rooms, conns int
	if a.stats != nil {
		rooms, conns = a.stats()
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "connections": conns})
}

// ServeWS upgrades the request and runs the connection until it drops.
func (a *API) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()

	if !a.originAllowed(c.Request) {
		e := errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("origin %q is not allowed", c.Request.Header.Get("Origin")))
		c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
		return
	}

	ws, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "api: upgrade failed", "error", err)
		return
	}

	conn := newConn(uuid.NewString(), ws, a)
	a.router.Connect(conn)
	a.metrics.ConnectionOpened()
	slog.InfoContext(ctx, "api: connection opened", "connection", conn.ID(), "remote", c.ClientIP())

	go conn.writePump()
	conn.readPump(ctx)
}
