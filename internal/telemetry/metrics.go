package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/event"
)

const namespace = "quizroom"

// Metrics holds the collectors of the quiz room server.
type Metrics struct {
	connections prometheus.Gauge
	received    *prometheus.CounterVec
	rejected    prometheus.Counter
	broadcasts  *prometheus.CounterVec
	frames      *prometheus.CounterVec
	dropped     prometheus.Counter
}

// StatsFunc reports the number of non-empty rooms and joined connections.
type StatsFunc func() (rooms, joined int)

// NewMetrics registers the collectors on reg. stats may be nil.
func NewMetrics(reg prometheus.Registerer, stats StatsFunc) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections, joined or not.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages by event.",
		}, []string{"event"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Room broadcasts by domain event.",
		}, []string{"event"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Outbound frames queued on connections, by domain event.",
		}, []string{"event"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Outbound frames refused by a full or closed connection.",
		}),
	}

	reg.MustRegister(m.connections, m.received, m.rejected, m.broadcasts, m.frames, m.dropped)

	if stats != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rooms",
				Help:      "Rooms with at least one member.",
			}, func() float64 {
				rooms, _ := stats()
				return float64(rooms)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "members",
				Help:      "Connections joined to a room.",
			}, func() float64 {
				_, joined := stats()
				return float64(joined)
			}),
		)
	}

	return m
}

// Subscribe counts the router's broadcasts from its domain events.
func (m *Metrics) Subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameRoomUsers, func(_ context.Context, e event.Event) error {
		m.broadcast(e.Name(), len(e.(domain.EventRoomUsers).Members))
		return nil
	})
	eb.Subscribe(domain.EventNameQuestionSent, func(_ context.Context, e event.Event) error {
		m.broadcast(e.Name(), e.(domain.EventQuestionSent).Recipients)
		return nil
	})
	eb.Subscribe(domain.EventNameLeaderboardUpdated, func(_ context.Context, e event.Event) error {
		m.broadcast(e.Name(), e.(domain.EventLeaderboardUpdated).Leaderboard.TotalPlayers)
		return nil
	})
	eb.Subscribe(domain.EventNameQuizEnded, func(_ context.Context, e event.Event) error {
		m.broadcast(e.Name(), e.(domain.EventQuizEnded).Recipients)
		return nil
	})
}

func (m *Metrics) broadcast(name string, recipients int) {
	m.broadcasts.WithLabelValues(name).Inc()
	m.frames.WithLabelValues(name).Add(float64(recipients))
}

func (m *Metrics) ConnectionOpened() { m.connections.Inc() }

func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

func (m *Metrics) MessageReceived(event string) { m.received.WithLabelValues(event).Inc() }

func (m *Metrics) MessageRejected() { m.rejected.Inc() }

func (m *Metrics) FrameDropped() { m.dropped.Inc() }
