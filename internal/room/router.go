// Package room routes the events of every connection to room state and fans the
// resulting views out to the members of the affected room.
//
// All messages are processed one at a time under a single lock: registry and
// score mutation plus the enqueueing of outbound frames form one atomic step, so
// every member of a room observes broadcasts in processing order. Enqueueing never
// waits on the network; a connection that cannot take a frame is closed and goes
// through the regular disconnect path. Domain events are published once the lock
// is released.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/event"
	"github.com/victornm/quizroom/internal/registry"
	"github.com/victornm/quizroom/internal/score"
)

const defaultLeaderboardSize = 3

type State int

const (
	StateUnjoined State = iota
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	default:
		return "disconnected"
	}
}

type Config struct {
	EventBus        *event.Bus
	Registry        *registry.Registry
	Scores          score.Store
	LeaderboardSize int
}

type peer struct {
	conn  domain.Connection
	state State
}

type Router struct {
	mu     sync.Mutex
	eb     *event.Bus
	reg    *registry.Registry
	scores score.Store
	size   int
	peers  map[string]*peer

	seq     uint64
	pending []event.Event
}

func NewRouter(c Config) *Router {
	r := &Router{
		eb:     c.EventBus,
		reg:    c.Registry,
		scores: c.Scores,
		size:   c.LeaderboardSize,
		peers:  make(map[string]*peer),
	}

	if r.eb == nil {
		r.eb = event.NewBus()
	}
	if r.reg == nil {
		r.reg = registry.New()
	}
	if r.scores == nil {
		r.scores = score.NewMemoryStore()
	}
	if r.size <= 0 {
		r.size = defaultLeaderboardSize
	}

	return r
}

// Connect attaches a transport handle. The connection starts unjoined.
func (r *Router) Connect(conn domain.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers[conn.ID()] = &peer{conn: conn, state: StateUnjoined}
}

// State reports the state of a connection. Unknown ids are reported as disconnected.
func (r *Router) State(connID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.peers[connID]; ok {
		return p.state
	}
	return StateDisconnected
}

// Dispatch applies one message of the connection's stream, then publishes the
// resulting domain events. Publishing may wait for a free bus slot; it never
// holds up other connections.
func (r *Router) Dispatch(ctx context.Context, connID string, msg Message) error {
	events, err := r.apply(ctx, connID, msg)

	for _, e := range events {
		r.eb.Publish(ctx, e)
	}

	return err
}

func (r *Router) apply(ctx context.Context, connID string, msg Message) ([]event.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[connID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("connection %s is not attached", connID))
	}

	err := r.handle(ctx, p, msg)

	events := r.pending
	r.pending = nil

	return events, err
}

func (r *Router) handle(ctx context.Context, p *peer, msg Message) error {
	connID := p.conn.ID()

	slog.DebugContext(ctx, "room: dispatch", "connection", connID, "event", msg.Event(), "state", p.state)

	switch m := msg.(type) {
	case Join:
		return r.join(ctx, p, m)
	case SendQuestion:
		return r.sendQuestion(ctx, m)
	case SubmitAnswer:
		return r.submitAnswer(ctx, m)
	case EndQuiz:
		return r.endQuiz(ctx, m)
	case Disconnect:
		return r.disconnect(ctx, p)
	default:
		return errors.InvalidArgument("unsupported message %T", msg)
	}
}

func (r *Router) join(ctx context.Context, p *peer, m Join) error {
	id := p.conn.ID()

	prev, replaced := r.reg.Register(id, m.Username, m.RoomID)
	p.state = StateJoined

	if replaced && prev.RoomID != m.RoomID {
		slog.InfoContext(ctx, fmt.Sprintf("room: %s left room %s", prev.Username, prev.RoomID), "connection", id)
		if err := r.publishMembers(ctx, prev.RoomID); err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, fmt.Sprintf("room: %s joined room %s", m.Username, m.RoomID), "connection", id)
	return r.publishMembers(ctx, m.RoomID)
}

func (r *Router) sendQuestion(ctx context.Context, m SendQuestion) error {
	n, err := r.broadcast(ctx, m.RoomID, domain.Envelope{
		Event: domain.WireNewQuestion,
		Data:  m.Payload,
	})
	if err != nil {
		return err
	}

	r.emit(domain.EventQuestionSent{
		RoomID:     m.RoomID,
		Recipients: n,
		Payload:    m.Payload,
	})

	return nil
}

func (r *Router) submitAnswer(ctx context.Context, m SubmitAnswer) error {
	if _, err := r.scores.RecordAnswer(ctx, m.RoomID, m.Username, m.IsCorrect()); err != nil {
		return storeUnavailable(err)
	}

	entries, err := r.scores.Leaderboard(ctx, m.RoomID, r.size)
	if err != nil {
		return storeUnavailable(err)
	}

	l := domain.Leaderboard{
		Entries:      entries,
		TotalPlayers: r.reg.Count(m.RoomID),
	}

	if _, err := r.broadcast(ctx, m.RoomID, domain.Envelope{
		Event: domain.WireUpdateLeaderboard,
		Data:  l,
	}); err != nil {
		return err
	}

	r.emit(domain.EventLeaderboardUpdated{
		RoomID:      m.RoomID,
		Leaderboard: l,
		Seq:         r.nextSeq(),
	})

	// Nobody is in the room to own the score, so it must not outlive this answer.
	if l.TotalPlayers == 0 {
		return r.clearScores(ctx, m.RoomID)
	}

	return nil
}

func (r *Router) endQuiz(ctx context.Context, m EndQuiz) error {
	n, err := r.broadcast(ctx, m.RoomID, domain.Envelope{Event: domain.WireQuizEnded})
	if err != nil {
		return err
	}

	r.emit(domain.EventQuizEnded{
		RoomID:     m.RoomID,
		Recipients: n,
		Seq:        r.nextSeq(),
	})

	return nil
}

func (r *Router) disconnect(ctx context.Context, p *peer) error {
	id := p.conn.ID()
	p.state = StateDisconnected
	delete(r.peers, id)

	e, ok := r.reg.Unregister(id)
	if !ok {
		return nil
	}

	slog.InfoContext(ctx, fmt.Sprintf("room: %s left room %s", e.Username, e.RoomID), "connection", id)
	return r.publishMembers(ctx, e.RoomID)
}

// publishMembers broadcasts the room's membership view and drops the room's
// scores once nobody is left.
func (r *Router) publishMembers(ctx context.Context, roomID string) error {
	members := r.reg.MembersOf(roomID)

	if _, err := r.broadcast(ctx, roomID, domain.Envelope{
		Event: domain.WireRoomUsers,
		Data:  members,
	}); err != nil {
		return err
	}

	r.emit(domain.EventRoomUsers{
		RoomID:  roomID,
		Members: members,
	})

	if len(members) == 0 {
		return r.clearScores(ctx, roomID)
	}

	return nil
}

func (r *Router) clearScores(ctx context.Context, roomID string) error {
	if err := r.scores.Clear(ctx, roomID); err != nil {
		return storeUnavailable(err)
	}

	slog.DebugContext(ctx, "room: scores cleared", "room", roomID)
	return nil
}

// emit queues a domain event until the current message is fully applied.
func (r *Router) emit(e event.Event) {
	r.pending = append(r.pending, e)
}

func (r *Router) nextSeq() uint64 {
	r.seq++
	return r.seq
}

func storeUnavailable(err error) error {
	return errors.New(errors.CodeUnavailable,
		errors.WithMessagef("score store unavailable"),
		errors.WithCause(err),
	)
}

// broadcast queues the frame on every member of the room and returns the number
// of members that accepted it.
func (r *Router) broadcast(ctx context.Context, roomID string, env domain.Envelope) (int, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return 0, errors.Internal(fmt.Errorf("room: marshal %s: %w", env.Event, err))
	}

	var sent int
	for _, m := range r.reg.MembersOf(roomID) {
		p, ok := r.peers[m.ID]
		if !ok {
			continue
		}

		if err := p.conn.Send(b); err != nil {
			slog.WarnContext(ctx, "room: send failed, closing connection",
				"connection", m.ID,
				"event", env.Event,
				"error", err,
			)
			_ = p.conn.Close()
			continue
		}
		sent++
	}

	return sent, nil
}
