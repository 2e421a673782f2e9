package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizroom/internal/domain"
)

const maxConcurrent = 100

// mirror keeps the last event mirrored per room. Bus handlers run concurrently,
// so an event older than the last one mirrored for its room is dropped instead
// of overwriting a newer view.
type mirror struct {
	mu    sync.Mutex
	rooms map[string]*roomMirror
}

type roomMirror struct {
	mu   sync.Mutex
	last uint64
}

func newMirror() *mirror {
	return &mirror{rooms: make(map[string]*roomMirror)}
}

func (m *mirror) room(roomID string) *roomMirror {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.rooms[roomID]
	if !ok {
		rm = &roomMirror{}
		m.rooms[roomID] = rm
	}
	return rm
}

func (m *mirror) forget(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.rooms, roomID)
}

// lock returns the locked room state when seq is newer than anything mirrored
// for the room, nil otherwise.
func (m *mirror) lock(roomID string, seq uint64) *roomMirror {
	rm := m.room(roomID)
	rm.mu.Lock()
	if seq <= rm.last {
		rm.mu.Unlock()
		return nil
	}

	rm.last = seq
	return rm
}

// PublishLeaderboardUpdated mirrors a leaderboard to the room channel and to the
// channel of every ranked user.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	rm := a.mirror.lock(e.RoomID, e.Seq)
	if rm == nil {
		slog.DebugContext(ctx, "pubsub: stale leaderboard dropped", "room", e.RoomID, "seq", e.Seq)
		return nil
	}
	defer rm.mu.Unlock()

	if err := a.publishNotification(ctx, a.roomChannel(e.RoomID), domain.WireUpdateLeaderboard, e.Leaderboard); err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range e.Leaderboard.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.userChannel(e.RoomID, entry.Username), domain.WireUpdateLeaderboard, e.Leaderboard)
		})
	}

	return eg.Wait()
}

// PublishQuizEnded mirrors the end of a quiz to the room channel.
func (a *API) PublishQuizEnded(ctx context.Context, e domain.EventQuizEnded) error {
	rm := a.mirror.lock(e.RoomID, e.Seq)
	if rm == nil {
		slog.DebugContext(ctx, "pubsub: stale quiz end dropped", "room", e.RoomID, "seq", e.Seq)
		return nil
	}
	defer rm.mu.Unlock()

	return a.publishNotification(ctx, a.roomChannel(e.RoomID), domain.WireQuizEnded, nil)
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	b, err := Encode(event, data)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) roomChannel(roomID string) string {
	return fmt.Sprintf("%s:room:%s", a.prefix, roomID)
}

func (a *API) userChannel(roomID, user string) string {
	return fmt.Sprintf("%s:room:%s:user:%s", a.prefix, roomID, user)
}
