package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizroom/internal/api"
	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/event"
	"github.com/victornm/quizroom/internal/room"
)

func TestAPI_PubsubMirror(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc := makeRedis(t)
	roomSub := subscribe(ctx, t, rc, "local:room:R1")
	userSub := subscribe(ctx, t, rc, "local:room:R1:user:Bob")

	eb := event.NewBus()
	api.New(api.Config{
		Engine:       gin.New(),
		EventBus:     eb,
		Router:       room.NewRouter(room.Config{EventBus: eb}),
		Redis:        rc,
		PubsubPrefix: "local",
	})

	eb.Publish(ctx, domain.EventLeaderboardUpdated{
		RoomID: "R1",
		Seq:    1,
		Leaderboard: domain.Leaderboard{
			Entries:      []domain.ScoreEntry{{Username: "Bob", Score: 1}},
			TotalPlayers: 2,
		},
	})
	eb.Stop()

	const want = `{"event":"update-leaderboard","data":{"leaderboard":[{"user":"Bob","score":1}],"totalPlayers":2}}`

	msg, err := roomSub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, want, msg.Payload)

	msg, err = userSub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, want, msg.Payload)

	eb.Publish(ctx, domain.EventQuizEnded{RoomID: "R1", Recipients: 2, Seq: 2})
	eb.Stop()

	msg, err = roomSub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"quiz-ended"}`, msg.Payload)
}

func TestAPI_PubsubMirrorDropsStaleEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rc := makeRedis(t)
	roomSub := subscribe(ctx, t, rc, "local:room:R1")

	eb := event.NewBus()
	a := api.New(api.Config{
		Engine:       gin.New(),
		EventBus:     eb,
		Router:       room.NewRouter(room.Config{EventBus: eb}),
		Redis:        rc,
		PubsubPrefix: "local",
	})

	board := func(seq uint64, score int64) domain.EventLeaderboardUpdated {
		return domain.EventLeaderboardUpdated{
			RoomID: "R1",
			Seq:    seq,
			Leaderboard: domain.Leaderboard{
				Entries:      []domain.ScoreEntry{{Username: "Bob", Score: score}},
				TotalPlayers: 1,
			},
		}
	}

	// The handler of the newer event ran first.
	require.NoError(t, a.PublishLeaderboardUpdated(ctx, board(2, 2)))
	require.NoError(t, a.PublishLeaderboardUpdated(ctx, board(1, 1)))
	require.NoError(t, a.PublishQuizEnded(ctx, domain.EventQuizEnded{RoomID: "R1", Seq: 3}))

	msg, err := roomSub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"update-leaderboard","data":{"leaderboard":[{"user":"Bob","score":2}],"totalPlayers":1}}`, msg.Payload)

	msg, err = roomSub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"quiz-ended"}`, msg.Payload, "stale leaderboard should not be mirrored")
}

func makeRedis(t *testing.T) redis.UniversalClient {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return rc
}

func subscribe(ctx context.Context, t *testing.T, rc redis.UniversalClient, channel string) *redis.PubSub {
	sub := rc.Subscribe(ctx, channel)
	t.Cleanup(func() { sub.Close() })

	// Wait for the subscription to be confirmed before anything is published.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	return sub
}
