// Package score keeps the per-room count of correct answers.
package score

import (
	"context"
	"sort"

	"github.com/victornm/quizroom/internal/domain"
)

// Store is a room -> username -> score table.
// RecordAnswer must be atomic per (room, username).
type Store interface {
	// RecordAnswer creates the entry at 0 if absent, increments it iff correct
	// and returns the entry's score.
	RecordAnswer(ctx context.Context, roomID, username string, correct bool) (int64, error)
	// Leaderboard returns at most n entries, highest score first, ties by username.
	Leaderboard(ctx context.Context, roomID string, n int) ([]domain.ScoreEntry, error)
	// Clear drops every entry of the room.
	Clear(ctx context.Context, roomID string) error
	// Reset drops every room owned by the store.
	Reset(ctx context.Context) error
}

func rank(entries []domain.ScoreEntry, n int) []domain.ScoreEntry {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username < entries[j].Username
	})

	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}

	return entries
}
