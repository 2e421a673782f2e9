package domain

// Connection is one active client link, as seen by the router.
// Send must not block: implementations queue the frame and return an error
// when the frame cannot be queued.
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// Entry is what the registry stores for a joined connection.
type Entry struct {
	Username string
	RoomID   string
}

// Member is one element of a room's membership view.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ScoreEntry represents a participant's number of correct answers within a room.
type ScoreEntry struct {
	Username string `json:"user"`
	Score    int64  `json:"score"`
}

// Leaderboard is the view broadcast after every answer.
// Entries are sorted by score in descending order, ties by username.
type Leaderboard struct {
	Entries      []ScoreEntry `json:"leaderboard"`
	TotalPlayers int          `json:"totalPlayers"`
}

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
