package room

import (
	"encoding/json"

	"github.com/victornm/quizroom/internal/domain"
)

// Message is one inbound event of a connection stream.
type Message interface {
	Event() string
}

// Join registers the connection in a room under a display name.
type Join struct {
	Username string
	RoomID   string
}

// SendQuestion relays Payload verbatim to the room.
type SendQuestion struct {
	RoomID  string
	Payload json.RawMessage
}

// SubmitAnswer scores one answer. Selected and Correct hold the raw JSON values
// of the answer; nil means the field was absent.
type SubmitAnswer struct {
	RoomID   string
	Username string
	Selected json.RawMessage
	Correct  json.RawMessage
}

// EndQuiz signals the end of the quiz to the room. It changes no state.
type EndQuiz struct {
	RoomID string
}

// Disconnect is produced by the transport when the link drops.
type Disconnect struct{}

func (Join) Event() string         { return domain.WireJoinRoom }
func (SendQuestion) Event() string { return domain.WireSendQuestion }
func (SubmitAnswer) Event() string { return domain.WireSubmitAnswer }
func (EndQuiz) Event() string      { return domain.WireEndQuiz }
func (Disconnect) Event() string   { return "disconnect" }

// IsCorrect compares the two values with strict equality of JSON primitives.
// Two absent values are equal, an absent value never equals null, and objects
// and arrays are never equal to anything.
func (m SubmitAnswer) IsCorrect() bool {
	if m.Selected == nil || m.Correct == nil {
		return m.Selected == nil && m.Correct == nil
	}

	selected, ok := primitive(m.Selected)
	if !ok {
		return false
	}

	correct, ok := primitive(m.Correct)
	if !ok {
		return false
	}

	return selected == correct
}

func primitive(raw json.RawMessage) (any, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}

	switch v.(type) {
	case nil, bool, float64, string:
		return v, true
	}
	return nil, false
}
