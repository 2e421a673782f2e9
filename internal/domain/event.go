package domain

import "encoding/json"

// Inbound wire events.
const (
	WireJoinRoom     = "join-room"
	WireSendQuestion = "send-question"
	WireSubmitAnswer = "submit-answer"
	WireEndQuiz      = "end-quiz"
)

// Outbound wire events.
const (
	WireRoomUsers         = "room-users"
	WireNewQuestion       = "new-question"
	WireUpdateLeaderboard = "update-leaderboard"
	WireQuizEnded         = "quiz-ended"
)

// Domain events published on the in-process bus after a broadcast.
const (
	EventNameRoomUsers          = "room.users"
	EventNameQuestionSent       = "question.sent"
	EventNameLeaderboardUpdated = "leaderboard.updated"
	EventNameQuizEnded          = "quiz.ended"
)

type EventRoomUsers struct {
	RoomID  string
	Members []Member
}

func (EventRoomUsers) Name() string { return EventNameRoomUsers }

type EventQuestionSent struct {
	RoomID     string
	Recipients int
	Payload    json.RawMessage
}

func (EventQuestionSent) Name() string { return EventNameQuestionSent }

// Seq orders the events of the router: a higher Seq was processed later.
type EventLeaderboardUpdated struct {
	RoomID      string
	Leaderboard Leaderboard
	Seq         uint64
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventQuizEnded struct {
	RoomID     string
	Recipients int
	Seq        uint64
}

func (EventQuizEnded) Name() string { return EventNameQuizEnded }
