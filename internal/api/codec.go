package api

import (
	"encoding/json"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
	"github.com/victornm/quizroom/internal/room"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type (
	joinRoomData struct {
		Username string `json:"username"`
		RoomID   string `json:"roomId"`
	}

	sendQuestionData struct {
		RoomID string `json:"roomId"`
	}

	submitAnswerData struct {
		RoomID   string          `json:"roomId"`
		Username string          `json:"username"`
		Selected json.RawMessage `json:"selected"`
		Correct  json.RawMessage `json:"correct"`
	}

	endQuizData struct {
		RoomID string `json:"roomId"`
	}
)

// Decode turns an inbound frame into a router message. Absent fields decode to
// zero values; only frames that are not JSON, carry an unknown event or hold
// fields of the wrong type are rejected.
func Decode(b []byte) (room.Message, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("malformed frame"),
			errors.WithCause(err),
		)
	}

	switch f.Event {
	case domain.WireJoinRoom:
		var d joinRoomData
		if err := decodeData(f, &d); err != nil {
			return nil, err
		}
		return room.Join{Username: d.Username, RoomID: d.RoomID}, nil

	case domain.WireSendQuestion:
		var d sendQuestionData
		if err := decodeData(f, &d); err != nil {
			return nil, err
		}
		return room.SendQuestion{RoomID: d.RoomID, Payload: f.Data}, nil

	case domain.WireSubmitAnswer:
		var d submitAnswerData
		if err := decodeData(f, &d); err != nil {
			return nil, err
		}
		return room.SubmitAnswer{
			RoomID:   d.RoomID,
			Username: d.Username,
			Selected: d.Selected,
			Correct:  d.Correct,
		}, nil

	case domain.WireEndQuiz:
		var d endQuizData
		if err := decodeData(f, &d); err != nil {
			return nil, err
		}
		return room.EndQuiz{RoomID: d.RoomID}, nil

	default:
		return nil, errors.InvalidArgument("unknown event %q", f.Event)
	}
}

func decodeData(f frame, v any) error {
	if len(f.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(f.Data, v); err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid %s payload", f.Event),
			errors.WithCause(err),
		)
	}

	return nil
}

// Encode renders an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(domain.Envelope{Event: event, Data: data})
}
