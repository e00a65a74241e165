package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryan-buckman/mindful/internal/model"
)

// EventNewPost is the wire name of the post-created event.
const EventNewPost = "newPost"

// ErrUnknownEvent is returned by Decode for an unrecognized event name.
var ErrUnknownEvent = errors.New("unknown event")

// Event is a message fanned out to connected clients. NewPost is the only
// variant.
type Event interface {
	Name() string
	isEvent()
}

// NewPost announces a post that has been stored.
type NewPost struct {
	Post model.Post
}

func (NewPost) Name() string { return EventNewPost }
func (NewPost) isEvent()     {}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Encode renders an event as {"event":...,"payload":...}.
func Encode(ev Event) ([]byte, error) {
	var payload any
	switch e := ev.(type) {
	case NewPost:
		payload = e.Post
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Name(), err)
	}
	return json.Marshal(envelope{Event: ev.Name(), Payload: raw})
}

// Decode parses an encoded event and checks its payload.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch env.Event {
	case EventNewPost:
		var p model.Post
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode newPost payload: %w", err)
		}
		if p.ID == "" {
			return nil, errors.New("decode newPost payload: missing id")
		}
		return NewPost{Post: p}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}
