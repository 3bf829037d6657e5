package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"votecast/internal/domain/poll"
)

type Type string

const (
	TypeNewPoll    Type = "NEW_POLL"
	TypeVoteUpdate Type = "VOTE_UPDATE"
)

var ErrDecode = errors.New("malformed event payload")

// Envelope is the wire form of a domain event. The type tag is mandatory;
// which of the remaining fields are set depends on it. VOTE_UPDATE carries a
// full poll snapshot so consumers never query the store.
type Envelope struct {
	Type        Type           `json:"type"`
	EventID     string         `json:"eventId,omitempty"`
	PollID      int64          `json:"pollId"`
	OptionID    int64          `json:"optionId,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Options     []string       `json:"options,omitempty"`
	Poll        *poll.Snapshot `json:"poll,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

func NewPoll(p *poll.Poll, options []string) Envelope {
	return Envelope{
		Type:        TypeNewPoll,
		PollID:      p.ID,
		Title:       p.Title,
		Description: p.Description,
		Options:     options,
	}
}

func VoteUpdate(snap *poll.Snapshot, optionID int64) Envelope {
	return Envelope{
		Type:     TypeVoteUpdate,
		PollID:   snap.ID,
		OptionID: optionID,
		Poll:     snap,
	}
}

// Decode parses a topic message body. Payloads that are not well-formed JSON
// or carry no type tag are rejected with ErrDecode; the caller is expected to
// skip them rather than retry.
func Decode(data []byte) (Envelope, error) {
	var ev Envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if ev.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type tag", ErrDecode)
	}
	return ev, nil
}
