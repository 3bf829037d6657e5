package vote

import (
	"context"
	"time"
)

// Vote is append-only: never updated, never deleted.
type Vote struct {
	ID        int64     `json:"id"`
	PollID    int64     `json:"pollId"`
	OptionID  int64     `json:"optionId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Repository interface {
	Create(ctx context.Context, v *Vote) error
	OptionInPoll(ctx context.Context, pollID, optionID int64) (bool, error)
}
