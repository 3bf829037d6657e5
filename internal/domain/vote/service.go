package vote

import (
	"context"
	"errors"
)

var ErrOptionNotInPoll = errors.New("option does not belong to poll")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Cast records a vote after checking that the option belongs to the poll.
// Options are immutable after poll creation, so the check and the insert do
// not need to be atomic against structural changes.
func (s *Service) Cast(ctx context.Context, pollID, optionID int64) (*Vote, error) {
	ok, err := s.repo.OptionInPoll(ctx, pollID, optionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOptionNotInPoll
	}

	v := &Vote{
		PollID:   pollID,
		OptionID: optionID,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}
