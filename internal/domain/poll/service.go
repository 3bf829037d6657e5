package poll

import (
	"context"
	"errors"
)

var (
	ErrTitleRequired = errors.New("title required")
	ErrNoOptions     = errors.New("poll must have at least one option")
	ErrPollNotFound  = errors.New("poll not found")
)

const defaultLeaderboardLimit = 10

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create inserts the poll and its options as one atomic unit. Either the
// whole poll becomes visible or none of it does.
func (s *Service) Create(ctx context.Context, p *Poll, options []Option) (int64, error) {
	if p.Title == "" {
		return 0, ErrTitleRequired
	}
	if len(options) == 0 {
		return 0, ErrNoOptions
	}
	return s.repo.Create(ctx, p, options)
}

func (s *Service) Snapshot(ctx context.Context, id int64) (*Snapshot, error) {
	return s.repo.Snapshot(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Snapshot, error) {
	return s.repo.List(ctx)
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	return s.repo.Leaderboard(ctx, limit)
}
