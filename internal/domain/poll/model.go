package poll

import (
	"context"
	"time"
)

type Poll struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Option struct {
	ID     int64  `json:"id"`
	PollID int64  `json:"pollId"`
	Text   string `json:"text"`
}

// OptionTally is an option with its live vote count. Counts are always
// derived from the vote log, never stored.
type OptionTally struct {
	ID    int64  `json:"id"`
	Text  string `json:"text"`
	Votes int64  `json:"votes"`
}

// Snapshot is a self-contained view of a poll with current tallies. It is
// embedded in vote-update events so consumers never need a follow-up query.
type Snapshot struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	CreatedAt   time.Time     `json:"createdAt"`
	Options     []OptionTally `json:"options"`
	TotalVotes  int64         `json:"totalVotes"`
}

type LeaderboardEntry struct {
	OptionID  int64  `json:"optionId"`
	PollTitle string `json:"pollTitle"`
	Text      string `json:"optionText"`
	Votes     int64  `json:"voteCount"`
}

type Repository interface {
	Create(ctx context.Context, p *Poll, options []Option) (int64, error)
	Snapshot(ctx context.Context, id int64) (*Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}
