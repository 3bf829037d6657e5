package postgres

import (
	"context"
	"database/sql"
	"errors"

	"votecast/internal/domain/poll"
)

type PollRepo struct {
	db *sql.DB
}

func NewPollRepo(db *sql.DB) *PollRepo {
	return &PollRepo{db: db}
}

// Create inserts the poll and all of its options in one transaction. A
// failing option insert rolls the whole poll back; nothing partial is ever
// visible.
func (r *PollRepo) Create(ctx context.Context, p *poll.Poll, options []poll.Option) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	queryPoll := `
        INSERT INTO polls (title, description)
        VALUES ($1, $2)
        RETURNING id, created_at
    `

	err = tx.QueryRowContext(ctx, queryPoll, p.Title, p.Description).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return 0, err
	}

	queryOpt := `
        INSERT INTO options (poll_id, text)
        VALUES ($1, $2)
        RETURNING id
    `

	for i := range options {
		options[i].PollID = p.ID
		if err := tx.QueryRowContext(ctx, queryOpt, options[i].PollID, options[i].Text).
			Scan(&options[i].ID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return p.ID, nil
}

// Snapshot aggregates tallies live. The LEFT JOIN keeps zero-vote options in
// the result with a count of 0; they are never omitted.
func (r *PollRepo) Snapshot(ctx context.Context, id int64) (*poll.Snapshot, error) {
	snap := &poll.Snapshot{}
	err := r.db.QueryRowContext(ctx, `
        SELECT id, title, description, created_at
        FROM polls WHERE id = $1
    `, id).Scan(&snap.ID, &snap.Title, &snap.Description, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, poll.ErrPollNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT o.id, o.text, COUNT(v.id)
        FROM options o
        LEFT JOIN votes v ON v.option_id = o.id
        WHERE o.poll_id = $1
        GROUP BY o.id, o.text
        ORDER BY o.id
    `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t poll.OptionTally
		if err := rows.Scan(&t.ID, &t.Text, &t.Votes); err != nil {
			return nil, err
		}
		snap.Options = append(snap.Options, t)
		snap.TotalVotes += t.Votes
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

// List returns every poll newest-first, each with its current tallies.
func (r *PollRepo) List(ctx context.Context) ([]poll.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, title, description, created_at
        FROM polls
        ORDER BY created_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []poll.Snapshot
	index := make(map[int64]int)
	for rows.Next() {
		var s poll.Snapshot
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.CreatedAt); err != nil {
			return nil, err
		}
		index[s.ID] = len(snaps)
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return snaps, nil
	}

	tallyRows, err := r.db.QueryContext(ctx, `
        SELECT o.poll_id, o.id, o.text, COUNT(v.id)
        FROM options o
        LEFT JOIN votes v ON v.option_id = o.id
        GROUP BY o.poll_id, o.id, o.text
        ORDER BY o.id
    `)
	if err != nil {
		return nil, err
	}
	defer tallyRows.Close()

	for tallyRows.Next() {
		var pollID int64
		var t poll.OptionTally
		if err := tallyRows.Scan(&pollID, &t.ID, &t.Text, &t.Votes); err != nil {
			return nil, err
		}
		if i, ok := index[pollID]; ok {
			snaps[i].Options = append(snaps[i].Options, t)
			snaps[i].TotalVotes += t.Votes
		}
	}
	if err := tallyRows.Err(); err != nil {
		return nil, err
	}

	return snaps, nil
}

func (r *PollRepo) Leaderboard(ctx context.Context, limit int) ([]poll.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT o.id, p.title, o.text, COUNT(v.id) AS vote_count
        FROM options o
        JOIN polls p ON p.id = o.poll_id
        LEFT JOIN votes v ON v.option_id = o.id
        GROUP BY o.id, p.title, o.text
        ORDER BY vote_count DESC, o.id
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []poll.LeaderboardEntry
	for rows.Next() {
		var e poll.LeaderboardEntry
		if err := rows.Scan(&e.OptionID, &e.PollTitle, &e.Text, &e.Votes); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
