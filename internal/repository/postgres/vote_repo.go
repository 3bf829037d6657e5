package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"votecast/internal/domain/vote"
)

type VoteRepo struct {
	db *sql.DB
}

func NewVoteRepo(db *sql.DB) *VoteRepo {
	return &VoteRepo{db: db}
}

func (r *VoteRepo) Create(ctx context.Context, v *vote.Vote) error {
	query := `
        INSERT INTO votes (poll_id, option_id)
        VALUES ($1, $2)
        RETURNING id, created_at
    `
	err := r.db.QueryRowContext(ctx, query, v.PollID, v.OptionID).
		Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return vote.ErrOptionNotInPoll
		}
		return err
	}
	return nil
}

func (r *VoteRepo) OptionInPoll(ctx context.Context, pollID, optionID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM options WHERE id = $1 AND poll_id = $2
        )
    `, optionID, pollID).Scan(&ok)
	return ok, err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
