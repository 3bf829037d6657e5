package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"votecast/internal/domain/poll"
	"votecast/internal/event"
	"votecast/internal/platform/apperr"
)

type createPollRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

// @Summary     Create a poll with its options
// @Tags        polls
// @Accept      json
// @Produce     json
// @Param       request  body      createPollRequest  true  "Poll payload"
// @Success     201      {object}  map[string]int64
// @Failure     400      {object}  map[string]string  "invalid body or no options"
// @Failure     500      {object}  map[string]string  "server error"
// @Router      /api/v1/polls [post]
func (h *Handler) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}

	p := &poll.Poll{
		Title:       req.Title,
		Description: req.Description,
	}
	opts := make([]poll.Option, 0, len(req.Options))
	for _, text := range req.Options {
		opts = append(opts, poll.Option{Text: text})
	}

	id, err := h.pollSvc.Create(r.Context(), p, opts)
	if err != nil {
		errorResponse(w, err)
		return
	}

	// the write is committed; a lost announcement is the accepted degraded
	// mode, never a reason to fail the request
	if err := h.publisher.Publish(r.Context(), event.NewPoll(p, req.Options)); err != nil {
		slogLogger.Warn("poll created but announcement lost", "poll_id", id, "error", err)
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// @Summary     List polls newest-first with live tallies
// @Tags        polls
// @Produce     json
// @Success     200  {array}   poll.Snapshot
// @Failure     500  {object}  map[string]string  "server error"
// @Router      /api/v1/polls [get]
func (h *Handler) handleListPolls(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.pollSvc.List(r.Context())
	if err != nil {
		errorResponse(w, err)
		return
	}
	if snaps == nil {
		snaps = []poll.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// @Summary     Poll snapshot with per-option tallies
// @Tags        polls
// @Produce     json
// @Param       id   path      int64  true  "Poll ID"
// @Success     200  {object}  poll.Snapshot
// @Failure     400  {object}  map[string]string  "invalid poll id"
// @Failure     404  {object}  map[string]string  "not found"
// @Failure     500  {object}  map[string]string  "server error"
// @Router      /api/v1/polls/{id} [get]
func (h *Handler) handleGetPoll(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	snap, err := h.pollSvc.Snapshot(r.Context(), id)
	if err != nil {
		errorResponse(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// @Summary     Top options across all polls by vote count
// @Tags        polls
// @Produce     json
// @Param       limit  query     int  false  "Max rows (default 10)"
// @Success     200    {array}   poll.LeaderboardEntry
// @Failure     500    {object}  map[string]string  "server error"
// @Router      /api/v1/polls/leaderboard/top [get]
func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}

	entries, err := h.pollSvc.Leaderboard(r.Context(), limit)
	if err != nil {
		errorResponse(w, err)
		return
	}
	if entries == nil {
		entries = []poll.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
