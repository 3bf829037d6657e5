package api

import (
	"encoding/json"
	"net/http"

	"votecast/internal/event"
	"votecast/internal/platform/apperr"
)

type voteRequest struct {
	OptionID int64 `json:"optionId"`
}

// @Summary     Vote for an option
// @Tags        votes
// @Accept      json
// @Produce     json
// @Param       id       path      int64        true  "Poll ID"
// @Param       request  body      voteRequest  true  "Vote payload"
// @Success     200      {object}  map[string]string
// @Failure     400      {object}  map[string]string  "invalid body or option not in poll"
// @Failure     404      {object}  map[string]string  "poll not found"
// @Failure     500      {object}  map[string]string  "server error"
// @Router      /api/v1/polls/{id}/vote [post]
func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	pollID, err := parseIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid poll id", err))
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid body", err))
		return
	}
	if req.OptionID == 0 {
		errorResponse(w, apperr.BadRequest("invalid_input", "optionId is required", nil))
		return
	}

	if _, err := h.voteSvc.Cast(r.Context(), pollID, req.OptionID); err != nil {
		errorResponse(w, err)
		return
	}

	// re-read the committed state so the event carries a self-contained
	// snapshot and consumers never race a follow-up query
	snap, err := h.pollSvc.Snapshot(r.Context(), pollID)
	if err != nil {
		errorResponse(w, err)
		return
	}

	if err := h.publisher.Publish(r.Context(), event.VoteUpdate(snap, req.OptionID)); err != nil {
		// vote is durable; only the live notification was lost
		slogLogger.Warn("vote recorded but notification lost",
			"poll_id", pollID,
			"option_id", req.OptionID,
			"error", err,
		)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "vote recorded"})
}
