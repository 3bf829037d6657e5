package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"votecast/internal/domain/poll"
	"votecast/internal/domain/vote"
	"votecast/internal/event"
	"votecast/internal/hub"
	"votecast/internal/platform/apperr"
)

type Handler struct {
	pollSvc   *poll.Service
	voteSvc   *vote.Service
	publisher *event.Publisher
	hub       *hub.Hub
	db        *sql.DB
}

func NewRouter(
	pollSvc *poll.Service,
	voteSvc *vote.Service,
	publisher *event.Publisher,
	h *hub.Hub,
	db *sql.DB,
) http.Handler {
	handler := &Handler{
		pollSvc:   pollSvc,
		voteSvc:   voteSvc,
		publisher: publisher,
		hub:       h,
		db:        db,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger)
	r.Use(CORSMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", handler.handleReady)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		// the events stream must outlive the request timeout that guards
		// the plain JSON endpoints
		r.Get("/events", handler.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))

			r.Post("/polls", handler.handleCreatePoll)
			r.Get("/polls", handler.handleListPolls)
			r.Get("/polls/leaderboard/top", handler.handleLeaderboard)
			r.Get("/polls/{id}", handler.handleGetPoll)
			r.With(RateLimitVotes(rate.Every(time.Second), 10)).
				Post("/polls/{id}/vote", handler.handleVote)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	idStr := chi.URLParam(r, name)
	return strconv.ParseInt(idStr, 10, 64)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		errorResponse(w, apperr.Unavailable("db_unavailable", "database not ready", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
