package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "votecast/docs"
	"votecast/internal/broker"
	"votecast/internal/config"
	"votecast/internal/domain/poll"
	"votecast/internal/domain/vote"
	"votecast/internal/event"
	api "votecast/internal/http"
	"votecast/internal/hub"
	"votecast/internal/metrics"
	"votecast/internal/platform/database"
	"votecast/internal/relay"
	"votecast/internal/repository/postgres"
)

// @title           Votecast API
// @version         1.0
// @description     Polling service with live vote-count propagation
// @BasePath        /api/v1
func main() {
	cfg := config.Load()
	logger := slog.Default()

	metrics.Register()
	api.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.DB_DSN)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	pollRepo := postgres.NewPollRepo(db)
	voteRepo := postgres.NewVoteRepo(db)

	pollSvc := poll.NewService(pollRepo)
	voteSvc := vote.NewService(voteRepo)

	// single shared broker handle for the whole process, torn down last
	bus := broker.NewLog(cfg.BrokerBuffer, logger)
	for _, topic := range []string{cfg.VoteTopic, cfg.ResultsTopic} {
		if err := bus.CreateTopic(ctx, topic); err != nil {
			log.Fatalf("create topic %s: %v", topic, err)
		}
	}

	publisher := event.NewPublisher(bus, cfg.VoteTopic, logger)
	rooms := hub.New(cfg.BrokerBuffer, logger)

	consumer := relay.New(bus, cfg.VoteTopic, cfg.ConsumerGroup, rooms, logger)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		consumer.Run(ctx)
	}()

	router := api.NewRouter(pollSvc, voteSvc, publisher, rooms, db)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	<-stop
	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	cancel()
	select {
	case <-relayDone:
	case <-shutdownCtx.Done():
		log.Println("relay did not drain in time")
	}
	_ = bus.Close()

	log.Println("server stopped")
}
