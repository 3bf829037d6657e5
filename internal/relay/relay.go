package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"votecast/internal/broker"
	"votecast/internal/domain/poll"
	"votecast/internal/event"
	"votecast/internal/metrics"
	"votecast/internal/retry"
)

// State of the consumer loop.
type State int32

const (
	StateConnecting State = iota
	StateSubscribed
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const eventVoteUpdate = "vote-update"

// Broadcaster is the room fan-out the relay dispatches into.
type Broadcaster interface {
	BroadcastToPoll(pollID int64, name string, data []byte)
	BroadcastToAll(name string, data []byte)
}

// broadcastPayload is the body delivered to live clients: the snapshot
// embedded in the event, nothing re-queried.
type broadcastPayload struct {
	Poll *poll.Snapshot `json:"poll"`
}

// Relay is the single logical consumer of the vote topic. It processes
// messages strictly sequentially: the topic has one partition, so sequential
// dispatch preserves global publish order all the way to connected clients.
type Relay struct {
	broker broker.Broker
	topic  string
	group  string
	hub    Broadcaster
	logger *slog.Logger
	state  atomic.Int32
}

func New(b broker.Broker, topic, group string, hub Broadcaster, logger *slog.Logger) *Relay {
	return &Relay{
		broker: b,
		topic:  topic,
		group:  group,
		hub:    hub,
		logger: logger,
	}
}

func (r *Relay) State() State {
	return State(r.state.Load())
}

func (r *Relay) setState(s State) {
	r.state.Store(int32(s))
	r.logger.Info("relay state changed", "state", s.String())
}

// Run subscribes and consumes until the context is canceled. On subscription
// loss it resubscribes from the group's last committed offset, so anything
// uncommitted is redelivered; downstream tolerates the duplicates.
func (r *Relay) Run(ctx context.Context) {
	for {
		r.setState(StateConnecting)

		var ch <-chan broker.Message
		err := retry.DoWithRetry(ctx, 5, time.Second, func() error {
			var subErr error
			ch, subErr = r.broker.Subscribe(ctx, r.topic, r.group)
			return subErr
		})
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error("relay subscribe failed", "topic", r.topic, "error", err)
			}
			r.setState(StateStopped)
			return
		}
		r.setState(StateSubscribed)

		r.setState(StateRunning)
		if done := r.consume(ctx, ch); done {
			r.setState(StateStopped)
			return
		}
		// subscription ended without shutdown: reconnect and resume
		r.logger.Warn("relay subscription lost, reconnecting", "topic", r.topic)
	}
}

// consume reads the channel until shutdown (returns true) or subscription
// loss (returns false).
func (r *Relay) consume(ctx context.Context, ch <-chan broker.Message) bool {
	for {
		select {
		case <-ctx.Done():
			r.drain(ch)
			return true
		case msg, ok := <-ch:
			if !ok {
				return ctx.Err() != nil
			}
			r.handle(ctx, msg)
		}
	}
}

// drain processes messages already buffered at shutdown so committed votes
// that made it to the consumer are not silently dropped mid-flight.
func (r *Relay) drain(ch <-chan broker.Message) {
	r.setState(StateDraining)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(context.Background(), msg)
		default:
			return
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg broker.Message) {
	ev, err := event.Decode(msg.Value)
	if err != nil {
		// poison message: skip and advance, it must not block the partition
		metrics.IncRelayDecodeFailure()
		r.logger.Warn("skipping malformed message",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		r.commit(ctx, msg.Offset)
		return
	}

	switch ev.Type {
	case event.TypeVoteUpdate:
		r.dispatch(ev)
	case event.TypeNewPoll:
		r.logger.Debug("new poll announced", "poll_id", ev.PollID, "title", ev.Title)
	default:
		r.logger.Warn("unrecognized event type", "type", ev.Type, "offset", msg.Offset)
	}

	metrics.IncEventConsumed(string(ev.Type))
	r.commit(ctx, msg.Offset)
}

// dispatch fans the embedded snapshot out to the poll's room and to the
// global audience. Re-emitting an identical snapshot is harmless, so
// duplicate deliveries need no dedup here.
func (r *Relay) dispatch(ev event.Envelope) {
	if ev.Poll == nil {
		r.logger.Warn("vote update without snapshot", "poll_id", ev.PollID)
		return
	}
	data, err := json.Marshal(broadcastPayload{Poll: ev.Poll})
	if err != nil {
		r.logger.Error("encode broadcast payload", "poll_id", ev.PollID, "error", err)
		return
	}
	r.hub.BroadcastToPoll(ev.PollID, eventVoteUpdate, data)
	r.hub.BroadcastToAll(eventVoteUpdate, data)
}

func (r *Relay) commit(ctx context.Context, offset int64) {
	if err := r.broker.Commit(ctx, r.topic, r.group, offset); err != nil {
		r.logger.Warn("offset commit failed", "topic", r.topic, "offset", offset, "error", err)
	}
}
