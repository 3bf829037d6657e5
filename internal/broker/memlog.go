package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("broker closed")

// Log is a single-partition, in-process topic log. Every published message
// is appended to a per-topic slice and retained, so a consumer group that
// resubscribes resumes from its committed offset and re-reads anything it
// never committed (at-least-once semantics).
type Log struct {
	mu      sync.Mutex
	topics  map[string][]Message
	commits map[string]int64 // topic "/" group -> next offset to deliver
	notify  chan struct{}    // closed and replaced on every append
	buffer  int
	closed  bool
	logger  *slog.Logger
}

func NewLog(buffer int, logger *slog.Logger) *Log {
	if buffer <= 0 {
		buffer = 128
	}
	return &Log{
		topics:  make(map[string][]Message),
		commits: make(map[string]int64),
		notify:  make(chan struct{}),
		buffer:  buffer,
		logger:  logger,
	}
}

func (l *Log) CreateTopic(ctx context.Context, topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if _, ok := l.topics[topic]; !ok {
		l.topics[topic] = nil
		if l.logger != nil {
			l.logger.Info("topic created", "topic", topic)
		}
	}
	return nil
}

func (l *Log) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	data := make([]byte, len(value))
	copy(data, value)

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     data,
		Offset:    int64(len(l.topics[topic])),
		Timestamp: time.Now().UTC(),
	}
	l.topics[topic] = append(l.topics[topic], msg)

	close(l.notify)
	l.notify = make(chan struct{})
	return nil
}

func (l *Log) Subscribe(ctx context.Context, topic, group string) (<-chan Message, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	next := l.commits[commitKey(topic, group)]
	l.mu.Unlock()

	ch := make(chan Message, l.buffer)
	go l.feed(ctx, topic, next, ch)
	return ch, nil
}

// feed delivers messages starting at offset next, blocking until new
// messages are appended. It runs one goroutine per subscription and exits
// when the context is canceled or the log is closed.
func (l *Log) feed(ctx context.Context, topic string, next int64, ch chan<- Message) {
	defer close(ch)
	for {
		msg, ok := l.waitNext(ctx, topic, next)
		if !ok {
			return
		}
		select {
		case ch <- msg:
			next++
		case <-ctx.Done():
			return
		}
	}
}

func (l *Log) waitNext(ctx context.Context, topic string, offset int64) (Message, bool) {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return Message{}, false
		}
		if log := l.topics[topic]; int64(len(log)) > offset {
			msg := log[offset]
			l.mu.Unlock()
			return msg, true
		}
		wait := l.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, false
		case <-wait:
		}
	}
}

func (l *Log) Commit(ctx context.Context, topic, group string, offset int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	key := commitKey(topic, group)
	if offset+1 > l.commits[key] {
		l.commits[key] = offset + 1
	}
	return nil
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.notify)
	return nil
}

func commitKey(topic, group string) string {
	return topic + "/" + group
}
