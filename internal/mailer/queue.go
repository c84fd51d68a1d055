package mailer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("mailer: queue full, message not queued")

type queuedMessage struct {
	msg     Message
	retries int
}

// Queue paces outgoing mail and retries failed sends.
type Queue struct {
	mailer   *Mailer
	ch       chan queuedMessage
	rate     time.Duration
	maxRetry int
	backoff  time.Duration

	retries sync.WaitGroup
}

func NewQueue(m *Mailer, rate time.Duration, bufferSize, maxRetry int) *Queue {
	return &Queue{
		mailer:   m,
		ch:       make(chan queuedMessage, bufferSize),
		rate:     rate,
		maxRetry: maxRetry,
		backoff:  5 * time.Second,
	}
}

// Start sends one queued message per tick until ctx is cancelled, then
// drains whatever is left and waits for pending retries to give up.
func (q *Queue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.retries.Wait()
			q.drain()
			return
		case <-ticker.C:
			select {
			case item := <-q.ch:
				q.attempt(ctx, item)
			default:
			}
		}
	}
}

func (q *Queue) Enqueue(msg Message) error {
	select {
	case q.ch <- queuedMessage{msg: msg}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Reconfigure forwards new SMTP settings to the underlying Mailer.
func (q *Queue) Reconfigure(cfg *Config) {
	q.mailer.Reconfigure(cfg)
}

// attempt sends a message, scheduling a retry with linear backoff on failure.
func (q *Queue) attempt(ctx context.Context, item queuedMessage) {
	err := q.mailer.Send(item.msg)
	if err == nil {
		return
	}
	if errors.Is(err, ErrNotConfigured) || item.retries >= q.maxRetry {
		slog.Error("mailer: message dropped", "to", item.msg.To, "subject", item.msg.Subject, "retries", item.retries, "err", err)
		return
	}

	item.retries++
	backoff := time.Duration(item.retries) * q.backoff
	slog.Warn("mailer: send failed, retrying with backoff", "to", item.msg.To, "retry", item.retries, "backoff", backoff, "err", err)

	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case q.ch <- item:
			default:
				slog.Error("mailer: requeue failed, queue full, message dropped", "to", item.msg.To)
			}
		case <-ctx.Done():
			slog.Warn("mailer: retry cancelled during shutdown", "to", item.msg.To)
		}
	}()
}

// drain flushes remaining queued messages on shutdown, best-effort.
func (q *Queue) drain() {
	for {
		select {
		case item := <-q.ch:
			if err := q.mailer.Send(item.msg); err != nil {
				slog.Error("mailer: drain send failed", "to", item.msg.To, "err", err)
			}
		default:
			return
		}
	}
}
