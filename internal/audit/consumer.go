package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"beaconattend/internal/queue"
)

// Sink stores audit entries.
type Sink interface {
	Insert(ctx context.Context, e Entry) error
}

// Consumer drains the event queue into the audit trail. An event whose insert
// fails is pushed back onto the queue until it has been tried MaxAttempts
// times; the body is logged when it is finally given up.
type Consumer struct {
	q      queue.Queue
	sink   Sink
	logger *zap.Logger

	MaxAttempts int
	RetryDelay  time.Duration

	attempts map[string]int
}

// NewConsumer wires a consumer.
func NewConsumer(q queue.Queue, sink Sink, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		q:           q,
		sink:        sink,
		logger:      logger,
		MaxAttempts: 5,
		RetryDelay:  time.Second,
		attempts:    map[string]int{},
	}
}

// Run blocks until ctx ends or the queue closes. It returns the number of
// entries stored.
func (c *Consumer) Run(ctx context.Context) (int, error) {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return 0, err
	}
	stored := 0
	for msg := range messages {
		evt, err := queue.Decode(msg)
		if err != nil {
			c.logger.Warn("dropping undecodable message", zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		if evt.ID == "" {
			c.logger.Warn("dropping event without id", zap.String("type", evt.Type))
			continue
		}
		if err := c.sink.Insert(ctx, FromEvent(evt, msg.Body)); err != nil {
			c.retry(ctx, evt, msg, err)
			continue
		}
		delete(c.attempts, evt.ID)
		stored++
		c.logger.Debug("audit entry stored",
			zap.String("event_id", evt.ID),
			zap.String("type", evt.Type),
			zap.String("class_id", evt.ClassID))
	}
	return stored, nil
}

func (c *Consumer) retry(ctx context.Context, evt queue.Event, msg queue.Message, cause error) {
	c.attempts[evt.ID]++
	n := c.attempts[evt.ID]
	if n >= c.MaxAttempts {
		delete(c.attempts, evt.ID)
		c.logger.Error("audit insert abandoned",
			zap.String("event_id", evt.ID),
			zap.Int("attempts", n),
			zap.ByteString("body", msg.Body),
			zap.Error(cause))
		return
	}
	c.logger.Warn("audit insert failed, requeueing",
		zap.String("event_id", evt.ID),
		zap.Int("attempt", n),
		zap.Error(cause))

	if err := c.q.Publish(context.WithoutCancel(ctx), msg); err != nil {
		delete(c.attempts, evt.ID)
		c.logger.Error("audit requeue failed",
			zap.String("event_id", evt.ID),
			zap.ByteString("body", msg.Body),
			zap.Error(err))
		return
	}
	select {
	case <-time.After(c.RetryDelay):
	case <-ctx.Done():
	}
}
