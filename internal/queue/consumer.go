package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Handler processes one task. Returning an error drops the delivery
// without requeue; handlers own their retry policy and republish delayed
// retries themselves before returning nil.
type Handler func(ctx context.Context, task *Task) error

// Consumer pulls tasks off the work queue and feeds them to a handler
// with manual acknowledgement.
type Consumer struct {
	conn      *Connection
	queueName string
	prefetch  int
	handler   Handler
	logger    *slog.Logger

	stopChan chan struct{}
	doneChan chan struct{}
}

// NewConsumer creates a consumer for the given queue.
func NewConsumer(conn *Connection, queueName string, prefetch int, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:      conn,
		queueName: queueName,
		prefetch:  prefetch,
		handler:   handler,
		logger:    logger,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

// Start begins consuming in a background goroutine.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		defer close(c.doneChan)
		for {
			select {
			case <-c.stopChan:
				return
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("delivery channel closed", "queue", c.queueName)
					return
				}

				var task Task
				if err := json.Unmarshal(d.Body, &task); err != nil {
					c.logger.Error("discarding undecodable task", "error", err)
					d.Nack(false, false)
					continue
				}

				if err := c.handler(ctx, &task); err != nil {
					c.logger.Error("task handler failed",
						"task_id", task.ID,
						"kind", task.Kind,
						"attempt", task.Attempt,
						"error", err)
					d.Nack(false, false)
					continue
				}
				d.Ack(false)
			}
		}
	}()

	c.logger.Info("consumer started", "queue", c.queueName, "prefetch", c.prefetch)
	return nil
}

// Stop signals the consume loop to exit and waits for it.
func (c *Consumer) Stop() {
	close(c.stopChan)
	<-c.doneChan
	c.logger.Info("consumer stopped", "queue", c.queueName)
}
