// Package checkout clears a user's persisted cart once their order went
// through, so every open tab of that user empties through cross-tab sync.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/segmentio/kafka-go"
)

const (
	Topic   = "checkout-completed"
	GroupID = "storefront-checkout"
	Origin  = "checkout"
)

const defaultRetryDelay = time.Second

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	open    store.Opener
	cartKey string
	log     *slog.Logger

	retryDelay time.Duration
}

func NewConsumer(open store.Opener, cartKey string, log *slog.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, open, cartKey, log)
}

func newConsumer(reader messageReader, open store.Opener, cartKey string, log *slog.Logger) *Consumer {
	if cartKey == "" {
		cartKey = store.DefaultKeys().Cart
	}
	return &Consumer{reader: reader, open: open, cartKey: cartKey, log: log, retryDelay: defaultRetryDelay}
}

// Run consumes until ctx is done. A message is committed once handled, or
// when it can never be handled (bad payload). A failed clear is retried on
// the same message, so later offsets are never committed past it.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("error reading checkout message", slog.Any("error", err))
			c.wait(ctx)
			continue
		}

		if !c.handleWithRetry(ctx, m) {
			return
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Error("failed to commit checkout message", slog.Int64("offset", m.Offset), slog.Any("error", err))
		}
	}
}

// handleWithRetry returns false only when ctx ended before m was handled.
func (c *Consumer) handleWithRetry(ctx context.Context, m kafka.Message) bool {
	for {
		err := c.handle(ctx, m)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.Error("failed to clear cart after checkout, retrying",
			slog.Int64("offset", m.Offset), slog.Any("error", err))
		c.wait(ctx)
		if ctx.Err() != nil {
			return false
		}
	}
}

func (c *Consumer) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.retryDelay):
	}
}

var errBadPayload = errors.New("missing or invalid user_id")

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	userID, err := parseUserID(m.Value)
	if err != nil {
		// nothing to retry
		c.log.Warn("skipping checkout message", slog.Int64("offset", m.Offset), slog.Any("error", err))
		return nil
	}

	kv, err := c.open(ctx, userID, Origin)
	if err != nil {
		return fmt.Errorf("open store for %s: %w", userID, err)
	}
	defer kv.Close()

	if err := kv.Remove(ctx, c.cartKey); err != nil {
		return fmt.Errorf("remove cart of %s: %w", userID, err)
	}

	c.log.Info("cart cleared after checkout", slog.String("user_id", userID))
	return nil
}

func parseUserID(value []byte) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(value, &payload); err != nil {
		return "", fmt.Errorf("error parsing message: %w", err)
	}

	switch id := payload["user_id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	return "", errBadPayload
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
