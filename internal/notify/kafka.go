package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const NotificationsTopic = "storefront-notifications"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type event struct {
	UserID     string    `json:"user_id"`
	TabID      string    `json:"tab_id"`
	Message    string    `json:"message"`
	Type       Type      `json:"type"`
	Position   string    `json:"position,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// KafkaSink publishes notifications as JSON events keyed by tab id. Publishing
// happens on a background goroutine; when the queue is full the event is
// dropped and logged rather than stalling a cart mutation.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	wg     sync.WaitGroup
}

func NewKafkaSink(log *slog.Logger, brokers ...string) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  NotificationsTopic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, log)
}

func newKafkaSink(w messageWriter, log *slog.Logger) *KafkaSink {
	s := &KafkaSink{
		writer:  w,
		timeout: 5 * time.Second,
		log:     log,
		queue:   make(chan kafka.Message, 256),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// For returns a Sink that tags every notification with the user and tab.
func (s *KafkaSink) For(userID, tabID string) Sink {
	return SinkFunc(func(n Notification) {
		s.publish(userID, tabID, n)
	})
}

func (s *KafkaSink) publish(userID, tabID string, n Notification) {
	payload, err := json.Marshal(event{
		UserID:     userID,
		TabID:      tabID,
		Message:    n.Message,
		Type:       n.Type,
		Position:   n.Position,
		DurationMS: n.Duration.Milliseconds(),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("failed to marshal notification", slog.Any("error", err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(tabID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("notification")},
		},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- msg:
	default:
		s.log.Warn("notification queue full, dropping", slog.String("tab_id", tabID))
	}
}

func (s *KafkaSink) run() {
	defer s.wg.Done()

	for msg := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.writer.WriteMessages(ctx, msg); err != nil {
			s.log.Warn("failed to publish notification", slog.String("tab_id", string(msg.Key)), slog.Any("error", err))
		}
		cancel()
	}
}

// Close flushes queued notifications and closes the writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.writer.Close()
}
