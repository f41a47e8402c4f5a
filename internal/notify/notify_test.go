package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writerMock struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *writerMock) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *writerMock) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorder_DrainReturnsInOrder(t *testing.T) {
	r := NewRecorder(10)
	r.Notify(Notification{Message: "first", Type: Success})
	r.Notify(Notification{Message: "second", Type: Info})

	assert.Len(t, r.Peek(), 2)

	drained := r.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "first", drained[0].Message)
	assert.Equal(t, "second", drained[1].Message)
	assert.Empty(t, r.Drain())
}

func TestRecorder_KeepsMostRecent(t *testing.T) {
	r := NewRecorder(2)
	for _, m := range []string{"a", "b", "c"} {
		r.Notify(Notification{Message: m})
	}

	drained := r.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "b", drained[0].Message)
	assert.Equal(t, "c", drained[1].Message)
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	a, b := NewRecorder(0), NewRecorder(0)
	Fanout{a, b}.Notify(Notification{Message: "hello", Type: Success})

	assert.Len(t, a.Drain(), 1)
	assert.Len(t, b.Drain(), 1)
}

func TestLogSink_ErrorsLogAsWarnings(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	NewLogSink(log).Notify(Notification{Message: "Session expired", Type: Error})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "Session expired", line["msg"])
	assert.Equal(t, "error", line["type"])
}

func TestKafkaSink_PublishesKeyedByTab(t *testing.T) {
	w := &writerMock{}
	sink := newKafkaSink(w, discardLogger())

	sink.For("user-1", "tab-1").Notify(Notification{Message: "Mug added to cart", Type: Success})
	sink.For("user-1", "tab-2").Notify(Notification{Message: "Mug removed from cart", Type: Info})
	require.NoError(t, sink.Close())

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.messages, 2)
	assert.True(t, w.closed)

	assert.Equal(t, "tab-1", string(w.messages[0].Key))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &payload))
	assert.Equal(t, "user-1", payload["user_id"])
	assert.Equal(t, "tab-1", payload["tab_id"])
	assert.Equal(t, "Mug added to cart", payload["message"])
	assert.Equal(t, "success", payload["type"])
	assert.Equal(t, "notification", string(w.messages[0].Headers[0].Value))
}

func TestKafkaSink_WriteErrorsAreSwallowed(t *testing.T) {
	w := &writerMock{err: errors.New("broker down")}
	sink := newKafkaSink(w, discardLogger())

	sink.For("user-1", "tab-1").Notify(Notification{Message: "x", Type: Info})
	assert.NoError(t, sink.Close())
}

func TestKafkaSink_NotifyAfterCloseIsDropped(t *testing.T) {
	w := &writerMock{}
	sink := newKafkaSink(w, discardLogger())
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	assert.NotPanics(t, func() {
		sink.For("user-1", "tab-1").Notify(Notification{Message: "late", Type: Info})
	})
	assert.Empty(t, w.messages)
}
