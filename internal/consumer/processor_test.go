package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/activitysync/internal/logger"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"activityId":"abc"}`)
	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], uint32(42))
	copy(value[5:], payload)

	msg := kafka.Message{
		Topic:     "activity.content.generated.v1",
		Partition: 0,
		Offset:    10,
		Time:      time.Now().UTC(),
		Value:     value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventContentGenerated)},
			{Key: "session_id", Value: []byte("sess-1")},
		},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(logger.NewNop()))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, EventContentGenerated, handler.last.EventType)
	require.Equal(t, "sess-1", handler.last.SessionID)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payload := []byte(`{"activityId":"def"}`)
	value := make([]byte, 5+len(payload))
	value[0] = 0
	binary.BigEndian.PutUint32(value[1:5], uint32(99))
	copy(value[5:], payload)

	msg := kafka.Message{
		Topic:     "activity.content.generated.v1",
		Partition: 0,
		Offset:    20,
		Time:      time.Now().UTC(),
		Value:     value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventContentGenerated)},
		},
	}

	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(logger.NewNop()), WithRetry(fastRetry))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorRetriesTransientHandlerErrors(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{frame(t, 30, `{"activityId":"ghi"}`)}, after: contextCanceled}
	handler := &stubHandler{err: errors.New("medium busy"), failures: 2}

	err := NewProcessor(reader, handler, WithRetry(fastRetry)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorCommitsInvalidContentWithoutRetry(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{frame(t, 40, `{"content":{}}`)}, after: contextCanceled}
	handler := &stubHandler{err: fmt.Errorf("%w: missing activityId", ErrInvalidContent)}

	err := NewProcessor(reader, handler, WithRetry(fastRetry)).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
}

func TestWithRetryClampsAttempts(t *testing.T) {
	p := NewProcessor(&stubReader{}, &stubHandler{}, WithRetry(RetryPolicy{MaxAttempts: 0}))
	require.Equal(t, 1, p.retry.MaxAttempts)
	require.Equal(t, DefaultRetryPolicy, NewProcessor(&stubReader{}, &stubHandler{}).retry)
}

var fastRetry = RetryPolicy{MaxAttempts: 3, MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

func frame(t *testing.T, offset int64, payload string) kafka.Message {
	t.Helper()
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], uint32(7))
	copy(value[5:], payload)
	return kafka.Message{
		Topic:  "activity.content.generated.v1",
		Offset: offset,
		Time:   time.Now().UTC(),
		Value:  value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventContentGenerated)},
		},
	}
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{
			{Topic: "activity.content.generated.v1", Value: []byte{0, 1}},
			{Topic: "activity.content.generated.v1", Value: []byte{0, 0, 0, 0, 1, '{', '}'}},
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 0, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

// stubHandler returns err on every call, or only on the first failures calls
// when failures is set.
type stubHandler struct {
	calls    int
	err      error
	failures int
	last     Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	if h.failures > 0 && h.calls > h.failures {
		return nil
	}
	return h.err
}
