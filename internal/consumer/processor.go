// Package consumer ingests generation pipeline output from Kafka.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"example.com/activitysync/internal/logger"
)

const (
	headerEventType = "event_type"
	headerSessionID = "session_id"

	// frameHeaderLen is the magic byte plus the big-endian schema id.
	frameHeaderLen = 5
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded pipeline frame.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	EventType string
	SessionID string
	SchemaID  int
	Payload   json.RawMessage
}

// RetryPolicy bounds how often a failing handler is re-run for one message
// before the message is left uncommitted for redelivery.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy retries storage hiccups briefly without stalling the partition.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, MinBackoff: 100 * time.Millisecond, MaxBackoff: 2 * time.Second}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(l *logger.Logger) Option {
	return func(p *Processor) {
		p.log = logger.OrNop(l)
	}
}

// WithRetry replaces DefaultRetryPolicy. MaxAttempts below one means a single attempt.
func WithRetry(policy RetryPolicy) Option {
	return func(p *Processor) {
		if policy.MaxAttempts < 1 {
			policy.MaxAttempts = 1
		}
		p.retry = policy
	}
}

// WithPermanent sets the test for handler errors that no retry or redelivery
// can fix. Such messages are committed and counted as rejected.
func WithPermanent(fn func(error) bool) Option {
	return func(p *Processor) {
		if fn != nil {
			p.permanent = fn
		}
	}
}

// Processor pulls pipeline frames from Kafka, decodes them and hands them to a
// Handler, committing once a message is stored or known to be unstorable.
type Processor struct {
	reader    Reader
	handler   Handler
	log       *logger.Logger
	retry     RetryPolicy
	permanent func(error) bool
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:    reader,
		handler:   handler,
		log:       logger.NewNop(),
		retry:     DefaultRetryPolicy,
		permanent: func(err error) bool { return errors.Is(err, ErrInvalidContent) },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.log.Warn("fetch failed", "error", err)
			continue
		}

		if p.process(ctx, msg) {
			p.commit(ctx, msg)
		}
	}
}

// process reports whether msg is done with and may be committed.
func (p *Processor) process(ctx context.Context, msg kafka.Message) bool {
	event, err := decodeMessage(msg)
	if err != nil {
		p.log.Warn("decode failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		recordDecodeError(msg.Topic)
		return true
	}

	err = p.handle(ctx, event)
	switch {
	case err == nil:
		recordProcessed(event)
		return true
	case p.permanent(err):
		p.log.Warn("message rejected", "event_type", event.EventType, "session_id", event.SessionID, "offset", event.Offset, "error", err)
		recordRejected(event)
		return true
	default:
		p.log.Error("handler failed", "event_type", event.EventType, "session_id", event.SessionID, "attempts", p.retry.MaxAttempts, "error", err)
		recordHandlerError(event)
		return false
	}
}

func (p *Processor) handle(ctx context.Context, event Message) error {
	policy := backoff.NewExponentialBackOff()
	if p.retry.MinBackoff > 0 {
		policy.InitialInterval = p.retry.MinBackoff
	}
	if p.retry.MaxBackoff > 0 {
		policy.MaxInterval = p.retry.MaxBackoff
	}
	policy.MaxElapsedTime = 0
	retries := uint64(max(p.retry.MaxAttempts-1, 0))

	return backoff.RetryNotify(func() error {
		start := time.Now()
		err := p.handler.Handle(ctx, event)
		observeHandle(event.Topic, time.Since(start))
		if err != nil && p.permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), func(err error, wait time.Duration) {
		p.log.Debug("retrying handler", "event_type", event.EventType, "offset", event.Offset, "wait", wait.String(), "error", err)
		recordRetry(event)
	})
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.log.Error("commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < frameHeaderLen {
		return Message{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}

	eventType, ok := headerValue(msg, headerEventType)
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	sessionID, _ := headerValue(msg, headerSessionID)

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		EventType: string(eventType),
		SessionID: string(sessionID),
		SchemaID:  int(binary.BigEndian.Uint32(msg.Value[1:frameHeaderLen])),
		Payload:   json.RawMessage(append([]byte(nil), msg.Value[frameHeaderLen:]...)),
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
