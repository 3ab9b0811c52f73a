package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"example.com/activitysync/internal/domain"
	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/persistence"
)

// EventContentGenerated is the event_type header carried by pipeline output.
const EventContentGenerated = "activity.content.generated"

// ErrInvalidContent marks payloads that cannot be ingested.
var ErrInvalidContent = errors.New("invalid generated content")

// GeneratedContent is the JSON payload of a pipeline message.
type GeneratedContent struct {
	ActivityID      string         `json:"activityId"`
	ActivityType    string         `json:"activityType"`
	Content         map[string]any `json:"content"`
	Record          map[string]any `json:"record,omitempty"`
	PipelineVersion string         `json:"pipelineVersion,omitempty"`
	Model           string         `json:"model,omitempty"`
	DurationMS      int64          `json:"durationMs,omitempty"`
}

// Store is the slice of the orchestrator the handler writes through.
type Store interface {
	SaveConstructed(ctx context.Context, id, activityType string, payload map[string]any, opts persistence.SaveOptions) bool
	Save(ctx context.Context, record domain.ActivityRecord, origin domain.Origin, opts persistence.SaveOptions) bool
	Update(ctx context.Context, id string, partial map[string]any) bool
	Exists(ctx context.Context, id string) bool
}

// Synchronizer normalizes raw records before they are saved.
type Synchronizer interface {
	Synchronize(raw any) domain.ActivityRecord
}

// ContentHandler stores generated content and the activity record it belongs to.
type ContentHandler struct {
	store Store
	sync  Synchronizer
	log   *logger.Logger
}

// NewContentHandler constructs a handler writing through store.
func NewContentHandler(store Store, sync Synchronizer, log *logger.Logger) *ContentHandler {
	return &ContentHandler{store: store, sync: sync, log: logger.OrNop(log)}
}

// Handle ignores unrelated event types. Storage failures are returned so the
// message stays uncommitted and is redelivered.
func (h *ContentHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != EventContentGenerated {
		h.log.Debug("skipping event", "event_type", msg.EventType)
		return nil
	}

	var content GeneratedContent
	if err := json.Unmarshal(msg.Payload, &content); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	if content.ActivityID == "" {
		return fmt.Errorf("%w: missing activityId", ErrInvalidContent)
	}
	if content.Content == nil {
		content.Content = map[string]any{}
	}

	opts := persistence.SaveOptions{
		PipelineVersion: content.PipelineVersion,
		SessionID:       msg.SessionID,
		Model:           content.Model,
		DurationMS:      content.DurationMS,
	}
	if !h.store.SaveConstructed(ctx, content.ActivityID, content.ActivityType, content.Content, opts) {
		return fmt.Errorf("save constructed content for %s", content.ActivityID)
	}

	if h.store.Exists(ctx, content.ActivityID) {
		if len(content.Record) == 0 {
			return nil
		}
		if !h.store.Update(ctx, content.ActivityID, content.Record) {
			return fmt.Errorf("update activity %s", content.ActivityID)
		}
		return nil
	}

	raw := domain.CloneMap(content.Record)
	if raw == nil {
		raw = map[string]any{}
	}
	raw["id"] = content.ActivityID
	if _, ok := raw["type"]; !ok && content.ActivityType != "" {
		raw["type"] = content.ActivityType
	}
	record := h.sync.Synchronize(raw)
	if !h.store.Save(ctx, record, domain.OriginGenerated, opts) {
		return fmt.Errorf("save activity %s", content.ActivityID)
	}
	h.log.Info("generated content ingested", "activity_id", content.ActivityID, "type", content.ActivityType, "session_id", msg.SessionID)
	return nil
}
