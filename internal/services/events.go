package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quillpress/apiserver/internal/mq"
)

// Domain event types.
const (
	EventUserRegistered  = "user.registered"
	EventUserUpdated     = "user.updated"
	EventUserDeleted     = "user.deleted"
	EventPostCreated     = "post.created"
	EventPostUpdated     = "post.updated"
	EventPostDeleted     = "post.deleted"
	EventPostLiked       = "post.liked"
	EventPostUnliked     = "post.unliked"
	EventCategoryCreated = "category.created"
	EventCategoryUpdated = "category.updated"
	EventCategoryDeleted = "category.deleted"
)

// Event channels, one per aggregate.
const (
	ChannelUsers      = "users"
	ChannelPosts      = "posts"
	ChannelCategories = "categories"
)

// Channels lists every channel events are published on.
var Channels = []string{ChannelUsers, ChannelPosts, ChannelCategories}

// EventPublisher emits domain events. Publishing never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any)
}

// Event is the envelope written to the message queue.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Events publishes domain events to a message queue. A nil *Events or one
// without a queue drops every event.
type Events struct {
	queue *mq.MQ
	now   func() time.Time
}

func NewEvents(queue *mq.MQ) *Events {
	return &Events{queue: queue, now: time.Now}
}

func (e *Events) Publish(ctx context.Context, eventType string, data any) {
	if e == nil || e.queue == nil {
		return
	}
	logger := zerolog.Ctx(ctx)

	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error().Err(err).Str("event", eventType).Msg("encode event data")
		return
	}
	id := uuid.NewString()
	body, err := json.Marshal(Event{
		ID:         id,
		Type:       eventType,
		OccurredAt: e.now().UTC(),
		Data:       payload,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", eventType).Msg("encode event")
		return
	}

	attrs := map[string]string{
		"type":             eventType,
		mq.AttrContentType: "application/json",
		mq.AttrMessageID:   id,
	}
	if _, err := e.queue.Publish(ctx, EventChannel(eventType), body, attrs); err != nil {
		logger.Warn().Err(err).Str("event", eventType).Msg("publish event")
	}
}

// EventChannel maps an event type to the channel of its aggregate.
func EventChannel(eventType string) string {
	aggregate, _, _ := strings.Cut(eventType, ".")
	switch aggregate {
	case "user":
		return ChannelUsers
	case "post":
		return ChannelPosts
	case "category":
		return ChannelCategories
	default:
		return aggregate
	}
}

type noopEvents struct{}

func (noopEvents) Publish(context.Context, string, any) {}

func eventsOrNoop(events EventPublisher) EventPublisher {
	if events == nil {
		return noopEvents{}
	}
	return events
}
