package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/competition-hub-api/internal/observability"
)

const eventBufferSize = 16

// EventKind names a domain event.
type EventKind string

const (
	EventApplicationSubmitted EventKind = "application.submitted"
	EventReviewRecorded       EventKind = "review.recorded"
	EventRoundActivated       EventKind = "round.activated"
	EventApplicantsEliminated EventKind = "applicants.eliminated"
	EventApplicantsReinstated EventKind = "applicants.reinstated"
	EventCompetitionDeleted   EventKind = "competition.deleted"
)

// Event is delivered to every subscriber listed in Recipients.
type Event struct {
	Kind          EventKind `json:"kind"`
	CompetitionID uint      `json:"competition_id"`
	ApplicationID *uint     `json:"application_id,omitempty"`
	RoundID       *uint     `json:"round_id,omitempty"`
	Recipients    []string  `json:"recipients"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventPublisher emits domain events. Publishing never fails the calling operation.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// EventHook observes every locally published event.
type EventHook func(ctx context.Context, event Event)

// EventBus fans domain events out to local subscribers and, when configured, to other nodes
// through Redis pub/sub and NATS.
type EventBus struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	nodeID      string

	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	hooks       []EventHook
}

type envelope struct {
	Source string    `json:"source"`
	Event  Event     `json:"event"`
	SentAt time.Time `json:"sent_at"`
}

// NewEventBus constructs an event bus. Redis and NATS are optional.
func NewEventBus(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) *EventBus {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &EventBus{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "event_bus").Logger(),
		nodeID:      uuid.NewString(),
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

// OnPublish registers a hook run synchronously for each local publish.
func (b *EventBus) OnPublish(hook EventHook) {
	if hook == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, hook)
}

// Start begins consuming remote events until ctx is cancelled.
func (b *EventBus) Start(ctx context.Context) {
	if b.redis != nil && b.redisStream != "" {
		go b.consumeRedis(ctx)
	}
	if b.nats != nil && b.natsSubject != "" {
		go b.consumeNATS(ctx)
	}
}

func (b *EventBus) Publish(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	hooks := append([]EventHook(nil), b.hooks...)
	b.mu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, event)
	}

	b.deliver(event)
	observability.EventsPublished().WithLabelValues(string(event.Kind), "local").Inc()

	if err := b.forward(ctx, event); err != nil {
		b.logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("failed to forward event to broker")
	}
}

// Subscribe registers a buffered channel receiving events addressed to userID.
func (b *EventBus) Subscribe(userID string) (<-chan Event, func()) {
	channel := make(chan Event, eventBufferSize)

	b.mu.Lock()
	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan Event]struct{})
	}
	b.subscribers[userID][channel] = struct{}{}
	b.mu.Unlock()
	observability.EventStreamClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			if subscribers, ok := b.subscribers[userID]; ok {
				delete(subscribers, channel)
				close(channel)
				if len(subscribers) == 0 {
					delete(b.subscribers, userID)
				}
			}
			b.mu.Unlock()
			observability.EventStreamClients().Dec()
		})
	}

	return channel, cleanup
}

func (b *EventBus) deliver(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, recipient := range event.Recipients {
		for ch := range b.subscribers[recipient] {
			select {
			case ch <- event:
			default:
				b.logger.Debug().Str("user_id", recipient).Msg("dropping event for slow subscriber")
			}
		}
	}
}

func (b *EventBus) forward(ctx context.Context, event Event) error {
	if (b.redis == nil || b.redisStream == "") && (b.nats == nil || b.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(envelope{Source: b.nodeID, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	if b.redis != nil && b.redisStream != "" {
		if err := b.redis.Publish(ctx, b.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (b *EventBus) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Error().Err(err).Msg("event redis subscription closed")
			return
		}
		b.handleRemote([]byte(msg.Payload))
	}
}

func (b *EventBus) consumeNATS(ctx context.Context) {
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleRemote(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats event subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain event nats subscription")
		}
	}()
}

func (b *EventBus) handleRemote(payload []byte) {
	var message envelope
	if err := json.Unmarshal(payload, &message); err != nil {
		b.logger.Warn().Err(err).Msg("invalid event payload")
		return
	}

	if message.Source == b.nodeID {
		return
	}

	observability.EventsPublished().WithLabelValues(string(message.Event.Kind), "remote").Inc()
	b.deliver(message.Event)
}
