package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic is the single watermill topic all lifecycle events go to.
const Topic = "tournament.events"

const (
	MetadataType         = "event_type"
	MetadataTournamentID = "tournament_id"
	MetadataGroupID      = "group_id"
)

type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
}

type watermillPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

// NewWatermillPublisher marshals events to JSON messages on topic.
func NewWatermillPublisher(publisher message.Publisher, topic string, logger *slog.Logger) Publisher {
	if topic == "" {
		topic = Topic
	}
	return &watermillPublisher{publisher: publisher, topic: topic, logger: logger}
}

func (p *watermillPublisher) Publish(ctx context.Context, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	msgs := make([]*message.Message, 0, len(evts))
	for _, evt := range evts {
		msg, err := ToMessage(evt)
		if err != nil {
			return err
		}
		msg.SetContext(ctx)
		msgs = append(msgs, msg)
	}
	if err := p.publisher.Publish(p.topic, msgs...); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish events",
			slog.String("topic", p.topic),
			slog.Int("count", len(msgs)),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish %d events to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

func ToMessage(evt Event) (*message.Message, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", evt.Type(), err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	meta := evt.Meta()
	msg.Metadata.Set(MetadataType, string(evt.Type()))
	msg.Metadata.Set(MetadataTournamentID, meta.TournamentID)
	msg.Metadata.Set(MetadataGroupID, meta.GroupID)
	return msg, nil
}

// Recorder keeps published events in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, evts ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evts...)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfType(typ Type) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.Type() == typ {
			out = append(out, evt)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
