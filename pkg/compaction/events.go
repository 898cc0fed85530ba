package compaction

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EventsTopic is the topic compaction events are published on.
const EventsTopic = "compaction"

// Event describes the end of one compaction attempt or commit.
type Event struct {
	Kind            string `json:"kind"`
	SessionID       string `json:"session_id"`
	BoundaryRoundID string `json:"boundary_round_id,omitempty"`
	Outcome         string `json:"outcome"`
	SummaryLength   int    `json:"summary_len"`
	Empty           bool   `json:"empty,omitempty"`
	InjectTools     bool   `json:"inject_tools,omitempty"`
	Model           string `json:"model,omitempty"`
	Error           string `json:"error,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
}

const (
	EventKindAttempt = "attempt"
	EventKindCommit  = "commit"
)

// EventPublisher receives compaction events. Failures never fail an attempt.
type EventPublisher interface {
	PublishCompactionEvent(ctx context.Context, ev Event) error
}

// WatermillPublisher publishes events as JSON messages.
type WatermillPublisher struct {
	pub   message.Publisher
	topic string
}

var _ EventPublisher = (*WatermillPublisher)(nil)

func NewWatermillPublisher(pub message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = EventsTopic
	}
	return &WatermillPublisher{pub: pub, topic: topic}
}

func (p *WatermillPublisher) PublishCompactionEvent(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal compaction event")
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("session_id", ev.SessionID)
	msg.Metadata.Set("kind", ev.Kind)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return errors.Wrapf(err, "publish compaction event to %s", p.topic)
	}
	return nil
}

// DecodeEvent parses a message produced by WatermillPublisher.
func DecodeEvent(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode compaction event")
	}
	return ev, nil
}
