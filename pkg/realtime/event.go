package realtime

import (
	"context"
	"time"
)

// Event types pushed to displays.
const (
	EventAnnouncementPlay   = "announcement.play"
	EventAnnouncementReplay = "announcement.replay"
	EventHourFragment       = "hour.fragment"
	EventPhrasesChanged     = "phrases.changed"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Type       string      `json:"type"`
	Topic      string      `json:"topic"`
	Payload    interface{} `json:"payload,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Publisher delivers events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// UnitTopic is the topic shared by every display of a unit.
func UnitTopic(unitID string) string {
	return "units/" + unitID
}

// Fanout publishes to every wrapped publisher and returns the first error.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, topic string, event Event) error {
	var firstErr error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
