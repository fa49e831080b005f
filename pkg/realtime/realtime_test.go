package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToTopicSubscribers(t *testing.T) {
	hub := NewHub(4)
	events, unsubscribe := hub.Subscribe(UnitTopic("u1"))
	defer unsubscribe()
	other, unsubscribeOther := hub.Subscribe(UnitTopic("u2"))
	defer unsubscribeOther()

	require.NoError(t, hub.Publish(context.Background(), UnitTopic("u1"), Event{Type: EventAnnouncementReplay}))

	select {
	case evt := <-events:
		assert.Equal(t, EventAnnouncementReplay, evt.Type)
		assert.Equal(t, "units/u1", evt.Topic)
		assert.False(t, evt.OccurredAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Len(t, other, 0)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(1)
	_, unsubscribe := hub.Subscribe("t")
	defer unsubscribe()

	require.NoError(t, hub.Publish(context.Background(), "t", Event{Type: "a"}))
	require.NoError(t, hub.Publish(context.Background(), "t", Event{Type: "b"}))
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(1)
	events, unsubscribe := hub.Subscribe("t")
	unsubscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers("t"))
}

type tokenStub struct {
	err  error
	done chan struct{}
}

func newTokenStub(err error) *tokenStub {
	done := make(chan struct{})
	close(done)
	return &tokenStub{err: err, done: done}
}

func (t *tokenStub) Wait() bool                     { return true }
func (t *tokenStub) WaitTimeout(time.Duration) bool { return true }
func (t *tokenStub) Done() <-chan struct{}          { return t.done }
func (t *tokenStub) Error() error                   { return t.err }

type mqttClientStub struct {
	mqtt.Client
	topic   string
	qos     byte
	payload []byte
	err     error
}

func (c *mqttClientStub) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.qos = qos
	c.payload = payload.([]byte)
	return newTokenStub(c.err)
}

func TestMQTTPublisherPrefixesTopicAndEncodesEvent(t *testing.T) {
	client := &mqttClientStub{}
	pub := NewMQTTPublisherWithClient(client, "callpanel/", 1, nil)

	err := pub.Publish(context.Background(), UnitTopic("u1"), Event{Type: EventAnnouncementPlay, Payload: map[string]string{"id": "a1"}})
	require.NoError(t, err)
	assert.Equal(t, "callpanel/units/u1", client.topic)
	assert.Equal(t, byte(1), client.qos)

	var decoded Event
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	assert.Equal(t, EventAnnouncementPlay, decoded.Type)
	assert.Equal(t, "units/u1", decoded.Topic)
}

func TestMQTTPublisherReturnsBrokerError(t *testing.T) {
	client := &mqttClientStub{err: errors.New("not connected")}
	pub := NewMQTTPublisherWithClient(client, "", 1, nil)

	err := pub.Publish(context.Background(), "t", Event{Type: "x"})
	assert.Error(t, err)
}

type publisherStub struct {
	err    error
	events []Event
}

func (p *publisherStub) Publish(_ context.Context, _ string, event Event) error {
	p.events = append(p.events, event)
	return p.err
}

func TestFanoutPublishesToAllAndReturnsFirstError(t *testing.T) {
	failing := &publisherStub{err: errors.New("broker down")}
	ok := &publisherStub{}

	err := Fanout{failing, nil, ok}.Publish(context.Background(), "t", Event{Type: "x"})
	assert.EqualError(t, err, "broker down")
	assert.Len(t, ok.events, 1)
}
