package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovault/geovault/internal/models"
)

// immediateToken satisfies mqtt.Token and always succeeds instantly.
type immediateToken struct{}

func (immediateToken) Wait() bool                     { return true }
func (immediateToken) WaitTimeout(time.Duration) bool { return true }
func (immediateToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (immediateToken) Error() error { return nil }

type published struct {
	topic   string
	payload []byte
}

// fakeBroker records subscriptions and publishes without a real broker.
type fakeBroker struct {
	mu        sync.Mutex
	handler   pahomqtt.MessageHandler
	topics    []string
	published chan published
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: make(chan published, 8)}
}

func (b *fakeBroker) Connect() pahomqtt.Token { return immediateToken{} }

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) pahomqtt.Token {
	b.published <- published{topic: topic, payload: payload.([]byte)}
	return immediateToken{}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.handler = callback
	return immediateToken{}
}

func (b *fakeBroker) Unsubscribe(topics ...string) pahomqtt.Token { return immediateToken{} }

func (b *fakeBroker) Disconnect(uint) {}

// fakeMessage is a minimal pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// recordingChannel captures exchanged commands and answers with a canned
// registration result.
type recordingChannel struct {
	mu   sync.Mutex
	cmds []models.Command
}

func (c *recordingChannel) Exchange(_ context.Context, cmd models.Command) (models.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
	return models.Response{Tag: models.RespLocationRegistered, Body: models.RegisteredPayload{
		EncLocation: "c2VhbGVk",
		Success:     true,
		Message:     "Location registered successfully.",
	}}, nil
}

func TestIngestServiceRelaysReports(t *testing.T) {
	broker := newFakeBroker()
	ch := &recordingChannel{}
	svc := NewIngestService("geovault/fingerprints", 1, broker, ch, zerolog.Nop())

	require.NoError(t, svc.Start())
	require.Equal(t, []string{"geovault/fingerprints"}, broker.topics)

	report := models.Location{
		Lat: 37.7749, Lon: -122.4194,
		Timestamp: time.Now().UTC(),
		UserID:    "user-1",
		DeviceID:  "device-42",
	}
	payload, err := json.Marshal(report)
	require.NoError(t, err)
	broker.handler(nil, &fakeMessage{topic: "geovault/fingerprints", payload: payload})

	// The ack is the last step of the pipeline, so waiting on it proves the
	// whole relay ran.
	select {
	case ack := <-broker.published:
		assert.Equal(t, "geovault/fingerprints/ack/device-42", ack.topic)
		var result models.RegisteredPayload
		require.NoError(t, json.Unmarshal(ack.payload, &result))
		assert.True(t, result.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("no acknowledgement published")
	}

	require.Len(t, ch.cmds, 1)
	assert.Equal(t, models.CmdRegisterLocation, ch.cmds[0].Tag)
	var relayed models.Location
	require.NoError(t, ch.cmds[0].Bind(&relayed))
	assert.Equal(t, "device-42", relayed.DeviceID)

	require.NoError(t, svc.Stop())
}

func TestIngestServiceDropsMalformedReports(t *testing.T) {
	broker := newFakeBroker()
	ch := &recordingChannel{}
	svc := NewIngestService("geovault/fingerprints", 1, broker, ch, zerolog.Nop())
	require.NoError(t, svc.Start())

	broker.handler(nil, &fakeMessage{topic: "geovault/fingerprints", payload: []byte("{broken")})

	select {
	case <-broker.published:
		t.Fatal("malformed report must not produce an ack")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Empty(t, ch.cmds)

	require.NoError(t, svc.Stop())
}

func TestIngestServiceLifecycle(t *testing.T) {
	broker := newFakeBroker()
	svc := NewIngestService("geovault/fingerprints", 1, broker, &recordingChannel{}, zerolog.Nop())

	assert.Error(t, svc.Stop(), "stopping a stopped service fails")
	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start(), "double start fails")
	require.NoError(t, svc.Stop())
}
