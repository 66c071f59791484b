package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/channel"
	"github.com/geovault/geovault/internal/models"
	"github.com/geovault/geovault/pkg/mqtt"
)

// IngestService subscribes to the fingerprint topic and forwards each report
// to the trusted worker as a RegisterLocation command. The registration result
// is published back on a per-device acknowledgement topic.
type IngestService struct {
	// Configuration fields
	topic string
	qos   int

	// Dependencies
	mqttClient mqtt.MQTTClient
	channel    channel.Channel
	logger     zerolog.Logger

	// Internal state management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewIngestService creates a new IngestService instance.
func NewIngestService(topic string, qos int, mqttClient mqtt.MQTTClient,
	ch channel.Channel, logger zerolog.Logger) *IngestService {
	return &IngestService{
		topic:      topic,
		qos:        qos,
		mqttClient: mqttClient,
		channel:    ch,
		logger:     logger,
		running:    false,
	}
}

// Start subscribes to the fingerprint topic.
func (i *IngestService) Start() error {
	if i.running {
		i.logger.Warn().Msg("IngestService is already running")
		return errors.New("ingest service is already running")
	}

	i.ctx, i.cancel = context.WithCancel(context.Background())

	token := i.mqttClient.Subscribe(i.topic, byte(i.qos), i.handleReport)
	if token.Wait() && token.Error() != nil {
		i.logger.Error().
			Err(token.Error()).
			Str("topic", i.topic).
			Msg("Failed to subscribe to fingerprint topic")
		return token.Error()
	}

	i.running = true
	i.logger.Info().
		Str("topic", i.topic).
		Int("qos", i.qos).
		Msg("IngestService started")
	return nil
}

// Stop unsubscribes from the fingerprint topic and waits for in-flight
// reports to drain.
func (i *IngestService) Stop() error {
	if !i.running {
		i.logger.Warn().Msg("IngestService is not running")
		return errors.New("ingest service is not running")
	}

	i.cancel()

	token := i.mqttClient.Unsubscribe(i.topic)
	if token.Wait() && token.Error() != nil {
		i.logger.Error().Err(token.Error()).Msg("Failed to unsubscribe from fingerprint topic")
		return token.Error()
	}

	i.wg.Wait()
	i.running = false
	i.logger.Info().Msg("IngestService stopped")
	return nil
}

// handleReport processes one fingerprint message off the broker.
func (i *IngestService) handleReport(_ pahomqtt.Client, msg pahomqtt.Message) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()

		var report models.Location
		if err := json.Unmarshal(msg.Payload(), &report); err != nil {
			i.logger.Error().
				Err(err).
				Str("topic", msg.Topic()).
				Msg("Discarding malformed fingerprint report")
			return
		}

		cmd, err := models.NewCommand(models.CmdRegisterLocation, report)
		if err != nil {
			i.logger.Error().Err(err).Msg("Failed to encode RegisterLocation command")
			return
		}

		ctx, cancel := context.WithTimeout(i.ctx, 30*time.Second)
		defer cancel()

		resp, err := i.channel.Exchange(ctx, cmd)
		if err != nil {
			i.logger.Error().
				Err(err).
				Str("device_id", report.DeviceID).
				Msg("Worker exchange failed for fingerprint report")
			return
		}

		var result models.RegisteredPayload
		if err := resp.Decode(&result); err != nil {
			i.logger.Error().Err(err).Msg("Failed to decode registration result")
			return
		}

		i.logger.Info().
			Str("device_id", report.DeviceID).
			Bool("accepted", result.Success).
			Str("reason", result.Message).
			Msg("Fingerprint report processed")

		i.publishAck(report.DeviceID, result)
	}()
}

// publishAck reports the registration outcome back to the device.
func (i *IngestService) publishAck(deviceID string, result models.RegisteredPayload) {
	if deviceID == "" {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		i.logger.Error().Err(err).Msg("Failed to serialize registration ack")
		return
	}

	ackTopic := i.topic + "/ack/" + deviceID
	token := i.mqttClient.Publish(ackTopic, byte(i.qos), false, payload)
	if token.Wait() && token.Error() != nil {
		i.logger.Error().
			Err(token.Error()).
			Str("topic", ackTopic).
			Msg("Failed to publish registration ack")
	}
}
