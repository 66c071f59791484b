package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/models"
	"github.com/geovault/geovault/pkg/identity"
	"github.com/geovault/geovault/pkg/location"
	"github.com/geovault/geovault/pkg/mqtt"
)

// ReportService periodically captures a location fingerprint from the
// configured provider and publishes it to the MQTT broker for the gateway
// to register.
type ReportService struct {
	// Configuration fields
	topic    string
	interval time.Duration
	qos      int
	userID   string

	// Dependencies
	deviceInfo identity.DeviceInfoInterface
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger
	provider   location.Provider

	// Internal state management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewReportService creates a new ReportService instance with the provided configuration.
func NewReportService(topic string, interval time.Duration, qos int, userID string,
	deviceInfo identity.DeviceInfoInterface, mqttClient mqtt.MQTTClient,
	logger zerolog.Logger, provider location.Provider) *ReportService {
	return &ReportService{
		topic:      topic,
		interval:   interval,
		qos:        qos,
		userID:     userID,
		deviceInfo: deviceInfo,
		mqttClient: mqttClient,
		logger:     logger,
		provider:   provider,
		running:    false,
	}
}

// Start initiates the ReportService, periodically publishing fingerprints to
// the MQTT broker.
func (r *ReportService) Start() error {
	if r.running {
		r.logger.Warn().Msg("ReportService is already running")
		return errors.New("report service is already running")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.publishFingerprint(); err != nil {
					r.logger.Error().
						Err(err).
						Msg("Failed to publish fingerprint")
				}
			case <-r.ctx.Done():
				r.logger.Info().Msg("ReportService is stopping")
				r.running = false
				return
			}
		}
	}()

	r.logger.Info().
		Str("topic", r.topic).
		Dur("interval_ms", r.interval).
		Int("qos", r.qos).
		Msg("ReportService started")
	return nil
}

// Stop gracefully stops the ReportService, ensuring all goroutines are terminated.
func (r *ReportService) Stop() error {
	if !r.running {
		r.logger.Warn().Msg("ReportService is not running")
		return errors.New("report service is not running")
	}

	r.cancel()
	r.wg.Wait()

	r.running = false
	r.logger.Info().Msg("ReportService stopped")
	return nil
}

// publishFingerprint captures the current fingerprint and publishes it as a
// location report.
func (r *ReportService) publishFingerprint() error {
	fp, err := r.provider.GetFingerprint(r.ctx)
	if err != nil {
		r.logger.Error().
			Err(err).
			Msg("Failed to get fingerprint from provider")
		return err
	}

	report := models.Location{
		Lat:       fp.Fix.Latitude,
		Lon:       fp.Fix.Longitude,
		Timestamp: time.Now().UTC(),
		UserID:    r.userID,
		DeviceID:  r.deviceInfo.GetDeviceID(),
		Sensors: models.SensorData{
			WifiNetworks:  fp.WifiNetworks,
			CellTowers:    fp.CellTowers,
			Accelerometer: fp.Accelerometer,
			Gyroscope:     fp.Gyroscope,
		},
	}

	payload, err := json.Marshal(report)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to serialize location report")
		return err
	}

	token := r.mqttClient.Publish(r.topic, byte(r.qos), false, payload)
	if token.Wait() && token.Error() != nil {
		r.logger.Error().
			Err(token.Error()).
			Str("topic", r.topic).
			Msg("Failed to publish location report to MQTT")
		return token.Error()
	}

	r.logger.Info().
		Float64("lat", report.Lat).
		Float64("lon", report.Lon).
		Int("wifi_networks", len(report.Sensors.WifiNetworks)).
		Int("cell_towers", len(report.Sensors.CellTowers)).
		Str("topic", r.topic).
		Msg("Location report published successfully")
	return nil
}
