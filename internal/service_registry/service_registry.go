package service_registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/channel"
	"github.com/geovault/geovault/internal/registry"
	"github.com/geovault/geovault/internal/services"
	"github.com/geovault/geovault/internal/utils"
	"github.com/geovault/geovault/pkg/file"
	"github.com/geovault/geovault/pkg/identity"
	"github.com/geovault/geovault/pkg/location"
	"github.com/geovault/geovault/pkg/mqtt"
)

// ServiceRegistry manages the lifecycle of the long-running services in a
// process.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	fileClient  file.FileOperations
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
		fileClient: fileClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterDeviceServices initializes and registers the device agent services.
func (sr *ServiceRegistry) RegisterDeviceServices(config *utils.DeviceConfig, deviceInfo identity.DeviceInfoInterface) error {
	var provider location.Provider
	var err error
	if config.Report.SensorBased {
		provider = location.NewDeviceSensorProvider(
			config.Report.GPSDevicePort,
			config.Report.GPSDeviceBaudRate,
			config.Report.ModemIndex,
		)
	} else {
		provider, err = location.NewGoogleGeolocationProvider(config.Report.MapsAPIKey, config.Report.ModemIndex)
		if err != nil {
			return fmt.Errorf("failed to create geolocation provider: %w", err)
		}
	}

	sr.RegisterService("report", services.NewReportService(
		config.Report.Topic,
		time.Duration(config.Report.Interval)*time.Second,
		config.Report.QOS,
		config.Report.UserID,
		deviceInfo,
		sr.mqttClient,
		sr.Logger,
		provider,
	))

	return nil
}

// RegisterGatewayServices initializes and registers the gateway-side services.
func (sr *ServiceRegistry) RegisterGatewayServices(config *utils.GatewayConfig, ch channel.Channel) error {
	if !config.MQTT.Enabled {
		sr.Logger.Debug().Msg("MQTT ingest is disabled, skipping")
		return nil
	}

	sr.RegisterService("ingest", services.NewIngestService(
		config.MQTT.Topic,
		config.MQTT.QOS,
		sr.mqttClient,
		ch,
		sr.Logger,
	))

	return nil
}
