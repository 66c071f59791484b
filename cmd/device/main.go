package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/service_registry"
	"github.com/geovault/geovault/internal/utils"
	"github.com/geovault/geovault/pkg/file"
	"github.com/geovault/geovault/pkg/identity"
	"github.com/geovault/geovault/pkg/mqtt"
)

func main() {
	configPath := flag.String("config", "configs/device.yaml", "path to the device agent configuration file")
	flag.Parse()

	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", "device").
		Logger()

	fileClient := file.NewFileService()

	config, err := utils.LoadDeviceConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize DeviceInfo
	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load device information")
	}

	// First run: mint a device id and persist it.
	if deviceInfo.GetDeviceID() == "" {
		deviceID := uuid.New().String()
		if err := deviceInfo.SaveDeviceID(deviceID); err != nil {
			logger.Fatal().Err(err).Msg("Failed to persist device id")
		}
		logger.Info().Str("device_id", deviceID).Msg("Generated new device id")
	}

	// Generate a unique MQTT Client ID by appending a UUID
	clientID := config.MQTT.ClientID + "-" + uuid.New().String()
	logger.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(fileClient)
	if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}

	// Create a new service registry to manage services
	registry := service_registry.NewServiceRegistry(mqttClient, fileClient, logger)
	if err := registry.RegisterDeviceServices(config, deviceInfo); err != nil {
		logger.Fatal().Err(err).Msg("Failed to register services")
	}

	if err := registry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := registry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Service shutdown reported failures")
	}
	mqttClient.Disconnect(250)
}
