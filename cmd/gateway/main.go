package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/channel"
	"github.com/geovault/geovault/internal/engine"
	"github.com/geovault/geovault/internal/gateway"
	"github.com/geovault/geovault/internal/service_registry"
	"github.com/geovault/geovault/internal/supervisor"
	"github.com/geovault/geovault/internal/utils"
	"github.com/geovault/geovault/pkg/encryption"
	"github.com/geovault/geovault/pkg/file"
	"github.com/geovault/geovault/pkg/mqtt"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to the gateway configuration file")
	flag.Parse()

	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", "gateway").
		Logger()

	// Environment overrides (secrets) come from .env when present.
	if err := godotenv.Load(); err == nil {
		logger.Debug().Msg("Loaded environment from .env")
	}

	fileClient := file.NewFileService()

	config, err := utils.LoadGatewayConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if token := os.Getenv("GEOVAULT_INFLUX_TOKEN"); token != "" {
		config.Metrics.Token = token
	}

	// Build the command channel: supervised worker process, or the engine
	// directly in-process.
	var ch channel.Channel
	var reporter gateway.StateReporter

	if config.Worker.Embedded {
		ch, err = buildEmbeddedChannel(config, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to build embedded engine")
		}
		logger.Warn().Msg("Running with an embedded engine, no process isolation")
	} else {
		sup, err := supervisor.New(supervisor.Config{
			Binary:            config.Worker.Binary,
			Args:              config.Worker.Args,
			WarmupDelay:       time.Duration(config.Worker.WarmupDelayMS) * time.Millisecond,
			ReadTimeout:       time.Duration(config.Worker.ReadTimeoutMS) * time.Millisecond,
			MaxReadRetries:    config.Worker.MaxReadRetries,
			VersionConstraint: config.Worker.VersionConstraint,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create worker supervisor")
		}
		if err := sup.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start worker process")
		}
		defer sup.Stop()
		ch = sup
		reporter = sup
	}

	// Optional metrics export
	var metrics *gateway.Metrics
	if config.Metrics.Enabled {
		metrics, err = gateway.NewMetrics(config.Metrics.URL, config.Metrics.Token, config.Metrics.Org, config.Metrics.Bucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize metrics export")
		}
		defer metrics.Close()
	}

	// Optional MQTT fingerprint ingest
	if config.MQTT.Enabled {
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		logger.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		mqttClient := mqtt.NewMqttService(fileClient)
		if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		defer mqttClient.Disconnect(250)

		registry := service_registry.NewServiceRegistry(mqttClient, fileClient, logger)
		if err := registry.RegisterGatewayServices(config, ch); err != nil {
			logger.Fatal().Err(err).Msg("Failed to register gateway services")
		}
		if err := registry.StartServices(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start gateway services")
		}
		defer registry.StopServices()
	}

	handler := gateway.NewHandler(ch, logger)
	router := gateway.NewRouter(handler, reporter, logger, metrics, config.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", config.Server.Port).Msg("Gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

// buildEmbeddedChannel constructs the trusted engine inside the gateway
// process. Useful for development and for deployments without isolation.
func buildEmbeddedChannel(config *utils.GatewayConfig, logger zerolog.Logger) (channel.Channel, error) {
	policy, err := engine.ParsePolicy(config.Worker.Policy)
	if err != nil {
		return nil, err
	}

	crypto, err := encryption.NewManager()
	if err != nil {
		return nil, err
	}

	poolWorkers := config.Worker.PoolWorkers
	if poolWorkers <= 0 {
		poolWorkers = 4
	}
	pool := utils.NewWorkerPool(poolWorkers)

	eng := engine.New(crypto, policy, pool, logger)
	return channel.NewInProcess(engine.NewDispatcher(eng, logger)), nil
}
