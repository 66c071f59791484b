package utils

import (
	"github.com/geovault/geovault/pkg/file"
)

// GatewayConfig configures the untrusted front end: HTTP server, worker
// supervision, optional MQTT ingest and optional metrics export.
type GatewayConfig struct {
	Server struct {
		Port           int      `yaml:"port"`            // HTTP listen port
		AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins; empty allows all
	} `yaml:"server"`

	Worker struct {
		Embedded          bool     `yaml:"embedded"`           // run the engine in-process instead of isolated
		Binary            string   `yaml:"binary"`             // path to the worker binary
		Args              []string `yaml:"args"`               // extra worker arguments
		WarmupDelayMS     int      `yaml:"warmup_delay_ms"`    // wait after spawn before reading the banner
		ReadTimeoutMS     int      `yaml:"read_timeout_ms"`    // per-line read timeout during an exchange
		MaxReadRetries    int      `yaml:"max_read_retries"`   // read attempts before declaring a hang
		VersionConstraint string   `yaml:"version_constraint"` // accepted worker protocol versions
		Policy            string   `yaml:"policy"`             // verification policy in embedded mode
		PoolWorkers       int      `yaml:"pool_workers"`       // decrypt fan-out size in embedded mode
	} `yaml:"worker"`

	MQTT struct {
		Enabled       bool   `yaml:"enabled"`        // enable the MQTT fingerprint ingest
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // path to CA certificate; empty disables TLS
		Topic         string `yaml:"topic"`          // fingerprint ingest topic filter
		QOS           int    `yaml:"qos"`            // MQTT QoS level
	} `yaml:"mqtt"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"` // export request timings to InfluxDB
		URL     string `yaml:"url"`     // InfluxDB base URL
		Token   string `yaml:"token"`   // InfluxDB API token
		Org     string `yaml:"org"`     // InfluxDB organization
		Bucket  string `yaml:"bucket"`  // InfluxDB bucket
	} `yaml:"metrics"`
}

// DeviceConfig configures the device-side fingerprint agent.
type DeviceConfig struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // path to CA certificate; empty disables TLS
	} `yaml:"mqtt"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // path to the device identity file
	} `yaml:"identity"`

	Report struct {
		Topic             string `yaml:"topic"`           // fingerprint report topic
		Interval          int    `yaml:"interval"`        // seconds between reports
		QOS               int    `yaml:"qos"`             // MQTT QoS level
		UserID            string `yaml:"user_id"`         // user the reports are attributed to
		SensorBased       bool   `yaml:"sensor_based"`    // GPS sensor instead of geolocation API
		MapsAPIKey        string `yaml:"maps_api_key"`    // Google Maps API key
		GPSDevicePort     string `yaml:"gps_device_port"` // serial port of the GPS sensor
		GPSDeviceBaudRate int    `yaml:"gps_baud_rate"`   // baud rate of the GPS sensor
		ModemIndex        int    `yaml:"modem_index"`     // ModemManager modem index for cell scans
	} `yaml:"report"`
}

// LoadGatewayConfig reads the gateway YAML configuration.
func LoadGatewayConfig(filename string, fileClient file.FileOperations) (*GatewayConfig, error) {
	var config GatewayConfig
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadDeviceConfig reads the device agent YAML configuration.
func LoadDeviceConfig(filename string, fileClient file.FileOperations) (*DeviceConfig, error) {
	var config DeviceConfig
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}
	return &config, nil
}
