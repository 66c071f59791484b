package gateway

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
)

// Metrics exports request timings to InfluxDB. A nil *Metrics is valid and
// drops every point, which is how the gateway runs with metrics disabled.
type Metrics struct {
	client   influxdb2.Client
	writeAPI influxapi.WriteAPI
}

// NewMetrics connects to InfluxDB and verifies the connection health.
func NewMetrics(url, token, org, bucket string) (*Metrics, error) {
	client := influxdb2.NewClient(url, token)

	health, err := client.Health(context.Background())
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB health check failed: %v", health.Status)
	}

	return &Metrics{
		client:   client,
		writeAPI: client.WriteAPI(org, bucket),
	}, nil
}

// RecordRequest writes one request timing point. Writes are asynchronous and
// never block the request path.
func (m *Metrics) RecordRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	point := influxdb2.NewPoint(
		"http_request",
		map[string]string{
			"method": method,
			"path":   path,
			"status": fmt.Sprintf("%d", status),
		},
		map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)
	m.writeAPI.WritePoint(point)
}

// Close flushes pending points and shuts the client down.
func (m *Metrics) Close() {
	if m == nil {
		return
	}
	m.writeAPI.Flush()
	m.client.Close()
}
