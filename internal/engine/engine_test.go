package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/geovault/geovault/internal/models"
	"github.com/geovault/geovault/internal/utils"
	"github.com/geovault/geovault/pkg/encryption"
)

func newTestEngine(t *testing.T, policy VerifyPolicy) *Engine {
	t.Helper()
	crypto, err := encryption.NewManager()
	require.NoError(t, err)
	pool := utils.NewWorkerPool(2)
	t.Cleanup(pool.Shutdown)
	return New(crypto, policy, pool, zerolog.Nop())
}

// validLocation builds a fingerprint that passes verification in a fresh cell.
func validLocation(userID string, lat, lon float64, ts time.Time) *models.Location {
	accel := [3]float64{0.1, 0.2, 9.8}
	gyro := [3]float64{0.01, 0.02, 0.03}
	return &models.Location{
		Lat:       lat,
		Lon:       lon,
		Timestamp: ts,
		UserID:    userID,
		DeviceID:  "device-1",
		Sensors: models.SensorData{
			WifiNetworks: []models.WifiNetwork{
				{SSID: "home", BSSID: "aa:bb:cc:dd:ee:01", SignalStrength: -40, Frequency: 2412},
			},
			CellTowers: []models.CellTower{
				{CellID: "310-410-1001", SignalStrength: -85, MCC: 310, MNC: 410, LAC: 7},
			},
			Accelerometer: &accel,
			Gyroscope:     &gyro,
		},
	}
}
