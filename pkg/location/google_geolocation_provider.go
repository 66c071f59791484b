package location

import (
	"context"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"github.com/geovault/geovault/internal/models"
)

// GoogleGeolocationProvider uses the Google Maps API to resolve a position
// from the scanned radio environment, so the fingerprint stations and the fix
// come from the same scan.
type GoogleGeolocationProvider struct {
	client     *maps.Client // Maps API client for making geolocation requests
	modemIndex int          // ModemManager modem index used for cell scans
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client:     c,
		modemIndex: modemIndex,
	}, nil
}

// GetFingerprint scans nearby stations, geolocates against them and returns
// both the resolved fix and the stations it was resolved from.
func (g *GoogleGeolocationProvider) GetFingerprint(ctx context.Context) (Fingerprint, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	wifi, err := scanWifiNetworks(ctx)
	if err != nil {
		return Fingerprint{}, err
	}

	cells, err := scanCellTowers(ctx, g.modemIndex)
	if err != nil {
		// Devices without a modem still geolocate off Wi-Fi alone.
		cells = nil
	}

	req := &maps.GeolocationRequest{
		ConsiderIP:       true,
		WiFiAccessPoints: wifiToMaps(wifi),
		CellTowers:       cellsToMaps(cells),
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Fingerprint{}, err
	}

	accel, gyro := readMotionSensors()
	return Fingerprint{
		Fix: Fix{
			Latitude:  resp.Location.Lat,
			Longitude: resp.Location.Lng,
			Accuracy:  resp.Accuracy,
		},
		WifiNetworks:  wifi,
		CellTowers:    cells,
		Accelerometer: &accel,
		Gyroscope:     &gyro,
	}, nil
}

// wifiToMaps converts scanned networks into the Maps API request shape.
func wifiToMaps(networks []models.WifiNetwork) []maps.WiFiAccessPoint {
	aps := make([]maps.WiFiAccessPoint, 0, len(networks))
	for _, n := range networks {
		aps = append(aps, maps.WiFiAccessPoint{
			MACAddress:     n.BSSID,
			SignalStrength: float64(n.SignalStrength),
		})
	}
	return aps
}

// cellsToMaps converts scanned towers into the Maps API request shape.
func cellsToMaps(towers []models.CellTower) []maps.CellTower {
	cts := make([]maps.CellTower, 0, len(towers))
	for _, t := range towers {
		cid, err := strconv.Atoi(t.CellID)
		if err != nil {
			continue
		}
		cts = append(cts, maps.CellTower{
			CellID:            cid,
			MobileCountryCode: int(t.MCC),
			MobileNetworkCode: int(t.MNC),
			LocationAreaCode:  int(t.LAC),
		})
	}
	return cts
}
