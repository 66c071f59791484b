package location

import "github.com/geovault/geovault/internal/models"

// Fix represents the geographical coordinates of a device.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Fingerprint bundles a position fix with the radio environment and motion
// sensor readings observed alongside it. The stations are what the
// verification side checks a reported position against; the motion readings
// attest that the report comes from a physical device.
type Fingerprint struct {
	Fix           Fix
	WifiNetworks  []models.WifiNetwork
	CellTowers    []models.CellTower
	Accelerometer *[3]float64
	Gyroscope     *[3]float64
}
