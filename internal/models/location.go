package models

import (
	"time"
)

// Location is a single geolocation fingerprint reported by a device. It is
// the plaintext record that lives only inside the trust boundary.
type Location struct {
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	Timestamp time.Time  `json:"timestamp"`
	UserID    string     `json:"user_id"`
	DeviceID  string     `json:"device_id"`
	Sensors   SensorData `json:"sensors"`
}

// SensorData carries the radio and motion evidence attached to a fingerprint.
// Accelerometer and gyroscope are pointers so that "absent" is distinguishable
// from a zero reading.
type SensorData struct {
	WifiNetworks   []WifiNetwork     `json:"wifi_networks"`
	CellTowers     []CellTower       `json:"cell_towers"`
	Accelerometer  *[3]float64       `json:"accelerometer"`
	Gyroscope      *[3]float64       `json:"gyroscope"`
	IsMockLocation bool              `json:"is_mock_location"`
	AdditionalData map[string]string `json:"additional_data,omitempty"`
}

// WifiNetwork is one observed access point.
type WifiNetwork struct {
	SSID           string `json:"ssid"`
	BSSID          string `json:"bssid"`
	SignalStrength int    `json:"signal_strength"`
	Frequency      uint32 `json:"frequency"`
}

// CellTower is one observed cellular tower.
type CellTower struct {
	CellID         string `json:"cell_id"`
	SignalStrength int    `json:"signal_strength"`
	MCC            uint32 `json:"mcc"`
	MNC            uint32 `json:"mnc"`
	LAC            uint32 `json:"lac"`
}

// EncryptedLocation is the sealed form of a Location. The base64 ciphertext
// doubles as the record's externally visible identifier.
type EncryptedLocation struct {
	EncData   string    `json:"enc_data"`
	Nonce     string    `json:"nonce"`
	Timestamp time.Time `json:"timestamp"`
}

// StationType distinguishes the two kinds of radio stations we fingerprint.
type StationType string

const (
	StationWifi      StationType = "wifi"
	StationCellTower StationType = "cell_tower"
)

// Station is a previously observed radio station anchored to the coordinates
// of the report that first mentioned it. Station lists grow monotonically for
// the lifetime of the worker process.
type Station struct {
	ID             string      `json:"id"`
	Lat            float64     `json:"lat"`
	Lon            float64     `json:"lon"`
	Type           StationType `json:"type"`
	SignalStrength int         `json:"signal_strength"`
}
