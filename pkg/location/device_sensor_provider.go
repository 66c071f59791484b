package location

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

// DeviceSensorProvider retrieves a position fix from a GPS device connected
// via serial port and pairs it with a Wi-Fi and cell scan.
type DeviceSensorProvider struct {
	port       string // Serial port to which the GPS device is connected
	baudRate   int    // Baud rate for the serial communication
	modemIndex int    // ModemManager modem index used for cell scans
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider.
func NewDeviceSensorProvider(port string, baudRate, modemIndex int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:       port,
		baudRate:   baudRate,
		modemIndex: modemIndex,
	}
}

// GetFingerprint reads GPS data from the device and returns the fix together
// with the currently visible stations.
func (d *DeviceSensorProvider) GetFingerprint(ctx context.Context) (Fingerprint, error) {
	fix, err := d.readFix()
	if err != nil {
		return Fingerprint{}, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Station scans are best effort; a fix without them is still reportable.
	wifi, err := scanWifiNetworks(scanCtx)
	if err != nil {
		wifi = nil
	}
	cells, err := scanCellTowers(scanCtx, d.modemIndex)
	if err != nil {
		cells = nil
	}

	accel, gyro := readMotionSensors()
	return Fingerprint{
		Fix:           fix,
		WifiNetworks:  wifi,
		CellTowers:    cells,
		Accelerometer: &accel,
		Gyroscope:     &gyro,
	}, nil
}

// readFix reads NMEA sentences until a GGA sentence yields a position.
func (d *DeviceSensorProvider) readFix() (Fix, error) {
	c := &serial.Config{Name: d.port, Baud: d.baudRate}
	s, err := serial.OpenPort(c)
	if err != nil {
		return Fix{}, err
	}
	defer s.Close()

	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "$GPGGA") { // Check for GGA sentences
			sentence, err := nmea.Parse(line)
			if err != nil {
				return Fix{}, err
			}

			if gga, ok := sentence.(nmea.GGA); ok {
				return Fix{
					Latitude:  gga.Latitude,
					Longitude: gga.Longitude,
					Accuracy:  float64(gga.HDOP), // Use HDOP as a proxy for accuracy
				}, nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return Fix{}, err
	}

	return Fix{}, errors.New("no valid GPS data found")
}
