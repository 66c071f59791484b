package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/geovault/geovault/internal/models"
)

// scanWifiNetworks retrieves nearby WiFi access points using nmcli.
func scanWifiNetworks(ctx context.Context) ([]models.WifiNetwork, error) {
	// Verify nmcli is available
	if _, err := exec.LookPath("nmcli"); err != nil {
		return nil, fmt.Errorf("nmcli not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "nmcli", "-t", "-f", "SSID,BSSID,SIGNAL,FREQ", "dev", "wifi", "list")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run nmcli: %w", err)
	}

	var networks []models.WifiNetwork
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		network, ok := parseWifiLine(scanner.Text())
		if !ok {
			continue
		}
		networks = append(networks, network)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan nmcli output: %w", err)
	}

	return networks, nil
}

// parseWifiLine parses one terse nmcli line. BSSIDs contain escaped colons
// ("AA\:BB\:..."), so the line is split on unescaped colons only.
func parseWifiLine(line string) (models.WifiNetwork, bool) {
	parts := splitUnescaped(line, ':')
	if len(parts) != 4 {
		return models.WifiNetwork{}, false
	}

	bssid := strings.ReplaceAll(strings.TrimSpace(parts[1]), "\\:", ":")
	if !isValidMAC(bssid) {
		return models.WifiNetwork{}, false
	}

	signal, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return models.WifiNetwork{}, false
	}

	// FREQ is reported as "2412 MHz"
	freqField := strings.TrimSuffix(strings.TrimSpace(parts[3]), " MHz")
	freq, err := strconv.ParseUint(freqField, 10, 32)
	if err != nil {
		freq = 0
	}

	return models.WifiNetwork{
		SSID:           strings.TrimSpace(parts[0]),
		BSSID:          bssid,
		SignalStrength: signal,
		Frequency:      uint32(freq),
	}, true
}

// splitUnescaped splits s on sep, treating backslash-escaped separators as
// part of the field.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var field strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			field.WriteByte('\\')
			field.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == sep:
			parts = append(parts, field.String())
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}
	parts = append(parts, field.String())
	return parts
}

// scanCellTowers retrieves nearby cell towers using mmcli for the given modem index.
func scanCellTowers(ctx context.Context, modemIndex int) ([]models.CellTower, error) {
	// Verify mmcli is available
	if _, err := exec.LookPath("mmcli"); err != nil {
		return nil, fmt.Errorf("mmcli not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "mmcli", "-m", strconv.Itoa(modemIndex), "--output-keyvalue")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run mmcli for modem %d: %w", modemIndex, err)
	}

	var tower models.CellTower
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "modem.3gpp.mcc":
			mcc, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				continue
			}
			tower.MCC = uint32(mcc)
		case "modem.3gpp.mnc":
			mnc, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				continue
			}
			tower.MNC = uint32(mnc)
		case "modem.3gpp.lac":
			lac, err := strconv.ParseInt(value, 16, 32)
			if err != nil {
				continue
			}
			tower.LAC = uint32(lac)
		case "modem.3gpp.cid":
			cid, err := strconv.ParseInt(value, 16, 32)
			if err != nil {
				continue
			}
			tower.CellID = strconv.FormatInt(cid, 10)
		case "modem.signal.lte.rssi", "modem.signal.gsm.rssi":
			rssi, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			tower.SignalStrength = int(rssi)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan mmcli output: %w", err)
	}

	// Validate cell tower data
	if tower.MCC == 0 || tower.MNC == 0 {
		return nil, errors.New("incomplete cell tower data")
	}

	return []models.CellTower{tower}, nil
}

// readMotionSensors samples the accelerometer and gyroscope through the
// Linux IIO sysfs interface. A device without one of the sensors reports a
// zero reading; zero is still a reading, distinct from the sensor being
// absent from the report altogether.
func readMotionSensors() (accel, gyro [3]float64) {
	devices, _ := filepath.Glob("/sys/bus/iio/devices/iio:device*")
	for _, dev := range devices {
		name, err := os.ReadFile(filepath.Join(dev, "name"))
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(string(name), "accel"):
			accel = readAxes(dev, "in_accel")
		case strings.Contains(string(name), "gyro"):
			gyro = readAxes(dev, "in_anglvel")
		}
	}
	return accel, gyro
}

// readAxes reads the raw x/y/z channel values of one IIO device.
func readAxes(dev, prefix string) [3]float64 {
	var axes [3]float64
	for i, axis := range [...]string{"x", "y", "z"} {
		raw, err := os.ReadFile(filepath.Join(dev, fmt.Sprintf("%s_%s_raw", prefix, axis)))
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}
		axes[i] = value
	}
	return axes
}

// isValidMAC checks if the MAC address is in a valid format (e.g., "00:14:22:01:23:45").
func isValidMAC(mac string) bool {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return false
	}
	for _, part := range parts {
		if len(part) != 2 {
			return false
		}
		if _, err := strconv.ParseInt(part, 16, 16); err != nil {
			return false
		}
	}
	return true
}
