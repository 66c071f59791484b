package engine

import (
	"fmt"

	"github.com/geovault/geovault/internal/constants"
	"github.com/geovault/geovault/internal/models"
	"github.com/geovault/geovault/internal/utils"
	"github.com/geovault/geovault/pkg/grid"
)

// VerifyPolicy selects how station matches in a known cell are judged.
type VerifyPolicy string

const (
	// PolicyAnyMatch rejects only when zero reported stations match a
	// non-empty expected set.
	PolicyAnyMatch VerifyPolicy = "any"

	// PolicyQuorum rejects when fewer than 30% of the expected stations are
	// matched by the report. This is the default.
	PolicyQuorum VerifyPolicy = "quorum"
)

// ParsePolicy maps a config string to a policy, defaulting to quorum.
func ParsePolicy(s string) (VerifyPolicy, error) {
	switch s {
	case "", string(PolicyQuorum):
		return PolicyQuorum, nil
	case string(PolicyAnyMatch):
		return PolicyAnyMatch, nil
	default:
		return "", fmt.Errorf("unknown verification policy %q", s)
	}
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// VerifyLocation decides whether a fingerprint is consistent with reality as
// this process has observed it so far. Verification is stateful and
// order-dependent: the first reports from a cell establish ground truth, and
// accepted reports always merge their stations into the cell's knowledge.
// A negative result is a normal outcome, not an error.
func (e *Engine) VerifyLocation(location *models.Location) (bool, string) {
	if !validCoordinates(location.Lat, location.Lon) {
		return false, "coordinates out of range"
	}
	if location.Sensors.IsMockLocation {
		return false, "device reports a mock location"
	}
	// A genuine device always carries both motion sensors.
	if location.Sensors.Accelerometer == nil || location.Sensors.Gyroscope == nil {
		return false, "missing accelerometer or gyroscope readings"
	}

	cell := grid.CellOf(location.Lat, location.Lon, constants.GridSize)

	verified := true
	reason := ""

	// The match check and the station merge must observe the same cell
	// state, so both happen inside one per-key upsert.
	e.stations.Upsert(cell.String(), nil, func(exists bool, current, _ []models.Station) []models.Station {
		if exists && len(current) > 0 {
			matched := countStationMatches(location, current)
			switch e.policy {
			case PolicyAnyMatch:
				if matched == 0 {
					verified = false
					reason = "no reported stations match this area's history"
				}
			default: // quorum
				if float64(matched)/float64(len(current)) < constants.QuorumMatchRatio {
					verified = false
					reason = "too few reported stations match this area's history"
				}
			}
		}
		if !verified {
			return current
		}
		return mergeStations(current, location)
	})

	return verified, reason
}

// countStationMatches counts stored stations whose id appears in the report,
// respecting the station type.
func countStationMatches(location *models.Location, known []models.Station) int {
	wifiIDs := make([]string, 0, len(location.Sensors.WifiNetworks))
	for _, network := range location.Sensors.WifiNetworks {
		wifiIDs = append(wifiIDs, network.BSSID)
	}
	cellIDs := make([]string, 0, len(location.Sensors.CellTowers))
	for _, tower := range location.Sensors.CellTowers {
		cellIDs = append(cellIDs, tower.CellID)
	}
	reportedWifi := utils.SliceToSet(wifiIDs)
	reportedCell := utils.SliceToSet(cellIDs)

	matched := 0
	for _, station := range known {
		switch station.Type {
		case models.StationWifi:
			if _, ok := reportedWifi[station.ID]; ok {
				matched++
			}
		case models.StationCellTower:
			if _, ok := reportedCell[station.ID]; ok {
				matched++
			}
		}
	}
	return matched
}

// mergeStations appends newly observed stations, deduplicated by id.
// Stations are never removed.
func mergeStations(current []models.Station, location *models.Location) []models.Station {
	seen := make(map[string]struct{}, len(current))
	for _, station := range current {
		seen[station.ID] = struct{}{}
	}

	for _, network := range location.Sensors.WifiNetworks {
		if _, ok := seen[network.BSSID]; ok {
			continue
		}
		seen[network.BSSID] = struct{}{}
		current = append(current, models.Station{
			ID:             network.BSSID,
			Lat:            location.Lat,
			Lon:            location.Lon,
			Type:           models.StationWifi,
			SignalStrength: network.SignalStrength,
		})
	}
	for _, tower := range location.Sensors.CellTowers {
		if _, ok := seen[tower.CellID]; ok {
			continue
		}
		seen[tower.CellID] = struct{}{}
		current = append(current, models.Station{
			ID:             tower.CellID,
			Lat:            location.Lat,
			Lon:            location.Lon,
			Type:           models.StationCellTower,
			SignalStrength: tower.SignalStrength,
		})
	}
	return current
}
