package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/geovault/geovault/internal/constants"
	"github.com/geovault/geovault/internal/models"
	"github.com/geovault/geovault/pkg/grid"
)

// VisitAnalytics decrypts one user's history, restricts it to the requested
// range and extracts significant stays. A user with no history yields an
// empty result, not an error.
func (e *Engine) VisitAnalytics(req *models.VisitAnalyticsRequest) ([]models.LocationVisit, error) {
	if req.EndTime.Before(req.StartTime) {
		return nil, fmt.Errorf("end time %s precedes start time %s", req.EndTime, req.StartTime)
	}

	locations := e.decryptedRange(req.UserID, req.StartTime, req.EndTime)
	sort.Slice(locations, func(i, j int) bool {
		return locations[i].Timestamp.Before(locations[j].Timestamp)
	})

	return detectVisits(locations), nil
}

// decryptedRange opens every record of a user that falls inside [start, end].
// Undecryptable records are skipped; CryptoError is fatal only to the record.
func (e *Engine) decryptedRange(userID string, start, end time.Time) []models.Location {
	var locations []models.Location
	records := e.userHistory(userID)
	for i := range records {
		location, err := e.crypto.DecryptLocation(&records[i])
		if err != nil {
			e.logger.Error().Err(err).Msg("Skipping undecryptable record during analytics")
			continue
		}
		if location.Timestamp.Before(start) || location.Timestamp.After(end) {
			continue
		}
		locations = append(locations, *location)
	}
	return locations
}

// detectVisits greedily clusters a chronological trace: a point joins the
// current cluster if it is within the same-place threshold of the cluster's
// most recent point. Clusters with fewer than two points or spanning less
// than the minimum stay are dropped silently, by rule.
func detectVisits(locations []models.Location) []models.LocationVisit {
	visits := []models.LocationVisit{}
	if len(locations) == 0 {
		return visits
	}

	cluster := []models.Location{locations[0]}
	for _, location := range locations[1:] {
		last := cluster[len(cluster)-1]
		if degreeDistance(location.Lat, location.Lon, last.Lat, last.Lon) <= constants.SameLocationThreshold {
			cluster = append(cluster, location)
			continue
		}
		if visit, ok := closeCluster(cluster); ok {
			visits = append(visits, visit)
		}
		cluster = []models.Location{location}
	}
	if visit, ok := closeCluster(cluster); ok {
		visits = append(visits, visit)
	}
	return visits
}

// closeCluster turns a cluster into a visit when it qualifies as a stay.
func closeCluster(cluster []models.Location) (models.LocationVisit, bool) {
	if len(cluster) < constants.MinVisitPoints {
		return models.LocationVisit{}, false
	}

	arrival := cluster[0].Timestamp
	departure := cluster[len(cluster)-1].Timestamp
	duration := int64(departure.Sub(arrival).Seconds())
	if duration < constants.MinStayDurationSeconds {
		return models.LocationVisit{}, false
	}

	var latSum, lonSum float64
	for _, location := range cluster {
		latSum += location.Lat
		lonSum += location.Lon
	}
	return models.LocationVisit{
		Lat:             latSum / float64(len(cluster)),
		Lon:             lonSum / float64(len(cluster)),
		ArrivalTime:     arrival,
		DepartureTime:   departure,
		DurationSeconds: duration,
		PointCount:      uint32(len(cluster)),
	}, true
}

// DailySummary buckets one user's locations on a UTC calendar day by hour,
// counts distinct grid cells visited and sums the approximate distance
// traveled between consecutive points.
func (e *Engine) DailySummary(req *models.DailySummaryRequest) (map[string]int, error) {
	day, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", req.Date, err)
	}
	start := day
	end := day.Add(24 * time.Hour)

	locations := e.decryptedRange(req.UserID, start, end.Add(-time.Nanosecond))
	sort.Slice(locations, func(i, j int) bool {
		return locations[i].Timestamp.Before(locations[j].Timestamp)
	})

	summary := make(map[string]int, 26)
	for hour := 0; hour < 24; hour++ {
		summary[fmt.Sprintf("hour_%d", hour)] = 0
	}

	cells := make(map[grid.Cell]struct{})
	var totalMeters float64
	for i, location := range locations {
		summary[fmt.Sprintf("hour_%d", location.Timestamp.UTC().Hour())]++
		cells[grid.CellOf(location.Lat, location.Lon, constants.GridSize)] = struct{}{}
		if i > 0 {
			previous := locations[i-1]
			totalMeters += degreeDistance(previous.Lat, previous.Lon, location.Lat, location.Lon) * constants.MetersPerDegree
		}
	}

	summary["unique_places"] = len(cells)
	summary["distance_traveled"] = int(math.Round(totalMeters))
	return summary, nil
}

// degreeDistance is the Euclidean distance in degrees, adequate at the scale
// of one grid cell.
func degreeDistance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	return math.Sqrt(dLat*dLat + dLon*dLon)
}
