package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovault/geovault/internal/constants"
	"github.com/geovault/geovault/pkg/grid"
)

func cellKeyOf(lat, lon float64) string {
	return grid.CellOf(lat, lon, constants.GridSize).String()
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyQuorum, policy, "quorum is the default")

	policy, err = ParsePolicy("any")
	require.NoError(t, err)
	assert.Equal(t, PolicyAnyMatch, policy)

	_, err = ParsePolicy("bogus")
	assert.Error(t, err)
}

func TestVerifyFirstReportEstablishesGroundTruth(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	location := validLocation("user-1", 37.7749, -122.4194, time.Now())

	ok, reason := e.VerifyLocation(location)
	require.True(t, ok, reason)

	// One wifi network and one cell tower were merged into the cell.
	assert.Equal(t, 2, e.StationCount(cellKeyOf(37.7749, -122.4194)))
}

func TestVerifyRejectsMockLocation(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	location := validLocation("user-1", 37.7749, -122.4194, time.Now())
	location.Sensors.IsMockLocation = true

	ok, reason := e.VerifyLocation(location)
	assert.False(t, ok)
	assert.Contains(t, reason, "mock")

	// A rejected report leaves no trace.
	assert.Equal(t, 0, e.StationCount(cellKeyOf(37.7749, -122.4194)))
}

func TestVerifyRejectsMissingMotionSensors(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	location := validLocation("user-1", 37.7749, -122.4194, time.Now())
	location.Sensors.Gyroscope = nil

	ok, _ := e.VerifyLocation(location)
	assert.False(t, ok)
}

func TestVerifyRejectsOutOfRangeCoordinates(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	location := validLocation("user-1", 91.0, 0, time.Now())

	ok, reason := e.VerifyLocation(location)
	assert.False(t, ok)
	assert.Contains(t, reason, "out of range")
}

func TestVerifyQuorumPolicy(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	first := validLocation("user-1", 37.7749, -122.4194, time.Now())
	ok, _ := e.VerifyLocation(first)
	require.True(t, ok)

	// Zero of the two known stations matched: 0/2 is below the quorum.
	stranger := validLocation("user-2", 37.7749, -122.4194, time.Now())
	stranger.Sensors.WifiNetworks[0].BSSID = "ff:ff:ff:ff:ff:99"
	stranger.Sensors.CellTowers[0].CellID = "999-999-9999"
	ok, reason := e.VerifyLocation(stranger)
	assert.False(t, ok)
	assert.Contains(t, reason, "too few")

	// The rejected report must not have grown the station set.
	assert.Equal(t, 2, e.StationCount(cellKeyOf(37.7749, -122.4194)))

	// One of two matched: 50% clears the quorum, and the new station merges.
	neighbor := validLocation("user-3", 37.7749, -122.4194, time.Now())
	neighbor.Sensors.CellTowers[0].CellID = "310-410-2002"
	ok, _ = e.VerifyLocation(neighbor)
	assert.True(t, ok)
	assert.Equal(t, 3, e.StationCount(cellKeyOf(37.7749, -122.4194)))
}

func TestVerifyAnyMatchPolicy(t *testing.T) {
	e := newTestEngine(t, PolicyAnyMatch)
	first := validLocation("user-1", 37.7749, -122.4194, time.Now())
	ok, _ := e.VerifyLocation(first)
	require.True(t, ok)

	// A single match suffices under any-match, however many are expected.
	neighbor := validLocation("user-2", 37.7749, -122.4194, time.Now())
	neighbor.Sensors.CellTowers[0].CellID = "310-410-3003"
	ok, _ = e.VerifyLocation(neighbor)
	assert.True(t, ok)

	// Zero matches is still rejected.
	stranger := validLocation("user-3", 37.7749, -122.4194, time.Now())
	stranger.Sensors.WifiNetworks[0].BSSID = "ff:ff:ff:ff:ff:99"
	stranger.Sensors.CellTowers[0].CellID = "999-999-9999"
	ok, reason := e.VerifyLocation(stranger)
	assert.False(t, ok)
	assert.Contains(t, reason, "no reported stations")
}

func TestVerifyDistinctCellsAreIndependent(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	ok, _ := e.VerifyLocation(validLocation("user-1", 37.7749, -122.4194, time.Now()))
	require.True(t, ok)

	// A different cell has no ground truth yet, so any stations pass.
	other := validLocation("user-2", 40.7128, -74.0060, time.Now())
	other.Sensors.WifiNetworks[0].BSSID = "11:22:33:44:55:66"
	other.Sensors.CellTowers[0].CellID = "310-260-5005"
	ok, _ = e.VerifyLocation(other)
	assert.True(t, ok)

	assert.Equal(t, 2, e.StationCount(cellKeyOf(40.7128, -74.0060)))
}
