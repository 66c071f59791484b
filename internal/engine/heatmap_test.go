package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovault/geovault/internal/constants"
	"github.com/geovault/geovault/internal/models"
)

func seedHeatmapHistory(t *testing.T, e *Engine) {
	t.Helper()
	// Three reports in one grid cell, one in another.
	for i := 0; i < 3; i++ {
		result := e.RegisterLocation(validLocation("user-1", 37.77495, -122.41945, time.Now()))
		require.True(t, result.Success, result.Message)
	}
	result := e.RegisterLocation(validLocation("user-2", 37.77895, -122.41545, time.Now()))
	require.True(t, result.Success, result.Message)
}

func TestGenerateHeatmapZeroPrivacyIsExact(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	seedHeatmapHistory(t, e)

	resp, err := e.GenerateHeatmap(&models.HeatmapRequest{
		MinLat: 37.774, MaxLat: 37.780,
		MinLon: -122.420, MaxLon: -122.414,
		PrivacyLevel: 0,
	})
	require.NoError(t, err)

	// With zero privacy the noise draw has zero stddev, so the released
	// counts are the true counts.
	require.Len(t, resp.Cells, 2)
	var counts []uint32
	for _, cell := range resp.Cells {
		counts = append(counts, cell.Count)
		assert.GreaterOrEqual(t, cell.Lat, resp.MinLat)
		assert.LessOrEqual(t, cell.Lat, resp.MaxLat)
		assert.GreaterOrEqual(t, cell.Lon, resp.MinLon)
		assert.LessOrEqual(t, cell.Lon, resp.MaxLon)
		assert.Greater(t, cell.Intensity, 0.0)
		assert.LessOrEqual(t, cell.Intensity, 1.0)
	}
	assert.ElementsMatch(t, []uint32{3, 1}, counts)
}

func TestGenerateHeatmapIdenticalRequestsAreCached(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	seedHeatmapHistory(t, e)

	req := models.HeatmapRequest{
		MinLat: 37.774, MaxLat: 37.780,
		MinLon: -122.420, MaxLon: -122.414,
		PrivacyLevel: 2.0,
	}

	first, err := e.GenerateHeatmap(&req)
	require.NoError(t, err)
	second, err := e.GenerateHeatmap(&req)
	require.NoError(t, err)

	// Byte-for-byte the same release: repeated queries cannot average the
	// noise away.
	assert.Same(t, first, second)

	// A different privacy level is a different release.
	req.PrivacyLevel = 3.0
	third, err := e.GenerateHeatmap(&req)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestGenerateHeatmapRejectsBadBounds(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)

	_, err := e.GenerateHeatmap(&models.HeatmapRequest{
		MinLat: 37.78, MaxLat: 37.77, MinLon: -122.42, MaxLon: -122.41,
	})
	assert.ErrorIs(t, err, ErrBadBounds)

	_, err = e.GenerateHeatmap(&models.HeatmapRequest{
		MinLat: -95, MaxLat: 37.77, MinLon: -122.42, MaxLon: -122.41,
	})
	assert.ErrorIs(t, err, ErrBadBounds)

	// A box spanning the globe at cell resolution exceeds the cell limit.
	_, err = e.GenerateHeatmap(&models.HeatmapRequest{
		MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180,
	})
	assert.ErrorIs(t, err, ErrBadBounds)
}

func TestGenerateHeatmapNoisedCountsNeverNegative(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)
	seedHeatmapHistory(t, e)

	resp, err := e.GenerateHeatmap(&models.HeatmapRequest{
		MinLat: 37.774, MaxLat: 37.780,
		MinLon: -122.420, MaxLon: -122.414,
		PrivacyLevel: 5.0,
	})
	require.NoError(t, err)

	// Released cells carry strictly positive counts; negative draws are
	// clamped and zero cells are dropped.
	for _, cell := range resp.Cells {
		assert.Greater(t, cell.Count, uint32(0))
	}
}

func TestGenerateSyntheticHeatmap(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)

	resp, err := e.GenerateSyntheticHeatmap(&models.HeatmapRequest{
		MinLat: 37.70, MaxLat: 37.80,
		MinLon: -122.50, MaxLon: -122.40,
		PrivacyLevel: 1.0,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Cells, "hotspot centers always exceed the floor")

	for _, cell := range resp.Cells {
		assert.Greater(t, cell.Intensity, constants.SyntheticIntensityFloor)
		assert.LessOrEqual(t, cell.Intensity, 1.0)
		assert.Equal(t, uint32(math.Round(cell.Intensity*100)), cell.Count)
		assert.GreaterOrEqual(t, cell.Lat, resp.MinLat)
		assert.LessOrEqual(t, cell.Lat, resp.MaxLat)
	}
}

func TestGenerateSyntheticHeatmapRejectsBadBounds(t *testing.T) {
	e := newTestEngine(t, PolicyQuorum)

	_, err := e.GenerateSyntheticHeatmap(&models.HeatmapRequest{
		MinLat: 1, MaxLat: 0, MinLon: 0, MaxLon: 1,
	})
	assert.ErrorIs(t, err, ErrBadBounds)
}
