package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/geovault/geovault/internal/constants"
	"github.com/geovault/geovault/internal/models"
)

// maxHeatmapCells bounds the requested grid so a careless bounding box cannot
// exhaust worker memory.
const maxHeatmapCells = 4_000_000

// ErrBadBounds reports an unusable heatmap bounding box.
var ErrBadBounds = errors.New("invalid heatmap bounds")

func heatmapCacheKey(req *models.HeatmapRequest) string {
	return fmt.Sprintf("%v-%v-%v-%v-%v",
		req.MinLat, req.MaxLat, req.MinLon, req.MaxLon, req.PrivacyLevel)
}

func heatmapGridSize(req *models.HeatmapRequest) (latCells, lonCells int, err error) {
	if !validCoordinates(req.MinLat, req.MinLon) || !validCoordinates(req.MaxLat, req.MaxLon) {
		return 0, 0, fmt.Errorf("%w: coordinates out of range", ErrBadBounds)
	}
	if req.MaxLat <= req.MinLat || req.MaxLon <= req.MinLon {
		return 0, 0, fmt.Errorf("%w: max must exceed min on both axes", ErrBadBounds)
	}
	latCells = int(math.Ceil((req.MaxLat - req.MinLat) / constants.GridSize))
	lonCells = int(math.Ceil((req.MaxLon - req.MinLon) / constants.GridSize))
	if latCells*lonCells > maxHeatmapCells {
		return 0, 0, fmt.Errorf("%w: box spans %d cells, limit %d", ErrBadBounds, latCells*lonCells, maxHeatmapCells)
	}
	return latCells, lonCells, nil
}

// GenerateHeatmap buckets every stored location inside the bounding box into
// the grid, perturbs each cell count with calibrated Gaussian noise, and
// normalizes intensities over the released grid. Identical requests are
// served from the cache verbatim so repeated queries cannot average the noise
// away.
func (e *Engine) GenerateHeatmap(req *models.HeatmapRequest) (*models.HeatmapResponse, error) {
	key := heatmapCacheKey(req)
	if cached, ok := e.heatmaps.Get(key); ok {
		return cached, nil
	}

	latCells, lonCells, err := heatmapGridSize(req)
	if err != nil {
		return nil, err
	}

	counts := make([]int64, latCells*lonCells)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	// Decryption dominates aggregation cost, so fan it out over the pool.
	// The grid itself is updated under a single mutex.
	for tuple := range e.history.IterBuffered() {
		records := tuple.Val
		for i := range records {
			record := records[i]
			wg.Add(1)
			e.pool.Submit(func() {
				defer wg.Done()
				location, err := e.crypto.DecryptLocation(&record)
				if err != nil {
					e.logger.Error().Err(err).Msg("Skipping undecryptable record during aggregation")
					return
				}
				if location.Lat < req.MinLat || location.Lat > req.MaxLat ||
					location.Lon < req.MinLon || location.Lon > req.MaxLon {
					return
				}
				latIdx := int(math.Floor((location.Lat - req.MinLat) / constants.GridSize))
				lonIdx := int(math.Floor((location.Lon - req.MinLon) / constants.GridSize))
				if latIdx >= latCells || lonIdx >= lonCells {
					return
				}
				mu.Lock()
				counts[latIdx*lonCells+lonIdx]++
				mu.Unlock()
			})
		}
	}
	wg.Wait()

	noised := applyGaussianNoise(counts, req.PrivacyLevel)
	response := &models.HeatmapResponse{
		Cells:        gridToCells(noised, latCells, lonCells, req.MinLat, req.MinLon),
		PrivacyLevel: req.PrivacyLevel,
		MinLat:       req.MinLat,
		MaxLat:       req.MaxLat,
		MinLon:       req.MinLon,
		MaxLon:       req.MaxLon,
	}

	// First writer wins; a concurrent request for the same tuple must see
	// exactly one released grid.
	if !e.heatmaps.SetIfAbsent(key, response) {
		if cached, ok := e.heatmaps.Get(key); ok {
			return cached, nil
		}
	}
	return response, nil
}

// applyGaussianNoise perturbs every cell, including empty ones, with noise of
// standard deviation NoiseScaleFactor times the privacy level, rounded and
// clamped at zero.
func applyGaussianNoise(counts []int64, privacyLevel float64) []uint32 {
	stddev := privacyLevel * constants.NoiseScaleFactor
	noised := make([]uint32, len(counts))
	for i, count := range counts {
		value := count + int64(math.Round(rand.NormFloat64()*stddev))
		if value < 0 {
			value = 0
		}
		noised[i] = uint32(value)
	}
	return noised
}

// gridToCells converts the noised grid to released cells, dropping zero
// counts and normalizing intensity against the maximum noised count.
func gridToCells(noised []uint32, latCells, lonCells int, minLat, minLon float64) []models.HeatmapCell {
	var maxValue uint32
	for _, value := range noised {
		if value > maxValue {
			maxValue = value
		}
	}

	cells := make([]models.HeatmapCell, 0)
	for i := 0; i < latCells; i++ {
		for j := 0; j < lonCells; j++ {
			count := noised[i*lonCells+j]
			if count == 0 {
				continue
			}
			cells = append(cells, models.HeatmapCell{
				Lat:       minLat + float64(i)*constants.GridSize,
				Lon:       minLon + float64(j)*constants.GridSize,
				Intensity: float64(count) / float64(maxValue),
				Count:     count,
			})
		}
	}
	return cells
}

type hotspot struct {
	lat, lon, strength, radius float64
}

// GenerateSyntheticHeatmap renders 3 to 7 random Gaussian hotspots inside the
// box, ignoring real history. Load-testing and demo only; it has no privacy
// semantics and is never cached.
func (e *Engine) GenerateSyntheticHeatmap(req *models.HeatmapRequest) (*models.HeatmapResponse, error) {
	latCells, lonCells, err := heatmapGridSize(req)
	if err != nil {
		return nil, err
	}

	hotspots := make([]hotspot, 3+rand.Intn(5))
	for i := range hotspots {
		hotspots[i] = hotspot{
			lat:      req.MinLat + rand.Float64()*(req.MaxLat-req.MinLat),
			lon:      req.MinLon + rand.Float64()*(req.MaxLon-req.MinLon),
			strength: 0.5 + rand.Float64()*0.5,
			// 500 m to 2.5 km falloff radius.
			radius: 0.005 + rand.Float64()*0.02,
		}
	}

	cells := make([]models.HeatmapCell, 0)
	for i := 0; i < latCells; i++ {
		for j := 0; j < lonCells; j++ {
			lat := req.MinLat + float64(i)*constants.GridSize
			lon := req.MinLon + float64(j)*constants.GridSize
			intensity := hotspotIntensity(hotspots, lat, lon)
			if intensity <= constants.SyntheticIntensityFloor {
				continue
			}
			cells = append(cells, models.HeatmapCell{
				Lat:       lat,
				Lon:       lon,
				Intensity: intensity,
				Count:     uint32(math.Round(intensity * 100)),
			})
		}
	}

	return &models.HeatmapResponse{
		Cells:        cells,
		PrivacyLevel: req.PrivacyLevel,
		MinLat:       req.MinLat,
		MaxLat:       req.MaxLat,
		MinLon:       req.MinLon,
		MaxLon:       req.MaxLon,
	}, nil
}

// hotspotIntensity is the maximum Gaussian falloff over all hotspots.
func hotspotIntensity(hotspots []hotspot, lat, lon float64) float64 {
	var max float64
	for _, h := range hotspots {
		dLat := lat - h.lat
		dLon := lon - h.lon
		distSq := dLat*dLat + dLon*dLon
		intensity := h.strength * math.Exp(-distSq/(2*h.radius*h.radius))
		if intensity > max {
			max = intensity
		}
	}
	return max
}
