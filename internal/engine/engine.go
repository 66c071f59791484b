// Package engine implements the trusted computation core: location
// verification, sealed storage, privacy-preserving heatmaps and visit
// analytics. All state lives in memory for the lifetime of the process and is
// owned by a single Engine value constructed at startup.
package engine

import (
	"errors"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/models"
	"github.com/geovault/geovault/internal/utils"
	"github.com/geovault/geovault/pkg/encryption"
)

// ErrNotFound reports a lookup for an opaque id that is not in the store.
var ErrNotFound = errors.New("location not found")

// Engine owns the three long-lived maps of the trusted core. Each map is a
// sharded concurrent map, so operations touching disjoint maps never
// serialize against each other, and per-key upserts give the atomicity the
// verifier needs without a global lock.
type Engine struct {
	crypto encryption.ManagerInterface
	policy VerifyPolicy

	// stations maps grid-cell keys to the radio stations observed there.
	stations cmap.ConcurrentMap[string, []models.Station]
	// history maps user ids to their append-only encrypted location trail.
	history cmap.ConcurrentMap[string, []models.EncryptedLocation]
	// heatmaps caches released responses by exact request tuple.
	heatmaps cmap.ConcurrentMap[string, *models.HeatmapResponse]

	pool   *utils.WorkerPool
	logger zerolog.Logger
}

// New constructs an Engine with empty state. The worker pool bounds the
// fan-out used when decrypting history for aggregation.
func New(crypto encryption.ManagerInterface, policy VerifyPolicy, pool *utils.WorkerPool, logger zerolog.Logger) *Engine {
	return &Engine{
		crypto:   crypto,
		policy:   policy,
		stations: cmap.New[[]models.Station](),
		history:  cmap.New[[]models.EncryptedLocation](),
		heatmaps: cmap.New[*models.HeatmapResponse](),
		pool:     pool,
		logger:   logger,
	}
}

// Policy returns the active verification policy.
func (e *Engine) Policy() VerifyPolicy {
	return e.policy
}

// StationCount returns the number of stations recorded for a cell key.
// Used by tests to observe verifier state.
func (e *Engine) StationCount(cellKey string) int {
	stations, ok := e.stations.Get(cellKey)
	if !ok {
		return 0
	}
	return len(stations)
}

// HistoryCount returns the number of sealed records stored for a user.
func (e *Engine) HistoryCount(userID string) int {
	records, ok := e.history.Get(userID)
	if !ok {
		return 0
	}
	return len(records)
}
