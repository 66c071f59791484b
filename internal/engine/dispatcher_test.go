package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geovault/geovault/internal/models"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return NewDispatcher(newTestEngine(t, PolicyQuorum), zerolog.Nop())
}

// dispatchWire feeds a raw wire line through envelope parsing and dispatch,
// the way the worker main loop does.
func dispatchWire(t *testing.T, d *Dispatcher, line string) (models.Response, bool) {
	t.Helper()
	var cmd models.Command
	require.NoError(t, json.Unmarshal([]byte(line), &cmd))
	return d.Dispatch(cmd)
}

func TestDispatchRegisterAndLookup(t *testing.T) {
	d := newTestDispatcher(t)

	location := validLocation("user-1", 37.7749, -122.4194, time.Now().UTC())
	cmd, err := models.NewCommand(models.CmdRegisterLocation, location)
	require.NoError(t, err)

	resp, quit := d.Dispatch(cmd)
	assert.False(t, quit)
	assert.Equal(t, models.RespLocationRegistered, resp.Tag)

	var registered models.RegisteredPayload
	require.NoError(t, resp.Decode(&registered))
	require.True(t, registered.Success, registered.Message)
	require.NotEmpty(t, registered.EncLocation)

	// Round trip over the wire: the handle from registration opens the
	// record again.
	lookup, err := models.NewCommand(models.CmdGetLocation, registered.EncLocation)
	require.NoError(t, err)
	resp, quit = d.Dispatch(lookup)
	assert.False(t, quit)
	assert.Equal(t, models.RespLocationData, resp.Tag)

	var opened models.LocationPayload
	require.NoError(t, resp.Decode(&opened))
	require.True(t, opened.Success)
	assert.Equal(t, "user-1", opened.Location.UserID)
}

func TestDispatchGetLocationNotFound(t *testing.T) {
	d := newTestDispatcher(t)

	resp, _ := dispatchWire(t, d, `{"GetLocation": "bm90IGEgcmVhbCBpZA=="}`)
	assert.Equal(t, models.RespLocationData, resp.Tag)

	var payload models.LocationPayload
	require.NoError(t, resp.Decode(&payload))
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Message, "not found")
}

func TestDispatchBareHelp(t *testing.T) {
	d := newTestDispatcher(t)

	resp, quit := dispatchWire(t, d, `"Help"`)
	assert.False(t, quit)
	assert.Equal(t, models.RespMessage, resp.Tag)

	var payload models.MessagePayload
	require.NoError(t, resp.Decode(&payload))
	assert.True(t, payload.Success)
	assert.Contains(t, payload.Message, "RegisterLocation")
}

func TestDispatchExit(t *testing.T) {
	d := newTestDispatcher(t)

	resp, quit := dispatchWire(t, d, `"Exit"`)
	assert.True(t, quit)
	assert.Equal(t, models.RespMessage, resp.Tag)
}

func TestDispatchUnknownTag(t *testing.T) {
	d := newTestDispatcher(t)

	resp, quit := dispatchWire(t, d, `{"Teleport": {}}`)
	assert.False(t, quit)
	assert.Equal(t, models.RespMessage, resp.Tag)

	var payload models.MessagePayload
	require.NoError(t, resp.Decode(&payload))
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Message, "Teleport")
}

func TestDispatchMalformedPayload(t *testing.T) {
	d := newTestDispatcher(t)

	resp, quit := dispatchWire(t, d, `{"GenerateHeatmap": "not an object"}`)
	assert.False(t, quit)
	assert.Equal(t, models.RespMessage, resp.Tag)

	var payload models.MessagePayload
	require.NoError(t, resp.Decode(&payload))
	assert.False(t, payload.Success)
	assert.Contains(t, payload.Message, "Malformed")
}

func TestDispatchHeatmapFailureIsTaggedResponse(t *testing.T) {
	d := newTestDispatcher(t)

	// Inverted bounds fail inside the engine; the failure still travels as
	// a Heatmap-tagged response, not a protocol error.
	resp, _ := dispatchWire(t, d, `{"GenerateHeatmap": {"min_lat": 1, "max_lat": 0, "min_lon": 0, "max_lon": 1}}`)
	assert.Equal(t, models.RespHeatmap, resp.Tag)

	var payload models.HeatmapPayload
	require.NoError(t, resp.Decode(&payload))
	assert.False(t, payload.Success)
}

func TestDispatchVisitAnalytics(t *testing.T) {
	d := newTestDispatcher(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{0, 300 * time.Second} {
		cmd, err := models.NewCommand(models.CmdRegisterLocation, validLocation("user-1", 37.7749, -122.4194, base.Add(offset)))
		require.NoError(t, err)
		resp, _ := d.Dispatch(cmd)
		var registered models.RegisteredPayload
		require.NoError(t, resp.Decode(&registered))
		require.True(t, registered.Success)
	}

	cmd, err := models.NewCommand(models.CmdGetVisitAnalytics, models.VisitAnalyticsRequest{
		UserID:    "user-1",
		StartTime: base.Add(-time.Hour),
		EndTime:   base.Add(time.Hour),
	})
	require.NoError(t, err)

	resp, _ := d.Dispatch(cmd)
	assert.Equal(t, models.RespVisitAnalytics, resp.Tag)

	var payload models.VisitsPayload
	require.NoError(t, resp.Decode(&payload))
	require.True(t, payload.Success)
	require.Len(t, payload.Visits, 1)
	assert.Equal(t, int64(300), payload.Visits[0].DurationSeconds)
}

func TestDispatchDailySummary(t *testing.T) {
	d := newTestDispatcher(t)

	resp, _ := dispatchWire(t, d, `{"GetDailySummary": {"user_id": "user-1", "date": "2026-03-14"}}`)
	assert.Equal(t, models.RespDailySummary, resp.Tag)

	var payload models.SummaryPayload
	require.NoError(t, resp.Decode(&payload))
	require.True(t, payload.Success)
	assert.Equal(t, 0, payload.Summary["unique_places"])
	assert.Contains(t, payload.Summary, "hour_23")
}
