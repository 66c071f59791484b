package engine

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/models"
)

// HelpText is returned for the Help command.
const HelpText = `GeoVault trusted worker. Commands are one JSON object per line:
  {"RegisterLocation": {<location fingerprint>}}  verify, seal and store a location
  {"GetLocation": "<encrypted id>"}               look up and open a sealed record
  {"GenerateHeatmap": {<bounds, privacy_level>}}  release a noised density grid
  {"GenerateSyntheticHeatmap": {<bounds>}}        demo grid from random hotspots
  {"GetVisitAnalytics": {<user_id, time range>}}  detect significant stays
  {"GetDailySummary": {<user_id, date>}}          per-day activity summary
  "Help"                                          this text
  "Exit"                                          terminate the worker`

// Dispatcher decodes tagged commands, routes them into the engine and encodes
// tagged responses. A malformed command yields a Message response, never a
// crash of the worker.
type Dispatcher struct {
	engine *Engine
	logger zerolog.Logger
}

// NewDispatcher wires a dispatcher to an engine.
func NewDispatcher(engine *Engine, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, logger: logger}
}

// Engine exposes the underlying engine, used by the in-process channel.
func (d *Dispatcher) Engine() *Engine {
	return d.engine
}

// Dispatch executes one command. The second return value is true when the
// worker should terminate.
func (d *Dispatcher) Dispatch(cmd models.Command) (models.Response, bool) {
	switch cmd.Tag {
	case models.CmdRegisterLocation:
		var location models.Location
		if err := cmd.Bind(&location); err != nil {
			return protocolFailure(err), false
		}
		return models.Response{Tag: models.RespLocationRegistered, Body: d.engine.RegisterLocation(&location)}, false

	case models.CmdGetLocation:
		var encryptedID string
		if err := cmd.Bind(&encryptedID); err != nil {
			return protocolFailure(err), false
		}
		location, err := d.engine.LookupLocation(encryptedID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return models.Response{Tag: models.RespLocationData, Body: models.LocationPayload{
					Success: false,
					Message: "Location not found",
				}}, false
			}
			return models.Response{Tag: models.RespLocationData, Body: models.LocationPayload{
				Success: false,
				Message: err.Error(),
			}}, false
		}
		return models.Response{Tag: models.RespLocationData, Body: models.LocationPayload{
			Location: location,
			Success:  true,
			Message:  "Location retrieved successfully.",
		}}, false

	case models.CmdGenerateHeatmap:
		return d.heatmap(cmd, d.engine.GenerateHeatmap), false

	case models.CmdGenerateSyntheticHeatmap:
		return d.heatmap(cmd, d.engine.GenerateSyntheticHeatmap), false

	case models.CmdGetVisitAnalytics:
		var req models.VisitAnalyticsRequest
		if err := cmd.Bind(&req); err != nil {
			return protocolFailure(err), false
		}
		visits, err := d.engine.VisitAnalytics(&req)
		if err != nil {
			return models.Response{Tag: models.RespVisitAnalytics, Body: models.VisitsPayload{
				Visits:  []models.LocationVisit{},
				Success: false,
				Message: err.Error(),
			}}, false
		}
		return models.Response{Tag: models.RespVisitAnalytics, Body: models.VisitsPayload{
			Visits:  visits,
			Success: true,
			Message: "Visit analytics generated successfully.",
		}}, false

	case models.CmdGetDailySummary:
		var req models.DailySummaryRequest
		if err := cmd.Bind(&req); err != nil {
			return protocolFailure(err), false
		}
		summary, err := d.engine.DailySummary(&req)
		if err != nil {
			return models.Response{Tag: models.RespDailySummary, Body: models.SummaryPayload{
				Success: false,
				Message: err.Error(),
			}}, false
		}
		return models.Response{Tag: models.RespDailySummary, Body: models.SummaryPayload{
			Summary: summary,
			Success: true,
			Message: "Daily summary generated successfully.",
		}}, false

	case models.CmdHelp:
		return models.Response{Tag: models.RespMessage, Body: models.MessagePayload{
			Success: true,
			Message: HelpText,
		}}, false

	case models.CmdExit:
		return models.Response{Tag: models.RespMessage, Body: models.MessagePayload{
			Success: true,
			Message: "Exiting.",
		}}, true

	default:
		d.logger.Warn().Str("tag", cmd.Tag).Msg("Unknown command tag")
		return models.Response{Tag: models.RespMessage, Body: models.MessagePayload{
			Success: false,
			Message: "Unknown command: " + cmd.Tag,
		}}, false
	}
}

func (d *Dispatcher) heatmap(cmd models.Command, generate func(*models.HeatmapRequest) (*models.HeatmapResponse, error)) models.Response {
	var req models.HeatmapRequest
	if err := cmd.Bind(&req); err != nil {
		return protocolFailure(err)
	}
	response, err := generate(&req)
	if err != nil {
		return models.Response{Tag: models.RespHeatmap, Body: models.HeatmapPayload{
			Success: false,
			Message: err.Error(),
		}}
	}
	return models.Response{Tag: models.RespHeatmap, Body: models.HeatmapPayload{
		HeatmapResponse: *response,
		Success:         true,
		Message:         "Heatmap generated successfully.",
	}}
}

func protocolFailure(err error) models.Response {
	return models.Response{Tag: models.RespMessage, Body: models.MessagePayload{
		Success: false,
		Message: "Malformed command: " + err.Error(),
	}}
}
