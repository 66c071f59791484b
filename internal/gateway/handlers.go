package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/geovault/geovault/internal/channel"
	"github.com/geovault/geovault/internal/models"
	"github.com/geovault/geovault/internal/supervisor"
)

// exchangeTimeout bounds one worker round trip including restarts.
const exchangeTimeout = 30 * time.Second

// Handler translates HTTP requests into worker commands. It never touches
// plaintext location state itself; everything goes through the channel.
type Handler struct {
	channel channel.Channel
	logger  zerolog.Logger
}

// NewHandler creates a Handler bound to a worker channel.
func NewHandler(ch channel.Channel, logger zerolog.Logger) *Handler {
	return &Handler{channel: ch, logger: logger}
}

// errorResponse is the uniform error body for failed requests.
type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// getLocationRequest wraps the sealed record identifier.
type getLocationRequest struct {
	EncLocation string `json:"enc_location"`
}

// RegisterLocation handles POST /api/location/register.
func (h *Handler) RegisterLocation(w http.ResponseWriter, r *http.Request) {
	var report models.Location
	if !h.decodeBody(w, r, &report) {
		return
	}

	resp, ok := h.exchange(w, r.Context(), models.CmdRegisterLocation, report)
	if !ok {
		return
	}

	var result models.RegisteredPayload
	if !h.decodeResult(w, resp, &result) {
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetLocation handles POST /api/location/get.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	var req getLocationRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, ok := h.exchange(w, r.Context(), models.CmdGetLocation, req.EncLocation)
	if !ok {
		return
	}

	var result models.LocationPayload
	if !h.decodeResult(w, resp, &result) {
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusNotFound, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GenerateHeatmap handles POST /api/heatmap.
func (h *Handler) GenerateHeatmap(w http.ResponseWriter, r *http.Request) {
	h.heatmap(w, r, models.CmdGenerateHeatmap)
}

// GenerateSyntheticHeatmap handles POST /api/heatmap/synthetic.
func (h *Handler) GenerateSyntheticHeatmap(w http.ResponseWriter, r *http.Request) {
	h.heatmap(w, r, models.CmdGenerateSyntheticHeatmap)
}

func (h *Handler) heatmap(w http.ResponseWriter, r *http.Request, tag string) {
	var req models.HeatmapRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, ok := h.exchange(w, r.Context(), tag, req)
	if !ok {
		return
	}

	var result models.HeatmapPayload
	if !h.decodeResult(w, resp, &result) {
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VisitAnalytics handles POST /api/analytics/visits.
func (h *Handler) VisitAnalytics(w http.ResponseWriter, r *http.Request) {
	var req models.VisitAnalyticsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, ok := h.exchange(w, r.Context(), models.CmdGetVisitAnalytics, req)
	if !ok {
		return
	}

	var result models.VisitsPayload
	if !h.decodeResult(w, resp, &result) {
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DailySummary handles POST /api/analytics/daily.
func (h *Handler) DailySummary(w http.ResponseWriter, r *http.Request) {
	var req models.DailySummaryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, ok := h.exchange(w, r.Context(), models.CmdGetDailySummary, req)
	if !ok {
		return
	}

	var result models.SummaryPayload
	if !h.decodeResult(w, resp, &result) {
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decodeBody reads the JSON request body into v, answering 400 on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "malformed request body: " + err.Error(),
		})
		return false
	}
	return true
}

// exchange runs one command against the worker and maps channel failures to
// HTTP errors. Worker hangs and channel desyncs are reported retryable: the
// supervisor has already respawned the worker by the time the error surfaces.
func (h *Handler) exchange(w http.ResponseWriter, ctx context.Context, tag string, payload any) (models.Response, bool) {
	cmd, err := models.NewCommand(tag, payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return models.Response{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	resp, err := h.channel.Exchange(ctx, cmd)
	if err != nil {
		h.logger.Error().Err(err).Str("command", tag).Msg("Worker exchange failed")

		if errors.Is(err, supervisor.ErrWorkerHung) || errors.Is(err, supervisor.ErrChannel) {
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Message:   "worker unavailable, retry the request",
				Retryable: true,
			})
			return models.Response{}, false
		}

		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Message: "worker exchange failed",
		})
		return models.Response{}, false
	}

	return resp, true
}

// decodeResult unpacks a tagged response body, answering 502 when the worker
// sent something the gateway cannot interpret.
func (h *Handler) decodeResult(w http.ResponseWriter, resp models.Response, v any) bool {
	if err := resp.Decode(v); err != nil {
		h.logger.Error().Err(err).Str("tag", resp.Tag).Msg("Unexpected worker response")
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Message: "unexpected worker response",
		})
		return false
	}
	return true
}

// writeJSON renders a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
