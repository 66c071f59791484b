package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Command tags recognized by the worker dispatcher.
const (
	CmdRegisterLocation         = "RegisterLocation"
	CmdGetLocation              = "GetLocation"
	CmdGenerateHeatmap          = "GenerateHeatmap"
	CmdGenerateSyntheticHeatmap = "GenerateSyntheticHeatmap"
	CmdGetVisitAnalytics        = "GetVisitAnalytics"
	CmdGetDailySummary          = "GetDailySummary"
	CmdHelp                     = "Help"
	CmdExit                     = "Exit"
)

// Response tags emitted by the worker dispatcher.
const (
	RespLocationRegistered = "LocationRegistered"
	RespLocationData       = "LocationData"
	RespHeatmap            = "Heatmap"
	RespVisitAnalytics     = "VisitAnalytics"
	RespDailySummary       = "DailySummary"
	RespMessage            = "Message"
)

// ErrBadEnvelope reports a wire message that is not a single-key tagged object
// or a bare tag string.
var ErrBadEnvelope = errors.New("message is not a tagged envelope")

// Command is an externally tagged request: either {"Tag": payload} or, for
// payload-less commands such as Help and Exit, the bare string "Tag".
type Command struct {
	Tag     string
	Payload json.RawMessage
}

// NewCommand builds a command from a tag and a payload value.
func NewCommand(tag string, payload any) (Command, error) {
	if payload == nil {
		return Command{Tag: tag}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("failed to encode %s payload: %w", tag, err)
	}
	return Command{Tag: tag, Payload: raw}, nil
}

// MarshalJSON renders the externally tagged form.
func (c Command) MarshalJSON() ([]byte, error) {
	if len(c.Payload) == 0 {
		return json.Marshal(c.Tag)
	}
	return json.Marshal(map[string]json.RawMessage{c.Tag: c.Payload})
}

// UnmarshalJSON accepts either a bare tag string or a single-key object.
func (c *Command) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Tag)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if len(envelope) != 1 {
		return fmt.Errorf("%w: expected exactly one tag, got %d", ErrBadEnvelope, len(envelope))
	}
	for tag, payload := range envelope {
		c.Tag = tag
		c.Payload = payload
	}
	return nil
}

// Bind decodes the command payload into v.
func (c Command) Bind(v any) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("command %s carries no payload", c.Tag)
	}
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", c.Tag, err)
	}
	return nil
}

// Response is an externally tagged result: {"Tag": body}. Body is set when a
// response is constructed locally; Raw is set when one is decoded off the
// wire. Decode works in either case.
type Response struct {
	Tag  string
	Body any
	Raw  json.RawMessage
}

// MarshalJSON renders the externally tagged form.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Body != nil {
		return json.Marshal(map[string]any{r.Tag: r.Body})
	}
	return json.Marshal(map[string]json.RawMessage{r.Tag: r.Raw})
}

// UnmarshalJSON expects a single-key tagged object.
func (r *Response) UnmarshalJSON(data []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if len(envelope) != 1 {
		return fmt.Errorf("%w: expected exactly one tag, got %d", ErrBadEnvelope, len(envelope))
	}
	for tag, body := range envelope {
		r.Tag = tag
		r.Raw = body
	}
	return nil
}

// Decode unpacks the response body into v.
func (r Response) Decode(v any) error {
	raw := r.Raw
	if raw == nil {
		var err error
		raw, err = json.Marshal(r.Body)
		if err != nil {
			return err
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed %s body: %w", r.Tag, err)
	}
	return nil
}

// RegisteredPayload is the body of a LocationRegistered response.
type RegisteredPayload struct {
	EncLocation string `json:"enc_location"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
}

// LocationPayload is the body of a LocationData response.
type LocationPayload struct {
	Location *Location `json:"location,omitempty"`
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
}

// HeatmapPayload is the body of a Heatmap response.
type HeatmapPayload struct {
	HeatmapResponse
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// VisitsPayload is the body of a VisitAnalytics response.
type VisitsPayload struct {
	Visits  []LocationVisit `json:"visits"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
}

// SummaryPayload is the body of a DailySummary response.
type SummaryPayload struct {
	Summary map[string]int `json:"summary"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
}

// MessagePayload is the body of a plain Message response, used for help text
// and for protocol-level failures.
type MessagePayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
