// Package progress implements the client side of the per-job progress
// channel: a WebSocket stream keyed by job ID that carries one start frame
// from the client and a tagged sequence of status events from the server.
package progress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the event discriminator sent by the server.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusDownloading  Status = "downloading"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
	StatusError        Status = "error"
	StatusReconnected  Status = "reconnected"
)

// known reports whether s is part of the documented contract.
func (s Status) known() bool {
	switch s {
	case StatusInitializing, StatusDownloading, StatusProcessing,
		StatusCompleted, StatusCancelled, StatusError, StatusReconnected:
		return true
	}
	return false
}

// Event is one decoded server message.
type Event struct {
	Status  Status
	Message string

	// Progress payload (downloading, reconnected)
	Percent float64
	Speed   string
	ETA     string
	Total   string

	// Fragment counters enrich the display string only; they never drive
	// state transitions.
	FragmentIndex int
	FragmentCount int

	// Delivery descriptor (completed)
	Filename string
	FileURL  string
	Title    string
}

// DisplayStatus renders the human-readable progress line for the event.
func (e *Event) DisplayStatus() string {
	if e.Status != StatusDownloading {
		return e.Message
	}
	line := fmt.Sprintf("[download] %.1f%% of %s at %s ETA %s", e.Percent, e.Total, e.Speed, e.ETA)
	if e.FragmentCount > 0 {
		line += fmt.Sprintf(" (frag %d/%d)", e.FragmentIndex, e.FragmentCount)
	}
	return line
}

// wireEvent is the raw JSON shape. Numeric fields arrive as numbers or
// strings depending on the server path, so they decode through flexFloat.
type wireEvent struct {
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	Percent       flexFloat `json:"percent"`
	Speed         string    `json:"speed"`
	ETA           string    `json:"eta"`
	Total         string    `json:"total"`
	FragmentIndex int       `json:"fragment_index"`
	FragmentCount int       `json:"fragment_count"`
	Filename      string    `json:"filename"`
	FileURL       string    `json:"file_url"`
	Title         string    `json:"title"`
}

// flexFloat unmarshals a float from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", string(data))
	}
	*f = flexFloat(v)
	return nil
}

// DecodeEvent parses and validates one server message. The discriminator
// must be known and progress-bearing events must carry a percent within
// [0,100]; everything else is tolerated as enrichment.
func DecodeEvent(data []byte) (Event, error) {
	var raw wireEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("unparsable event: %w", err)
	}

	status := Status(raw.Status)
	if !status.known() {
		return Event{}, fmt.Errorf("unknown event status %q", raw.Status)
	}

	percent := float64(raw.Percent)
	if status == StatusDownloading || status == StatusReconnected {
		if percent < 0 || percent > 100 {
			return Event{}, fmt.Errorf("percent %v out of range", percent)
		}
	}

	return Event{
		Status:        status,
		Message:       raw.Message,
		Percent:       percent,
		Speed:         raw.Speed,
		ETA:           raw.ETA,
		Total:         raw.Total,
		FragmentIndex: raw.FragmentIndex,
		FragmentCount: raw.FragmentCount,
		Filename:      raw.Filename,
		FileURL:       raw.FileURL,
		Title:         raw.Title,
	}, nil
}
