package driver

import (
	"encoding/json"
	"io"

	"gale/internal/observ"
)

type timingPayload struct {
	Kind    string               `json:"kind"`
	Path    string               `json:"path,omitempty"`
	TotalMS float64              `json:"total_ms"`
	Phases  []observ.PhaseReport `json:"phases"`
}

// WriteTimings writes the phase report of one compilation as a JSON line.
func WriteTimings(w io.Writer, path string, report observ.Report) error {
	payload := timingPayload{
		Kind:    "compile",
		Path:    path,
		TotalMS: report.TotalMS,
		Phases:  report.Phases,
	}
	return json.NewEncoder(w).Encode(payload)
}
