package api

import "github.com/qualitypulse/qualitypulse/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status           string               `json:"status"`
	MetricCount      int                  `json:"metric_count"`
	MeasuredCount    int                  `json:"measured_count"`
	OutdatedCount    int                  `json:"outdated_count"`
	MeasurementCount int                  `json:"measurement_count"`
	StatusCounts     map[types.Status]int `json:"status_counts"`
}

// ReceiveResponse is the payload for POST /api/v1/measurements.
type ReceiveResponse struct {
	Outcome       string `json:"outcome"`
	MeasurementID string `json:"measurement_id,omitempty"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
