package models

import (
	"time"

	"github.com/paulmach/orb"
)

// Alert is one parsed weather-warning document for a contiguous validity
// period. Type is the canonical alert label after dictionary mapping;
// unmapped provider types pass through verbatim.
type Alert struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Urgency     string        `json:"urgency"`
	Severity    string        `json:"severity"`
	Instruction string        `json:"instruction"`
	Areas       []string      `json:"areas"`
	Polygons    []orb.Polygon `json:"polygons"`
	Expires     time.Time     `json:"expires"`
}

// Expired reports whether the alert's validity window has passed at now.
func (a Alert) Expired(now time.Time) bool {
	return !a.Expires.IsZero() && a.Expires.Before(now)
}
