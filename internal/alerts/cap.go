package alerts

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/kjstillabower/snowday-predictor/internal/models"
)

// Area names inside a CAP areaDesc are joined with this delimiter.
const areaDelimiter = " - "

type capDocument struct {
	XMLName xml.Name  `xml:"alert"`
	Infos   []capInfo `xml:"info"`
}

type capInfo struct {
	Language    string    `xml:"language"`
	Event       string    `xml:"event"`
	Urgency     string    `xml:"urgency"`
	Severity    string    `xml:"severity"`
	Expires     string    `xml:"expires"`
	Description string    `xml:"description"`
	Instruction string    `xml:"instruction"`
	Areas       []capArea `xml:"area"`
}

type capArea struct {
	AreaDesc string   `xml:"areaDesc"`
	Polygons []string `xml:"polygon"`
}

// parseCAP extracts alerts from one CAP XML document. Only info blocks in
// the target language survive; blocks that are expired at now, missing the
// event field, or unparseable are skipped rather than failing the document.
func parseCAP(data []byte, language string, now time.Time) ([]models.Alert, error) {
	var doc capDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cap document: %w", err)
	}

	var out []models.Alert
	for _, info := range doc.Infos {
		if !strings.EqualFold(strings.TrimSpace(info.Language), language) {
			continue
		}
		event := strings.TrimSpace(info.Event)
		if event == "" {
			continue
		}

		expires, err := parseCAPTime(info.Expires)
		if err != nil {
			// A block without a usable validity window is unusable.
			continue
		}
		if expires.Before(now) {
			continue
		}

		alert := models.Alert{
			Type:        Canonicalize(event),
			Description: info.Description,
			Urgency:     info.Urgency,
			Severity:    info.Severity,
			Instruction: info.Instruction,
			Expires:     expires,
		}
		for _, area := range info.Areas {
			alert.Areas = append(alert.Areas, splitAreaDesc(area.AreaDesc)...)
			for _, raw := range area.Polygons {
				if ring, ok := parsePolygon(raw); ok {
					alert.Polygons = append(alert.Polygons, orb.Polygon{ring})
				}
			}
		}
		out = append(out, alert)
	}
	return out, nil
}

// parseCAPTime normalizes the provider's timestamp to an absolute instant.
// CAP timestamps carry a numeric UTC offset (RFC 3339).
func parseCAPTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cap timestamp %q: %w", s, err)
	}
	return t, nil
}

func splitAreaDesc(desc string) []string {
	var out []string
	for _, name := range strings.Split(desc, areaDelimiter) {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// parsePolygon parses a whitespace-separated list of "lat,lon" pairs into a
// closed lon/lat ring. Rings with fewer than 3 distinct vertices are
// degenerate and discarded.
func parsePolygon(raw string) (orb.Ring, bool) {
	var ring orb.Ring
	for _, pair := range strings.Fields(raw) {
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, false
		}
		lat, err1 := parseFloat(parts[0])
		lon, err2 := parseFloat(parts[1])
		if err1 != nil || err2 != nil {
			return nil, false
		}
		ring = append(ring, orb.Point{lon, lat})
	}
	if len(ring) >= 2 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return nil, false
	}
	// Close the ring.
	ring = append(ring, ring[0])
	return ring, true
}
