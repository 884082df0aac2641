package alerts

import "strings"

// canonicalNames maps the provider's raw event vocabulary to the canonical
// alert labels used by the severity table. Unmapped types pass through
// verbatim.
var canonicalNames = map[string]string{
	"weather":          "Weather Advisory",
	"fog":              "Fog Advisory",
	"cold":             "Extreme Cold Warning",
	"freezing drizzle": "Freezing Drizzle Advisory",
	"freezing rain":    "Freezing Rain Warning",
	"arctic outflow":   "Arctic Outflow Warning",
	"snowfall":         "Snowfall Warning",
	"blowing snow":     "Blowing Snow Advisory",
	"winter storm":     "Winter Storm Watch",
	"snow squall":      "Snow Squall Warning",
}

// Canonicalize maps a raw provider event type to its canonical label.
// Unknown types are returned trimmed but otherwise untouched.
func Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if name, ok := canonicalNames[strings.ToLower(raw)]; ok {
		return name
	}
	return raw
}

// CanonicalLabels returns every label the dictionary can produce. The
// severity table is validated against this set at startup.
func CanonicalLabels() []string {
	out := make([]string, 0, len(canonicalNames))
	for _, v := range canonicalNames {
		out = append(out, v)
	}
	return out
}
