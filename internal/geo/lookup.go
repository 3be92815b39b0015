// Package geo resolves a plausible nearby city for a counterpart's city.
// The table is static; the pipeline never fabricates geography beyond it.
package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// StaticLookup maps a city to one nearby city. Lookups are
// case-insensitive.
type StaticLookup struct {
	nearby map[string]string
}

// defaultNearby covers the metropolitan areas most traffic comes from.
var defaultNearby = map[string]string{
	"berlin":     "Potsdam",
	"potsdam":    "Berlin",
	"hamburg":    "Lüneburg",
	"münchen":    "Augsburg",
	"muenchen":   "Augsburg",
	"köln":       "Leverkusen",
	"koeln":      "Leverkusen",
	"frankfurt":  "Offenbach",
	"stuttgart":  "Esslingen",
	"düsseldorf": "Neuss",
	"duesseldorf": "Neuss",
	"leipzig":    "Halle",
	"dresden":    "Radebeul",
	"hannover":   "Laatzen",
	"nürnberg":   "Fürth",
	"nuernberg":  "Fürth",
	"bremen":     "Delmenhorst",
	"essen":      "Bochum",
	"dortmund":   "Witten",
	"wien":       "Klosterneuburg",
	"zürich":     "Winterthur",
	"zuerich":    "Winterthur",
}

// NewStaticLookup returns the built-in table.
func NewStaticLookup() *StaticLookup {
	return &StaticLookup{nearby: defaultNearby}
}

// NewStaticLookupFromFile loads a {"city": "nearby city"} JSON table,
// merged over the built-in defaults.
func NewStaticLookupFromFile(path string) (*StaticLookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geo: read %s: %w", path, err)
	}
	var table map[string]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("geo: decode %s: %w", path, err)
	}

	merged := make(map[string]string, len(defaultNearby)+len(table))
	for k, v := range defaultNearby {
		merged[k] = v
	}
	for k, v := range table {
		merged[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &StaticLookup{nearby: merged}, nil
}

// NearbyCity resolves a nearby city, reporting false when the table has
// no entry.
func (l *StaticLookup) NearbyCity(city string) (string, bool) {
	nearby, ok := l.nearby[strings.ToLower(strings.TrimSpace(city))]
	return nearby, ok
}
