package pipeline

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// GeoLookup resolves a plausible nearby city for a known counterpart city.
type GeoLookup interface {
	NearbyCity(city string) (string, bool)
}

var locationQuestionRe = regexp.MustCompile(`(?i)(wo\s+wohnst\s+du|wo\s+lebst\s+du|wo\s+kommst\s+du\s+her|woher\s+kommst\s+du|aus\s+welcher\s+stadt|where\s+do\s+you\s+live|where\s+are\s+you\s+from)`)

// IsLocationQuestion reports whether the message asks for the persona's
// location.
func IsLocationQuestion(message string) bool {
	return locationQuestionRe.MatchString(message)
}

// Sub-districts appended to a disclosed city so the answer sounds lived-in
// without naming a verifiable address.
var subDistricts = []string{
	"Stadtmitte",
	"Nordviertel",
	"Südstadt",
	"Altstadt",
	"Westend",
	"am Stadtrand",
}

// LocationResolver answers location questions deterministically, without a
// generator call. It exists precisely to keep the generator from
// hallucinating geography.
type LocationResolver struct {
	geo GeoLookup
}

// NewLocationResolver wires the injected geo lookup.
func NewLocationResolver(geo GeoLookup) *LocationResolver {
	if geo == nil {
		panic("pipeline: geo lookup cannot be nil")
	}
	return &LocationResolver{geo: geo}
}

// Resolve produces the location answer. If the persona has a disclosed
// city, it answers with that city plus a sub-district chosen by a stable
// hash of the conversation (reproducible, no RNG). Otherwise it falls back
// to a city near the counterpart; if none resolves, the request escalates
// to a human rather than fabricating a location.
func (r *LocationResolver) Resolve(conversationID string, persona, counterpart Profile) (string, error) {
	if city := strings.TrimSpace(persona.City); city != "" {
		district := subDistricts[stableIndex(conversationID+"|"+city, len(subDistricts))]
		return fmt.Sprintf("Ich wohne in %s, %s. Und du, wo genau wohnst du?", city, district), nil
	}

	if counterpartCity := strings.TrimSpace(counterpart.City); counterpartCity != "" {
		if nearby, ok := r.geo.NearbyCity(counterpartCity); ok {
			return fmt.Sprintf("Ich komme aus %s, das ist gar nicht so weit von dir entfernt. Kennst du die Gegend?", nearby), nil
		}
	}

	return "", fmt.Errorf("%w: no persona city and no resolvable nearby city", ErrHumanEscalation)
}

func stableIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % n
}
