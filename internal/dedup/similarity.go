// Package dedup implements the global log of previously emitted messages
// and the near-duplicate heuristic over it. Detection is not keyed per
// conversation: the same reply leaving the system twice is a duplicate no
// matter which chats it went to.
package dedup

import (
	"strings"
)

// Thresholds for near-duplicate detection. Both must be exceeded; the
// values come from tuning against moderated traffic.
type Thresholds struct {
	WordOverlap float64
	CharOverlap float64
}

// DefaultThresholds returns the production cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{WordOverlap: 0.85, CharOverlap: 0.90}
}

// Normalize collapses whitespace and case for exact-match comparison.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// wordOverlapAlone flags a duplicate on word overlap by itself. One
// swapped word in a long message keeps the word set nearly intact while
// its trigram overlap can dip under the char cutoff.
const wordOverlapAlone = 0.9

// NearDuplicate reports whether a and b are the same message for
// practical purposes: exact after normalization, a near-identical word
// set, or above both overlap cutoffs.
func NearDuplicate(a, b string, t Thresholds) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return true
	}
	words := wordOverlap(na, nb)
	if words >= wordOverlapAlone {
		return true
	}
	return words >= t.WordOverlap && trigramOverlap(na, nb) >= t.CharOverlap
}

// wordOverlap is the Jaccard index over word sets.
func wordOverlap(a, b string) float64 {
	setA := toSet(strings.Fields(a))
	setB := toSet(strings.Fields(b))
	return jaccard(setA, setB)
}

// trigramOverlap is the Jaccard index over character trigrams; it catches
// rewordings that keep most of the characters.
func trigramOverlap(a, b string) float64 {
	return jaccard(trigrams(a), trigrams(b))
}

func trigrams(s string) map[string]struct{} {
	runes := []rune(s)
	set := make(map[string]struct{})
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var intersection int
	for item := range a {
		if _, ok := b[item]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
