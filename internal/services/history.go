package services

import (
	"sort"

	"github.com/industriq/blackbox/internal/database"
)

// Historical-pattern matching parameters. The 0.5 similarity threshold is an
// uncalibrated operational default; keep it overridable.
const (
	DefaultSimilarityThreshold = 0.5
	DefaultHistoryLimit        = 50
	DefaultMaxHistoricalMatch  = 5
)

// HistoricalMatch is one prior incident whose event pattern resembles the
// current window.
type HistoricalMatch struct {
	IncidentID     string  `json:"incident_id"`
	IncidentNumber string  `json:"incident_number"`
	Similarity     float64 `json:"similarity"`
	RootCause      string  `json:"root_cause"`
	Confidence     float64 `json:"confidence"`
}

// MatchHistoricalIncidents compares the current window's event-category set
// against the recorded category set of each RCA-completed historical
// incident using Jaccard similarity. Matches at or above the threshold are
// returned best first, capped at maxMatches. Pure function.
func MatchHistoricalIncidents(windowCategories []string, historical []database.Incident, threshold float64, maxMatches int) []HistoricalMatch {
	current := make(map[string]struct{}, len(windowCategories))
	for _, c := range windowCategories {
		current[c] = struct{}{}
	}

	var matches []HistoricalMatch
	for i := range historical {
		hist := &historical[i]
		if len(hist.WindowCategories) == 0 {
			continue
		}

		similarity := jaccard(current, hist.WindowCategories)
		if similarity < threshold {
			continue
		}

		cause, confidence := hist.TopCause()
		matches = append(matches, HistoricalMatch{
			IncidentID:     hist.ID,
			IncidentNumber: hist.IncidentNumber,
			Similarity:     similarity,
			RootCause:      cause,
			Confidence:     confidence,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].IncidentNumber > matches[j].IncidentNumber
	})

	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches
}

// jaccard computes intersection-over-union between the current category set
// and a historical category list.
func jaccard(current map[string]struct{}, histCategories []string) float64 {
	hist := make(map[string]struct{}, len(histCategories))
	for _, c := range histCategories {
		hist[c] = struct{}{}
	}

	overlap := 0
	for c := range current {
		if _, ok := hist[c]; ok {
			overlap++
		}
	}

	union := len(hist)
	for c := range current {
		if _, ok := hist[c]; !ok {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(overlap) / float64(union)
}
