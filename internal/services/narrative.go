package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/utils"
)

const maxNarrativePrecursors = 5

var severityAr = map[database.Severity]string{
	database.SeverityCritical: "حرج",
	database.SeverityMajor:    "رئيسي",
	database.SeverityMinor:    "ثانوي",
	database.SeverityWarning:  "تحذير",
	database.SeverityInfo:     "معلوماتي",
}

// StoryFacts holds everything the narrative builders need, so they stay pure
// and testable without a database.
type StoryFacts struct {
	DetectedAt  time.Time
	Severity    database.Severity
	AssetName   string
	AssetNameAr string
	Precursors  []database.Event
	TopCause    string
	TopScore    float64
	Similar     []HistoricalMatch
}

// BuildNarrative renders the English incident story: detection line,
// precursor timeline, most likely cause, and historical precedent.
func BuildNarrative(f StoryFacts) string {
	var b strings.Builder

	asset := f.AssetName
	if asset == "" {
		asset = "an unidentified asset"
	}
	fmt.Fprintf(&b, "At %s, the system detected a %s severity incident on %s.",
		f.DetectedAt.UTC().Format("2006-01-02 15:04:05"), f.Severity, asset)

	if len(f.Precursors) > 0 {
		b.WriteString("\nThis was preceded by:")
		for i, ev := range f.Precursors {
			if i >= maxNarrativePrecursors {
				break
			}
			fmt.Fprintf(&b, "\n  - [%s] %s", ev.EventTime.UTC().Format("15:04:05"), ev.Summary)
		}
	}

	fmt.Fprintf(&b, "\nThe most likely root cause is %s with %.0f%% probability.",
		utils.HumanizeCategory(f.TopCause), f.TopScore*100)

	if len(f.Similar) > 0 {
		fmt.Fprintf(&b, "\nPast similar incidents (%s) showed the same pattern.",
			strings.Join(similarNumbers(f.Similar), ", "))
	}

	return b.String()
}

// BuildNarrativeAr renders the Arabic counterpart of BuildNarrative.
func BuildNarrativeAr(f StoryFacts) string {
	var b strings.Builder

	sev, ok := severityAr[f.Severity]
	if !ok {
		sev = string(f.Severity)
	}
	asset := f.AssetNameAr
	if asset == "" {
		asset = f.AssetName
	}
	if asset == "" {
		asset = "أصل غير محدد"
	}
	fmt.Fprintf(&b, "في %s، اكتشف النظام حادثة بخطورة %s على %s.",
		f.DetectedAt.UTC().Format("2006-01-02 15:04:05"), sev, asset)

	if len(f.Precursors) > 0 {
		b.WriteString("\nسبقتها الأحداث التالية:")
		for i, ev := range f.Precursors {
			if i >= maxNarrativePrecursors {
				break
			}
			fmt.Fprintf(&b, "\n  - [%s] %s", ev.EventTime.UTC().Format("15:04:05"), ev.Summary)
		}
	}

	fmt.Fprintf(&b, "\nالسبب الجذري الأكثر احتمالاً هو %s بنسبة %.0f%%.",
		utils.HumanizeCategory(f.TopCause), f.TopScore*100)

	if len(f.Similar) > 0 {
		fmt.Fprintf(&b, "\nأظهرت حوادث سابقة مماثلة (%s) نفس النمط.",
			strings.Join(similarNumbers(f.Similar), ", "))
	}

	return b.String()
}

func similarNumbers(matches []HistoricalMatch) []string {
	nums := make([]string, 0, 3)
	for i, m := range matches {
		if i >= 3 {
			break
		}
		nums = append(nums, m.IncidentNumber)
	}
	return nums
}
