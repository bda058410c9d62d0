package survey

import (
	"math"
	"sort"
)

type RatingStat struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

type Summary struct {
	Total          int                   `json:"total"`
	WithAnswers    int                   `json:"with_answers"`
	ByContinent    map[string]int        `json:"by_continent"`
	ByDivision     map[string]int        `json:"by_division"`
	ByRole         map[string]int        `json:"by_role"`
	RatingAverages map[string]RatingStat `json:"rating_averages"`
	NACounts       map[string]int        `json:"na_counts"`
}

// Summarize computes demographic counts and per-question rating statistics.
func Summarize(records []AggregatedResponse) Summary {
	summary := Summary{
		Total:          len(records),
		ByContinent:    map[string]int{},
		ByDivision:     map[string]int{},
		ByRole:         map[string]int{},
		RatingAverages: map[string]RatingStat{},
		NACounts:       map[string]int{},
	}
	sums := map[string]float64{}
	for _, record := range records {
		if record.AnswerCount() > 0 {
			summary.WithAnswers++
		}
		summary.ByContinent[labelOrUnknown(record.Continent)]++
		summary.ByDivision[labelOrUnknown(record.Division)]++
		summary.ByRole[labelOrUnknown(record.Role)]++
		for key, value := range record.Ratings {
			stat, ok := summary.RatingAverages[key]
			if !ok {
				stat = RatingStat{Min: value, Max: value}
			}
			stat.Count++
			stat.Min = math.Min(stat.Min, value)
			stat.Max = math.Max(stat.Max, value)
			summary.RatingAverages[key] = stat
			sums[key] += value
		}
		for key, na := range record.NAResponses {
			if na {
				summary.NACounts[key]++
			}
		}
	}
	for key, stat := range summary.RatingAverages {
		stat.Average = math.Round(sums[key]/float64(stat.Count)*100) / 100
		summary.RatingAverages[key] = stat
	}
	return summary
}

// SortNewestFirst orders records by submission time, undated last, ties by id.
func SortNewestFirst(records []AggregatedResponse) {
	sort.SliceStable(records, func(i, j int) bool {
		left, right := records[i].SubmittedAt, records[j].SubmittedAt
		switch {
		case left == nil && right == nil:
			return records[i].ID < records[j].ID
		case left == nil:
			return false
		case right == nil:
			return true
		case left.Equal(*right):
			return records[i].ID < records[j].ID
		default:
			return left.After(*right)
		}
	})
}

func labelOrUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
