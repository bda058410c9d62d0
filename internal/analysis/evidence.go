package analysis

import (
	"fmt"
	"sort"
)

// CitedRecord is an EvidenceRecord with its display id.
type CitedRecord struct {
	CitationID string
	EvidenceRecord
}

type BreakdownEntry struct {
	Value   string
	Count   int
	Percent float64
}

// CitationID formats the 1-based index as R-001, R-002, ...
func CitationID(index int) string {
	return fmt.Sprintf("R-%03d", index)
}

// AssignCitations labels records in the order given.
func AssignCitations(records []EvidenceRecord) []CitedRecord {
	cited := make([]CitedRecord, len(records))
	for i, record := range records {
		cited[i] = CitedRecord{CitationID: CitationID(i + 1), EvidenceRecord: record}
	}
	return cited
}

// Breakdown counts field values across all records, most frequent first.
func Breakdown(records []CitedRecord, field func(EvidenceRecord) string) []BreakdownEntry {
	if len(records) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, record := range records {
		value := field(record.EvidenceRecord)
		if value == "" {
			value = "Unknown"
		}
		counts[value]++
	}
	entries := make([]BreakdownEntry, 0, len(counts))
	for value, count := range counts {
		entries = append(entries, BreakdownEntry{
			Value:   value,
			Count:   count,
			Percent: float64(count) * 100 / float64(len(records)),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Value < entries[j].Value
	})
	return entries
}

func continentOf(record EvidenceRecord) string { return record.Continent }

func divisionOf(record EvidenceRecord) string { return record.Division }

type SampleRecord struct {
	CitationID string
	Continent  string
	Division   string
	Role       string
	Payload    string
}

// Sample keeps the first size records with payloads cut to payloadChars
// characters.
func Sample(records []CitedRecord, size, payloadChars int) []SampleRecord {
	if size > len(records) {
		size = len(records)
	}
	if size < 0 {
		size = 0
	}
	sample := make([]SampleRecord, 0, size)
	for _, record := range records[:size] {
		sample = append(sample, SampleRecord{
			CitationID: record.CitationID,
			Continent:  record.Continent,
			Division:   record.Division,
			Role:       record.Role,
			Payload:    truncateRunes(string(record.Payload), payloadChars),
		})
	}
	return sample
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
