package analysis

import (
	"fmt"
	"strings"
)

// PromptContext is everything the system prompt is built from.
type PromptContext struct {
	Filters    Filters
	Total      int
	Continents []BreakdownEntry
	Divisions  []BreakdownEntry
	Sample     []SampleRecord
}

func NewPromptContext(filters Filters, records []CitedRecord, sampleSize, payloadChars int) PromptContext {
	return PromptContext{
		Filters:    filters.Normalize(),
		Total:      len(records),
		Continents: Breakdown(records, continentOf),
		Divisions:  Breakdown(records, divisionOf),
		Sample:     Sample(records, sampleSize, payloadChars),
	}
}

func BuildSystemPrompt(pc PromptContext) string {
	lines := []string{
		"You are a survey analyst helping an administrator understand employee survey responses.",
		"Answer only from the survey data below. Never invent responses, numbers or quotes.",
		"If the data does not contain what the question asks for, say so plainly.",
		"Cite supporting responses with their ids in square brackets, for example [R-001] or [R-004, R-017].",
		"Only cite ids that appear in the evidence list.",
		"Include statistics where they help: counts and percentages of the retrieved responses.",
		"Answer in Markdown. Lead with the key finding in one sentence, then the supporting detail.",
		"Use a table when comparing three or more groups.",
		"Answer in the language of the user's latest message.",
		"",
		"Active filters: " + describeFilters(pc.Filters),
		fmt.Sprintf("Responses retrieved: %d (evidence below lists the newest %d)", pc.Total, len(pc.Sample)),
	}

	lines = append(lines, "", "Responses by continent:")
	lines = append(lines, breakdownLines(pc.Continents)...)
	lines = append(lines, "", "Responses by division:")
	lines = append(lines, breakdownLines(pc.Divisions)...)

	lines = append(lines, "", "Evidence:")
	for _, record := range pc.Sample {
		lines = append(lines, fmt.Sprintf(
			"[%s] continent=%s | division=%s | role=%s | data=%s",
			record.CitationID,
			valueOrUnknown(record.Continent),
			valueOrUnknown(record.Division),
			valueOrUnknown(record.Role),
			record.Payload,
		))
	}
	return strings.Join(lines, "\n")
}

func describeFilters(filters Filters) string {
	parts := make([]string, 0, 3)
	if filters.Continent != "" {
		parts = append(parts, "continent="+filters.Continent)
	}
	if filters.Division != "" {
		parts = append(parts, "division="+filters.Division)
	}
	if filters.Role != "" {
		parts = append(parts, "role="+filters.Role)
	}
	if len(parts) == 0 {
		return "none (all responses)"
	}
	return strings.Join(parts, ", ")
}

func breakdownLines(entries []BreakdownEntry) []string {
	if len(entries) == 0 {
		return []string{"- none"}
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("- %s: %d (%.1f%%)", entry.Value, entry.Count, entry.Percent))
	}
	return lines
}

func valueOrUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}

// WindowMessages keeps the last limit conversation messages as they were sent.
func WindowMessages(conversation []Message, limit int) []Message {
	if limit <= 0 || len(conversation) <= limit {
		out := make([]Message, len(conversation))
		copy(out, conversation)
		return out
	}
	out := make([]Message, limit)
	copy(out, conversation[len(conversation)-limit:])
	return out
}

// BuildMessages prepends the system prompt to the windowed conversation.
func BuildMessages(systemPrompt string, conversation []Message, limit int) []Message {
	window := WindowMessages(conversation, limit)
	messages := make([]Message, 0, len(window)+1)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	return append(messages, window...)
}
