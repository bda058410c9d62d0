package survey

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id",
	"session_id",
	"continent",
	"division",
	"role",
	"submitted_at",
	"completion_time_seconds",
	"config_id",
	"ratings",
	"multiselect",
	"text_responses",
	"na_responses",
}

// WriteCSV writes one row per record; the answer maps are JSON encoded.
func WriteCSV(w io.Writer, records []AggregatedResponse) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, record := range records {
		row := []string{
			record.ID,
			record.SessionID,
			record.Continent,
			record.Division,
			record.Role,
			timeOrEmpty(record.SubmittedAt),
			intOrEmpty(record.CompletionTimeSeconds),
			stringOrEmpty(record.ConfigID),
			mustJSON(record.Ratings),
			mustJSON(record.Multiselect),
			mustJSON(record.TextResponses),
			mustJSON(record.NAResponses),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func timeOrEmpty(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func intOrEmpty(value *int) string {
	if value == nil {
		return ""
	}
	return strconv.Itoa(*value)
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func mustJSON(input any) string {
	encoded, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
