package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowMessages(t *testing.T) {
	full := conversation(15)
	window := WindowMessages(full, 10)
	require.Len(t, window, 10)
	assert.Equal(t, full[5:], window)

	short := conversation(3)
	assert.Equal(t, short, WindowMessages(short, 10))
}

func TestBuildMessagesPrependsSystemPrompt(t *testing.T) {
	messages := BuildMessages("prompt", conversation(4), 10)
	require.Len(t, messages, 5)
	assert.Equal(t, Message{Role: "system", Content: "prompt"}, messages[0])
	assert.Equal(t, "message 3", messages[4].Content)
}

func TestBuildSystemPromptWithoutFilters(t *testing.T) {
	records := AssignCitations([]EvidenceRecord{
		{Continent: "Europe", Division: "eng", Role: "ic", Payload: []byte(`{"ratings":{"q1":5}}`)},
		{Division: "ops"},
	})
	prompt := BuildSystemPrompt(NewPromptContext(Filters{}, records, 50, 300))

	assert.Contains(t, prompt, "Active filters: none (all responses)")
	assert.Contains(t, prompt, "Responses retrieved: 2 (evidence below lists the newest 2)")
	assert.Contains(t, prompt, `[R-001] continent=Europe | division=eng | role=ic | data={"ratings":{"q1":5}}`)
	assert.Contains(t, prompt, "[R-002] continent=unknown | division=ops | role=unknown")
	assert.Contains(t, prompt, "- eng: 1 (50.0%)")
	assert.Contains(t, prompt, "- Unknown: 1 (50.0%)")
}
