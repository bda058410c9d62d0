package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

const fallbackLanguage = "en"

type QuestionOption struct {
	Key    string            `json:"key"`
	Labels map[string]string `json:"labels"`
}

// Question is a catalog entry. Labels are keyed by BCP 47 language tag.
type Question struct {
	ID               string
	ConfigID         *string
	Key              string
	Type             string
	Section          string
	DisplayOrder     int
	Labels           map[string]string
	Options          []QuestionOption
	ConditionalRules json.RawMessage
	IsRequired       bool
	IsEnabled        bool
	AllowNA          bool
}

type LocalizedOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type LocalizedQuestion struct {
	ID               string            `json:"id"`
	Key              string            `json:"key"`
	Type             string            `json:"type"`
	Section          string            `json:"section"`
	DisplayOrder     int               `json:"display_order"`
	Label            string            `json:"label"`
	Language         string            `json:"language"`
	Options          []LocalizedOption `json:"options"`
	ConditionalRules json.RawMessage   `json:"conditional_rules,omitempty"`
	IsRequired       bool              `json:"is_required"`
	AllowNA          bool              `json:"allow_na"`
}

// ResolveLanguage picks the first parseable tag from the candidates, which
// may be plain tags or Accept-Language header values.
func ResolveLanguage(candidates ...string) language.Tag {
	for _, candidate := range candidates {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(trimmed)
		if err == nil && len(tags) > 0 {
			return tags[0]
		}
		if tag, err := language.Parse(trimmed); err == nil {
			return tag
		}
	}
	return language.English
}

// Localize resolves the question and option labels for want.
func (q Question) Localize(want language.Tag) LocalizedQuestion {
	label, lang := pickLabel(q.Labels, want)
	options := make([]LocalizedOption, 0, len(q.Options))
	for _, option := range q.Options {
		optionLabel, _ := pickLabel(option.Labels, want)
		if optionLabel == "" {
			optionLabel = option.Key
		}
		options = append(options, LocalizedOption{Key: option.Key, Label: optionLabel})
	}
	if label == "" {
		label = q.Key
	}
	return LocalizedQuestion{
		ID:               q.ID,
		Key:              q.Key,
		Type:             q.Type,
		Section:          q.Section,
		DisplayOrder:     q.DisplayOrder,
		Label:            label,
		Language:         lang,
		Options:          options,
		ConditionalRules: q.ConditionalRules,
		IsRequired:       q.IsRequired,
		AllowNA:          q.AllowNA,
	}
}

func pickLabel(labels map[string]string, want language.Tag) (string, string) {
	if len(labels) == 0 {
		return "", ""
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tags := make([]language.Tag, 0, len(keys))
	tagKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		tag, err := language.Parse(key)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		tagKeys = append(tagKeys, key)
	}
	if len(tags) > 0 {
		_, index, confidence := language.NewMatcher(tags).Match(want)
		if confidence != language.No && index >= 0 && index < len(tagKeys) {
			return labels[tagKeys[index]], tagKeys[index]
		}
	}
	if label, ok := labels[fallbackLanguage]; ok {
		return label, fallbackLanguage
	}
	return labels[keys[0]], keys[0]
}

// ValidateAnswer checks that raw has the shape the question type expects.
func (q Question) ValidateAnswer(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: %s requires a value", ErrInvalidAnswerValue, q.Key)
	}
	switch strings.ToLower(q.Type) {
	case QuestionTypeRating:
		if _, err := ratingValue(trimmed); err != nil {
			return fmt.Errorf("%w: %s expects a number", ErrInvalidAnswerValue, q.Key)
		}
	case QuestionTypeMultiselect:
		var selected []string
		if err := json.Unmarshal(trimmed, &selected); err != nil {
			return fmt.Errorf("%w: %s expects a list of option keys", ErrInvalidAnswerValue, q.Key)
		}
		if len(q.Options) == 0 {
			return nil
		}
		allowed := make(map[string]struct{}, len(q.Options))
		for _, option := range q.Options {
			allowed[option.Key] = struct{}{}
		}
		for _, key := range selected {
			if _, ok := allowed[key]; !ok {
				return fmt.Errorf("%w: %s has no option %q", ErrInvalidAnswerValue, q.Key, key)
			}
		}
	case QuestionTypeText, QuestionTypeDemographic:
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("%w: %s expects text", ErrInvalidAnswerValue, q.Key)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownQuestionType, q.Type)
	}
	return nil
}
