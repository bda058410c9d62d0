package analysis

import "errors"

type ErrorKind string

const (
	KindInvalidInput  ErrorKind = "invalid_input"
	KindConfiguration ErrorKind = "configuration"
	KindNoData        ErrorKind = "no_data"
	KindStore         ErrorKind = "store"
	KindUpstream      ErrorKind = "upstream"
)

const (
	MessageNoMessages    = "No messages provided"
	MessageNotConfigured = "OPENAI_API_KEY is not configured"
	MessageNoData        = "No survey responses found with the applied filters"
	MessageStoreFailure  = "Failed to load survey responses"
	MessageUpstream      = "AI service request failed"
)

// Error carries a message that is safe to show to the caller; Err keeps the
// underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage resolves err to the text a client may see.
func SafeMessage(err error) string {
	var analysisErr *Error
	if errors.As(err, &analysisErr) {
		return analysisErr.Message
	}
	return "Failed to analyze survey responses"
}

// KindOf reports the error kind, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var analysisErr *Error
	if errors.As(err, &analysisErr) {
		return analysisErr.Kind
	}
	return ""
}
