package models

import "strings"

// RedactionMarker replaces sensitive field values in redacted events.
const RedactionMarker = "[redacted]"

// Redactor strips sensitive content from events whose originating window
// title matches a configured keyword.
//
// Policy: field-level redaction. A matching event keeps its kind, timestamps
// and cursor metadata, but the window title and the typed key are replaced
// with RedactionMarker. Events are never dropped outright, so the local log
// and the receiver still see that activity happened.
type Redactor struct {
	keywords []string
}

// NewRedactor builds a redactor from the configured sensitive title keywords.
// Keywords are matched case-insensitively as substrings of the window title.
func NewRedactor(keywords []string) *Redactor {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Redactor{keywords: lowered}
}

// Sensitive reports whether the window title matches any configured keyword.
func (r *Redactor) Sensitive(windowTitle string) bool {
	title := strings.ToLower(windowTitle)
	for _, kw := range r.keywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// Apply returns the event with sensitive fields redacted when its window
// title matches. Non-matching events are returned unchanged.
func (r *Redactor) Apply(e Event) Event {
	if !r.Sensitive(e.Window) {
		return e
	}
	e.Window = RedactionMarker
	if e.Key != "" {
		e.Key = RedactionMarker
	}
	e.Redacted = true
	return e
}
