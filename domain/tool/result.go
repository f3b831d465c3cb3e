package tool

import (
	"strings"
	"time"
)

// Content is one item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the structured outcome of a tool call.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`

	// Duration is how long the execution took.
	Duration time.Duration `json:"-"`

	// Error is the cause of an error result.
	Error error `json:"-"`
}

// TextResult creates a successful result with one text item.
func TextResult(text string) Result {
	return Result{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult creates an error result carrying a human-readable message.
func ErrorResult(err error) Result {
	return Result{
		Content: []Content{{Type: "text", Text: err.Error()}},
		IsError: true,
		Error:   err,
	}
}

// WithDuration returns a copy with timing information.
func (r Result) WithDuration(d time.Duration) Result {
	r.Duration = d
	return r
}

// Text joins all text content.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}
