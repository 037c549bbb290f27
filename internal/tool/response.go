package tool

import "strings"

// ContentTypeText is the only content kind mallgate produces.
const ContentTypeText = "text"

// Content is one block of a tool response.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the uniform result of every tool call, whether it succeeded,
// found nothing, or failed.
type Response struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`

	notFound bool
}

// TextResponse returns a successful single-block response.
func TextResponse(text string) *Response {
	return &Response{Content: []Content{{Type: ContentTypeText, Text: text}}}
}

// ErrorResponse returns an error-flagged single-block response.
func ErrorResponse(text string) *Response {
	r := TextResponse(text)
	r.IsError = true
	return r
}

// NotFoundResponse returns an informational response for an identifier
// that matched no rows. It is not error-flagged.
func NotFoundResponse(text string) *Response {
	r := TextResponse(text)
	r.notFound = true
	return r
}

// NotFound reports whether r was built by NotFoundResponse.
func (r *Response) NotFound() bool { return r.notFound }

// Text returns the concatenated text of all content blocks.
func (r *Response) Text() string {
	var b strings.Builder
	for _, c := range r.Content {
		b.WriteString(c.Text)
	}
	return b.String()
}
