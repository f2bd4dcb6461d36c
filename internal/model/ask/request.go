package ask

import (
	"io"
	"strings"
)

// Attachment is a file sent along with a question.
type Attachment struct {
	Name    string
	Content io.Reader
}

// Request is one ask submission. It is built fresh for every submission and
// never modified once dispatched.
type Request struct {
	Message string
	File    *Attachment
	Private bool
	Topics  []string
	// Save asks the backend to store the answer as a downloadable file.
	Save bool
	// Web searches the web before answering. Ignored when a file is attached.
	Web bool
}

// HasFile reports whether a file is attached.
func (r Request) HasFile() bool {
	return r.File != nil && r.File.Content != nil
}

// PrivateField is the wire value of the private flag.
func (r Request) PrivateField() string {
	if r.Private {
		return "1"
	}
	return "0"
}

// TopicsField joins the topics with commas, dropping blanks and duplicates.
// Empty means the field is omitted.
func (r Request) TopicsField() string {
	seen := make(map[string]struct{}, len(r.Topics))
	out := make([]string, 0, len(r.Topics))
	for _, topic := range r.Topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	return strings.Join(out, ",")
}

// ParseTopics splits a comma separated topic list.
func ParseTopics(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	topics := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			topics = append(topics, part)
		}
	}
	return topics
}
