package knowledge

import "io"

// UploadRequest adds a document to the knowledge base. Public uploads wait
// for approval, private ones go straight into the uploader's folder.
type UploadRequest struct {
	Filename    string    `validate:"required"`
	Content     io.Reader `validate:"required"`
	Private     bool
	Description string
	Topic       string
}

// UploadResponse is returned by the backend after an upload.
type UploadResponse struct {
	Status string `json:"status"`
	File   string `json:"file"`
}

// PendingItem is a public upload awaiting review.
type PendingItem struct {
	File          string `json:"file"`
	Uploader      string `json:"uploader,omitempty"`
	Topic         string `json:"topic,omitempty"`
	ProposedTopic string `json:"proposed_topic,omitempty"`
	Status        string `json:"status,omitempty"`
}

// ReviewRequest approves or rejects a pending upload.
type ReviewRequest struct {
	File string `json:"file" validate:"required"`
}

// ReloadResponse reports how many chunks the backend indexed.
type ReloadResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

// SearchQuery looks up knowledge chunks.
type SearchQuery struct {
	Query  string `validate:"required"`
	Topics []string
	// Threshold of zero leaves the backend default.
	Threshold float64 `validate:"gte=0,lte=1"`
}
