package ask

// Kind tags which variant of Result is populated.
type Kind string

const (
	KindStructured Kind = "structured"
	KindBinary     Kind = "binary"
	KindFailure    Kind = "failure"
)

// ErrorKind classifies a failure.
type ErrorKind string

const (
	ErrorTransport ErrorKind = "transport"
	ErrorServer    ErrorKind = "server"
	ErrorProtocol  ErrorKind = "protocol"
	ErrorAuth      ErrorKind = "auth"
)

// Result is the outcome of one ask. Exactly one variant is populated:
//
//   - structured: Answer, Debug, DownloadURL (optional)
//   - binary:     Answer, Debug, BlobURL, Filename
//   - failure:    Error, ErrorKind, Debug
//
// A binary result owns a blob reference that the caller must revoke once it
// is no longer displayed.
type Result struct {
	Kind        Kind      `json:"kind"`
	Answer      string    `json:"answer,omitempty"`
	Debug       []string  `json:"debug"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	BlobURL     string    `json:"blobUrl,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   ErrorKind `json:"errorKind,omitempty"`
}

// Structured builds the JSON variant.
func Structured(answer string, debug []string, downloadURL string) Result {
	return Result{Kind: KindStructured, Answer: answer, Debug: nonNil(debug), DownloadURL: downloadURL}
}

// Binary builds the header-encoded blob variant.
func Binary(answer string, debug []string, blobURL, filename string) Result {
	return Result{Kind: KindBinary, Answer: answer, Debug: nonNil(debug), BlobURL: blobURL, Filename: filename}
}

// Failure builds the error variant.
func Failure(kind ErrorKind, message string, debug []string) Result {
	return Result{Kind: KindFailure, Error: message, ErrorKind: kind, Debug: nonNil(debug)}
}

// Failed reports whether the result is the error variant.
func (r Result) Failed() bool {
	return r.Kind == KindFailure
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
