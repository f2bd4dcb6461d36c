package ask

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/zhouzirui/jarvik/webclient/internal/model/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/service/transport"
)

// Response headers of the binary format.
const (
	HeaderAnswer = "X-Answer"
	HeaderDebug  = "X-Debug"
)

const (
	// DefaultFilename is used when Content-Disposition names no file.
	DefaultFilename = "response"
	// NoAnswerText stands in for a JSON success body without a response.
	NoAnswerText = "❌ The server returned no answer"
)

// maxBlobSize caps binary answers held in memory.
const maxBlobSize = 64 << 20

var filenamePattern = regexp.MustCompile(`filename="([^"]*)"`)

// BlobMinter turns binary content into a reference the caller can download
// and later revoke.
type BlobMinter interface {
	Mint(data []byte, filename, contentType string) (string, error)
}

type jsonAnswer struct {
	Response    *string         `json:"response"`
	Error       string          `json:"error"`
	Debug       json.RawMessage `json:"debug"`
	DownloadURL string          `json:"download_url"`
}

// Decode turns an ask response into a Result. It checks, in order: a failed
// status, a JSON body, and otherwise a binary body with header metadata. It
// never panics and never returns an error: every problem becomes a failure
// result. The response body is consumed but not closed.
func Decode(resp *http.Response, minter BlobMinter) ask.Result {
	if !transport.IsSuccess(resp.StatusCode) {
		return decodeNotOK(resp)
	}
	if transport.IsJSON(resp.Header) {
		return decodeJSON(resp)
	}
	return decodeBinary(resp, minter)
}

func decodeNotOK(resp *http.Response) ask.Result {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize))
	payload := transport.ParseErrorPayload(data)
	e := transport.NewStatusError(resp.StatusCode, payload.Error, payload.Debug)
	return ask.Failure(ask.ErrorKind(e.Kind), e.Message, e.Debug)
}

func decodeJSON(resp *http.Response) ask.Result {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize))
	if err != nil {
		return ask.Failure(ask.ErrorTransport, transport.MsgTransport, nil)
	}

	var body jsonAnswer
	if err := json.Unmarshal(data, &body); err != nil {
		return ask.Failure(ask.ErrorProtocol, transport.MsgInvalidResponse, nil)
	}

	answer := NoAnswerText
	switch {
	case body.Response != nil:
		answer = *body.Response
	case body.Error != "":
		answer = "❌ " + body.Error
	}

	var debug []string
	if len(body.Debug) > 0 {
		debug = transport.DebugLines(body.Debug)
	}
	return ask.Structured(answer, debug, body.DownloadURL)
}

func decodeBinary(resp *http.Response, minter BlobMinter) ask.Result {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize))
	if err != nil {
		return ask.Failure(ask.ErrorTransport, transport.MsgTransport, nil)
	}

	answer := headerText(resp.Header.Get(HeaderAnswer))
	debug := headerDebug(resp.Header.Get(HeaderDebug))
	filename := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ref, err := minter.Mint(data, filename, contentType)
	if err != nil {
		return ask.Failure(ask.ErrorProtocol, fmt.Sprintf("Could not keep the downloaded file: %v", err), debug)
	}
	return ask.Binary(answer, debug, ref, filename)
}

// FilenameFromDisposition extracts filename="..." from a Content-Disposition
// header, defaulting to DefaultFilename.
func FilenameFromDisposition(header string) string {
	m := filenamePattern.FindStringSubmatch(header)
	if len(m) < 2 || m[1] == "" {
		return DefaultFilename
	}
	return m[1]
}

// headerText undoes the percent-encoding servers use to put non-ASCII text
// in a header. Text that is not valid percent-encoding is returned as is.
func headerText(raw string) string {
	if !strings.Contains(raw, "%") {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func headerDebug(raw string) []string {
	raw = strings.TrimSpace(headerText(raw))
	if raw == "" {
		return []string{}
	}
	lines := transport.DebugLines(json.RawMessage(raw))
	if lines == nil {
		return []string{}
	}
	return lines
}
