package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/model/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/service/transport"
)

// Backend endpoints for questions.
const (
	PathAsk     = "/ask"
	PathAskFile = "/ask_file"
	PathAskWeb  = "/ask_web"
)

// Routing policies for file-less questions.
const (
	// RouteSplit sends file-less questions to /ask.
	RouteSplit = "split"
	// RouteFile sends every question to /ask_file.
	RouteFile = "file"
)

// Sender performs one credentialed request against the active backend.
type Sender interface {
	Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error)
}

// Dispatcher sends questions and decodes the answers. It keeps no state
// between calls and never retries.
type Dispatcher struct {
	sender  Sender
	minter  BlobMinter
	routing string
	log     *zap.Logger
}

// NewDispatcher returns a Dispatcher. routing is RouteSplit or RouteFile;
// anything else behaves like RouteSplit.
func NewDispatcher(sender Sender, minter BlobMinter, routing string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if routing != RouteFile {
		routing = RouteSplit
	}
	return &Dispatcher{
		sender:  sender,
		minter:  minter,
		routing: routing,
		log:     log.With(zap.String("component", "ask")),
	}
}

// Endpoint returns the path a request is sent to. A web search question
// without a file always goes to /ask_web.
func (d *Dispatcher) Endpoint(req ask.Request) string {
	switch {
	case req.HasFile():
		return PathAskFile
	case req.Web:
		return PathAskWeb
	case d.routing == RouteFile:
		return PathAskFile
	}
	return PathAsk
}

// Dispatch sends req and returns exactly one result variant.
func (d *Dispatcher) Dispatch(ctx context.Context, req ask.Request) ask.Result {
	var (
		body        io.Reader
		contentType string
		err         error
	)
	if req.HasFile() {
		body, contentType, err = buildMultipart(req)
	} else {
		body, contentType, err = buildJSON(req)
	}
	if err != nil {
		d.log.Error("failed to encode question", zap.Error(err))
		return ask.Failure(ask.ErrorTransport, fmt.Sprintf("Could not prepare the request: %v", err), nil)
	}

	path := d.Endpoint(req)
	resp, err := d.sender.Do(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		d.log.Warn("question not delivered", zap.String("path", path), zap.Error(err))
		return ask.Failure(ask.ErrorTransport, transport.Message(err), nil)
	}
	defer resp.Body.Close()

	result := Decode(resp, d.minter)
	d.log.Info("question answered",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("kind", string(result.Kind)),
		zap.Int("debugLines", len(result.Debug)),
	)
	return result
}

type jsonQuestion struct {
	Message string `json:"message"`
	Private bool   `json:"private"`
	Topics  string `json:"topics,omitempty"`
	Save    bool   `json:"save,omitempty"`
}

func buildJSON(req ask.Request) (io.Reader, string, error) {
	data, err := json.Marshal(jsonQuestion{
		Message: req.Message,
		Private: req.Private,
		Topics:  req.TopicsField(),
		Save:    req.Save,
	})
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), "application/json", nil
}

func buildMultipart(req ask.Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"message", req.Message},
		{"private", req.PrivateField()},
	}
	if topics := req.TopicsField(); topics != "" {
		fields = append(fields, [2]string{"topics", topics})
	}
	if req.Save {
		fields = append(fields, [2]string{"save", "1"})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	name := req.File.Name
	if name == "" {
		name = "upload"
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, req.File.Content); err != nil {
		return nil, "", fmt.Errorf("copy attachment: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
