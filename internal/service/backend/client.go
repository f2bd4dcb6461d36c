package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/model/account"
	"github.com/zhouzirui/jarvik/webclient/internal/model/knowledge"
	"github.com/zhouzirui/jarvik/webclient/internal/service/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/service/transport"
)

// Backend endpoints outside of asking.
const (
	PathLogin           = "/login"
	PathModel           = "/model"
	PathFeedback        = "/feedback"
	PathTopics          = "/knowledge/topics"
	PathUpload          = "/knowledge/upload"
	PathPending         = "/knowledge/pending"
	PathApprove         = "/knowledge/approve"
	PathReject          = "/knowledge/reject"
	PathKnowledgeSearch = "/knowledge/search"
	PathKnowledgeReload = "/knowledge/reload"
	PathMemoryAdd       = "/memory/add"
	PathMemoryDelete    = "/memory/delete"
	PathMemorySearch    = "/memory/search"
)

// ErrInvalidRequest 表示请求在发送前未通过校验。
var ErrInvalidRequest = errors.New("invalid request")

// Doer is the transport the client relies on.
type Doer interface {
	Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error)
	DoJSON(ctx context.Context, method, path string, in, out any) error
}

// Client 封装 Jarvik 后端除提问以外的接口。
type Client struct {
	doer     Doer
	validate *validator.Validate
	log      *zap.Logger
}

// NewClient 创建后端客户端。
func NewClient(doer Doer, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		doer:     doer,
		validate: validator.New(),
		log:      log.With(zap.String("component", "backend")),
	}
}

func (c *Client) check(req any) error {
	if err := c.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed on %s", ErrInvalidRequest, strings.ToLower(f.Field()), f.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Login exchanges a nick and password for a bearer token.
func (c *Client) Login(ctx context.Context, req account.LoginRequest) (string, error) {
	if err := c.check(req); err != nil {
		return "", err
	}
	var resp account.LoginResponse
	if err := c.doer.DoJSON(ctx, http.MethodPost, PathLogin, req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", transport.NewProtocolError(http.StatusOK, errors.New("login response without token"))
	}
	c.log.Info("logged in", zap.String("nick", req.Nick))
	return resp.Token, nil
}

// Model returns the model the backend is running.
func (c *Client) Model(ctx context.Context) (account.ModelState, error) {
	var state account.ModelState
	err := c.doer.DoJSON(ctx, http.MethodGet, PathModel, nil, &state)
	return state, err
}

// SwitchModel asks the backend to restart with another model.
func (c *Client) SwitchModel(ctx context.Context, model string) (account.ModelState, error) {
	req := account.SwitchModelRequest{Model: strings.TrimSpace(model)}
	if err := c.check(req); err != nil {
		return account.ModelState{}, err
	}
	var state account.ModelState
	if err := c.doer.DoJSON(ctx, http.MethodPost, PathModel, req, &state); err != nil {
		return account.ModelState{}, err
	}
	if state.Model == "" {
		state.Model = req.Model
	}
	c.log.Info("model switched", zap.String("model", state.Model), zap.String("status", state.Status))
	return state, nil
}

// SendFeedback rates an answer.
func (c *Client) SendFeedback(ctx context.Context, fb account.Feedback) error {
	return c.doer.DoJSON(ctx, http.MethodPost, PathFeedback, fb, nil)
}

// Topics lists the knowledge base topics, sorted. The backend answers with
// either an object keyed by topic or a plain list.
func (c *Client) Topics(ctx context.Context) ([]string, error) {
	var raw json.RawMessage
	if err := c.doer.DoJSON(ctx, http.MethodGet, PathTopics, nil, &raw); err != nil {
		return nil, err
	}
	topics, err := parseTopics(raw)
	if err != nil {
		return nil, transport.NewProtocolError(http.StatusOK, err)
	}
	return topics, nil
}

func parseTopics(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []string{}, nil
	}

	var topics []string
	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, err
		}
		for k := range obj {
			topics = append(topics, k)
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			var name string
			if err := json.Unmarshal(item, &name); err != nil {
				name = strings.TrimSpace(string(item))
			}
			topics = append(topics, name)
		}
	default:
		return nil, fmt.Errorf("unexpected topics payload %q", string(trimmed))
	}

	sort.Strings(topics)
	if topics == nil {
		topics = []string{}
	}
	return topics, nil
}

// UploadKnowledge sends a document to the knowledge base.
func (c *Client) UploadKnowledge(ctx context.Context, req knowledge.UploadRequest) (knowledge.UploadResponse, error) {
	if err := c.check(req); err != nil {
		return knowledge.UploadResponse{}, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", req.Filename)
	if err != nil {
		return knowledge.UploadResponse{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return knowledge.UploadResponse{}, fmt.Errorf("copy document: %w", err)
	}
	private := "0"
	if req.Private {
		private = "1"
	}
	fields := [][2]string{
		{"private", private},
		{"description", req.Description},
		{"topic", req.Topic},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return knowledge.UploadResponse{}, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return knowledge.UploadResponse{}, fmt.Errorf("close multipart body: %w", err)
	}

	resp, err := c.doer.Do(ctx, http.MethodPost, PathUpload, &buf, w.FormDataContentType())
	if err != nil {
		return knowledge.UploadResponse{}, err
	}
	defer resp.Body.Close()

	var out knowledge.UploadResponse
	if err := transport.DecodeJSON(resp, &out); err != nil {
		return knowledge.UploadResponse{}, err
	}
	c.log.Info("knowledge uploaded",
		zap.String("file", out.File),
		zap.String("status", out.Status),
		zap.Bool("private", req.Private),
	)
	return out, nil
}

// Pending lists public uploads awaiting approval.
func (c *Client) Pending(ctx context.Context) ([]knowledge.PendingItem, error) {
	items := []knowledge.PendingItem{}
	if err := c.doer.DoJSON(ctx, http.MethodGet, PathPending, nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []knowledge.PendingItem{}
	}
	return items, nil
}

// Approve accepts a pending upload.
func (c *Client) Approve(ctx context.Context, file string) error {
	return c.review(ctx, PathApprove, file)
}

// Reject discards a pending upload.
func (c *Client) Reject(ctx context.Context, file string) error {
	return c.review(ctx, PathReject, file)
}

func (c *Client) review(ctx context.Context, path, file string) error {
	req := knowledge.ReviewRequest{File: strings.TrimSpace(file)}
	if err := c.check(req); err != nil {
		return err
	}
	if err := c.doer.DoJSON(ctx, http.MethodPost, path, req, nil); err != nil {
		return err
	}
	c.log.Info("knowledge reviewed", zap.String("path", path), zap.String("file", req.File))
	return nil
}

// DeleteMemory removes remembered exchanges. Without a filter the backend
// decides what to remove.
func (c *Client) DeleteMemory(ctx context.Context, req account.MemoryDeleteRequest) (string, error) {
	var resp account.MemoryDeleteResponse
	if err := c.doer.DoJSON(ctx, http.MethodPost, PathMemoryDelete, req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// AddMemory stores one exchange in the conversation memory.
func (c *Client) AddMemory(ctx context.Context, req account.MemoryAddRequest) error {
	if err := c.check(req); err != nil {
		return err
	}
	if err := c.doer.DoJSON(ctx, http.MethodPost, PathMemoryAdd, req, nil); err != nil {
		return err
	}
	c.log.Debug("memory entry added", zap.Bool("private", req.Private))
	return nil
}

// SearchMemory returns the entries matching query, or the latest entries
// when query is empty.
func (c *Client) SearchMemory(ctx context.Context, query string) ([]account.MemoryEntry, error) {
	path := PathMemorySearch
	if q := strings.TrimSpace(query); q != "" {
		path += "?" + url.Values{"q": {q}}.Encode()
	}
	entries := []account.MemoryEntry{}
	if err := c.doer.DoJSON(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []account.MemoryEntry{}
	}
	return entries, nil
}

// SearchKnowledge returns the knowledge chunks matching q.
func (c *Client) SearchKnowledge(ctx context.Context, q knowledge.SearchQuery) ([]string, error) {
	if err := c.check(q); err != nil {
		return nil, err
	}
	values := url.Values{"q": {q.Query}}
	if len(q.Topics) > 0 {
		values.Set("topics", strings.Join(q.Topics, ","))
	}
	if q.Threshold > 0 {
		values.Set("threshold", strconv.FormatFloat(q.Threshold, 'f', -1, 64))
	}

	chunks := []string{}
	if err := c.doer.DoJSON(ctx, http.MethodGet, PathKnowledgeSearch+"?"+values.Encode(), nil, &chunks); err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []string{}
	}
	return chunks, nil
}

// ReloadKnowledge makes the backend re-index its knowledge files.
func (c *Client) ReloadKnowledge(ctx context.Context) (knowledge.ReloadResponse, error) {
	var resp knowledge.ReloadResponse
	if err := c.doer.DoJSON(ctx, http.MethodPost, PathKnowledgeReload, nil, &resp); err != nil {
		return knowledge.ReloadResponse{}, err
	}
	c.log.Info("knowledge reloaded", zap.Int("chunks", resp.Chunks))
	return resp, nil
}

// File is a downloaded saved answer.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// maxDownloadSize caps saved answers held in memory.
const maxDownloadSize = 64 << 20

// Download fetches the file behind a download_url from a structured answer.
// Only URLs on the local or devlab backend are fetched.
func (c *Client) Download(ctx context.Context, downloadURL string) (*File, error) {
	if strings.TrimSpace(downloadURL) == "" {
		return nil, fmt.Errorf("%w: empty download url", ErrInvalidRequest)
	}

	resp, err := c.doer.Do(ctx, http.MethodGet, downloadURL, nil, "")
	if errors.Is(err, transport.ErrUntrustedHost) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !transport.IsSuccess(resp.StatusCode) {
		// 错误体走统一的解析逻辑。
		return nil, transport.DecodeJSON(resp, nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, transport.NewTransportError(fmt.Errorf("read download: %w", err))
	}

	name := ask.FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == ask.DefaultFilename {
		if base := lastSegment(downloadURL); base != "" {
			name = base
		}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &File{Name: name, ContentType: contentType, Data: data}, nil
}

func lastSegment(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
	}
	raw = strings.TrimRight(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	return raw
}
