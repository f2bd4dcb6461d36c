package ask

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/handler/respond"
	"github.com/zhouzirui/jarvik/webclient/internal/model/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/service/blob"
	"github.com/zhouzirui/jarvik/webclient/pkg/utils"
)

// HeaderClientID identifies a page so its previous download can be revoked.
const HeaderClientID = "X-Client-ID"

// maxUploadSize 限制单次提问附件大小。
const maxUploadSize = 32 << 20

// Service is what the handler needs from the request router.
type Service interface {
	Ask(ctx context.Context, req ask.Request) ask.Result
	Blob(ref string) (*blob.Blob, error)
	RevokeBlob(ref string)
}

// Handler 提问与下载的HTTP处理器
type Handler struct {
	svc Service
	log *zap.Logger

	mu   sync.Mutex
	last map[string]string
}

// New 创建提问处理器
func New(svc Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:  svc,
		log:  log.With(zap.String("component", "handler.ask")),
		last: make(map[string]string),
	}
}

// RegisterRoutes 注册提问相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ask", h.handleAsk)
	r.Get("/blobs/{id}", h.handleGetBlob)
	r.Delete("/blobs/{id}", h.handleDeleteBlob)
}

type askPayload struct {
	Message string `json:"message"`
	Private bool   `json:"private"`
	Topics  string `json:"topics"`
	Save    bool   `json:"save"`
	Web     bool   `json:"web"`
}

// handleAsk 转发提问。结果总是以 200 返回，失败信息在结果体中。
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, err := parseAsk(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.svc.Ask(r.Context(), req)
	ref := ""
	if result.Kind == ask.KindBinary {
		ref = result.BlobURL
	}
	h.replace(clientID(r), ref)
	utils.RespondJSON(w, http.StatusOK, result)
}

// replace revokes the client's previous download, whatever the new answer
// is, and keeps ref (empty when the answer carries no blob) as the current one.
func (h *Handler) replace(client, ref string) {
	h.mu.Lock()
	prev := h.last[client]
	if ref == "" {
		delete(h.last, client)
	} else {
		h.last[client] = ref
	}
	h.mu.Unlock()

	if prev != "" && prev != ref {
		h.svc.RevokeBlob(prev)
		h.log.Debug("previous download revoked", zap.String("client", client), zap.String("ref", prev))
	}
}

func clientID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderClientID)); id != "" {
		return id
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseAsk(r *http.Request) (ask.Request, error) {
	var req ask.Request
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			return req, fmt.Errorf("invalid multipart body: %w", err)
		}
		req.Message = r.FormValue("message")
		req.Private = formBool(r.FormValue("private"))
		req.Topics = ask.ParseTopics(r.FormValue("topics"))
		req.Save = formBool(r.FormValue("save"))
		req.Web = formBool(r.FormValue("web"))

		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			data, err := io.ReadAll(file)
			if err != nil {
				return req, fmt.Errorf("read attachment: %w", err)
			}
			req.File = &ask.Attachment{Name: header.Filename, Content: bytes.NewReader(data)}
		case !errors.Is(err, http.ErrMissingFile):
			return req, fmt.Errorf("invalid attachment: %w", err)
		}
	} else {
		var payload askPayload
		if err := utils.DecodeJSON(r, &payload); err != nil {
			return req, errors.New("invalid request body")
		}
		req.Message = payload.Message
		req.Private = payload.Private
		req.Topics = ask.ParseTopics(payload.Topics)
		req.Save = payload.Save
		req.Web = payload.Web
	}

	if strings.TrimSpace(req.Message) == "" && req.File == nil {
		return req, errors.New("message or file is required")
	}
	if req.Web && req.File != nil {
		return req, errors.New("web search cannot be combined with a file")
	}
	return req, nil
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true
	}
	b, _ := strconv.ParseBool(strings.TrimSpace(v))
	return b
}

// handleGetBlob 下载二进制回答。
func (h *Handler) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Blob(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", b.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", b.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b.Data); err != nil {
		h.log.Warn("failed to write download", zap.String("id", b.ID), zap.Error(err))
	}
}

// handleDeleteBlob 撤销下载引用。
func (h *Handler) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	h.svc.RevokeBlob(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
