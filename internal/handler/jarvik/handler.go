package jarvik

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/handler/respond"
	"github.com/zhouzirui/jarvik/webclient/internal/model/account"
	"github.com/zhouzirui/jarvik/webclient/internal/model/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/model/catalog"
	"github.com/zhouzirui/jarvik/webclient/internal/model/knowledge"
	"github.com/zhouzirui/jarvik/webclient/internal/service/backend"
	"github.com/zhouzirui/jarvik/webclient/pkg/utils"
)

// maxUploadSize 限制知识库上传大小。
const maxUploadSize = 32 << 20

// Service is the part of the request router that relays backend calls.
type Service interface {
	Model(ctx context.Context) (account.ModelState, error)
	SwitchModel(ctx context.Context, model string) (account.ModelState, error)
	SendFeedback(ctx context.Context, fb account.Feedback) error
	Topics(ctx context.Context) ([]string, error)
	UploadKnowledge(ctx context.Context, req knowledge.UploadRequest) (knowledge.UploadResponse, error)
	Pending(ctx context.Context) ([]knowledge.PendingItem, error)
	Approve(ctx context.Context, file string) error
	Reject(ctx context.Context, file string) error
	AddMemory(ctx context.Context, req account.MemoryAddRequest) error
	DeleteMemory(ctx context.Context, req account.MemoryDeleteRequest) (string, error)
	SearchMemory(ctx context.Context, query string) ([]account.MemoryEntry, error)
	SearchKnowledge(ctx context.Context, q knowledge.SearchQuery) ([]string, error)
	ReloadKnowledge(ctx context.Context) (knowledge.ReloadResponse, error)
	Download(ctx context.Context, downloadURL string) (*backend.File, error)
}

// Handler 转发模型、反馈、知识库与记忆相关请求。
type Handler struct {
	svc     Service
	catalog *catalog.Catalog
	log     *zap.Logger
}

// New 创建后端转发处理器
func New(svc Service, models *catalog.Catalog, log *zap.Logger) *Handler {
	if models == nil {
		models = catalog.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:     svc,
		catalog: models,
		log:     log.With(zap.String("component", "handler.jarvik")),
	}
}

// RegisterRoutes 注册转发路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/models", h.handleListModels)
	r.Get("/model", h.handleGetModel)
	r.Post("/model", h.handleSwitchModel)
	r.Post("/feedback", h.handleFeedback)
	r.Get("/download", h.handleDownload)

	r.Route("/knowledge", func(kr chi.Router) {
		kr.Get("/topics", h.handleTopics)
		kr.Post("/upload", h.handleUpload)
		kr.Get("/pending", h.handlePending)
		kr.Post("/approve", h.handleReview(true))
		kr.Post("/reject", h.handleReview(false))
		kr.Get("/search", h.handleSearchKnowledge)
		kr.Post("/reload", h.handleReload)
	})

	r.Route("/memory", func(mr chi.Router) {
		mr.Post("/add", h.handleAddMemory)
		mr.Post("/delete", h.handleDeleteMemory)
		mr.Get("/search", h.handleSearchMemory)
	})
}

func (h *Handler) handleListModels(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.catalog.List())
}

type modelView struct {
	account.ModelState
	Info *catalog.Model `json:"info,omitempty"`
}

func (h *Handler) describe(state account.ModelState) modelView {
	view := modelView{ModelState: state}
	if m, ok := h.catalog.Describe(state.Model); ok {
		view.Info = &m
	}
	return view
}

func (h *Handler) handleGetModel(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Model(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.describe(state))
}

func (h *Handler) handleSwitchModel(w http.ResponseWriter, r *http.Request) {
	var payload account.SwitchModelRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.svc.SwitchModel(r.Context(), payload.Model)
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.describe(state))
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Vote       string `json:"vote"`
		Question   string `json:"question"`
		Answer     string `json:"answer"`
		Correction string `json:"correction"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Vote != account.VoteGood && payload.Vote != account.VoteBad {
		utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("vote must be %q or %q", account.VoteGood, account.VoteBad))
		return
	}

	fb := account.NewFeedback(payload.Vote, payload.Question, payload.Answer, payload.Correction)
	if err := h.svc.SendFeedback(r.Context(), fb); err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDownload 代理回答中的 download_url，使浏览器无需携带凭证。
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Download(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		respond.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(f.Data); err != nil {
		h.log.Warn("failed to write download", zap.String("file", f.Name), zap.Error(err))
	}
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.svc.Topics(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, topics)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	resp, err := h.svc.UploadKnowledge(r.Context(), knowledge.UploadRequest{
		Filename:    header.Filename,
		Content:     file,
		Private:     r.FormValue("private") == "1" || strings.EqualFold(r.FormValue("private"), "true"),
		Description: r.FormValue("description"),
		Topic:       r.FormValue("topic"),
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Pending(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

func (h *Handler) handleReview(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload knowledge.ReviewRequest
		if err := utils.DecodeJSON(r, &payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		review, status := h.svc.Reject, "rejected"
		if approve {
			review, status = h.svc.Approve, "approved"
		}
		if err := review(r.Context(), payload.File); err != nil {
			respond.Error(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": status, "file": payload.File})
	}
}

func (h *Handler) handleSearchKnowledge(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := knowledge.SearchQuery{
		Query:  q.Get("q"),
		Topics: ask.ParseTopics(q.Get("topics")),
	}
	if raw := q.Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "threshold must be a number")
			return
		}
		query.Threshold = t
	}

	chunks, err := h.svc.SearchKnowledge(r.Context(), query)
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, chunks)
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ReloadKnowledge(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var payload account.MemoryAddRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.AddMemory(r.Context(), payload); err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	var payload account.MemoryDeleteRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.svc.DeleteMemory(r.Context(), payload)
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, account.MemoryDeleteResponse{Message: msg})
}

func (h *Handler) handleSearchMemory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.SearchMemory(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, entries)
}
