package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/jarvik/webclient/internal/handler/respond"
	"github.com/zhouzirui/jarvik/webclient/internal/service/router"
	"github.com/zhouzirui/jarvik/webclient/pkg/utils"
)

// Service is the part of the request router that manages credentials and
// the target environment.
type Service interface {
	Session() (router.SessionState, error)
	Login(ctx context.Context, nick, password string) error
	Logout() error
	SetAPIKey(key string) error
	Environment() router.EnvState
	ToggleEnvironment() router.EnvState
	UseEnvironment(name string) (router.EnvState, error)
}

// Handler 会话与环境切换的HTTP处理器
type Handler struct {
	svc Service
}

// New 创建会话处理器
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleGetSession)
	r.Post("/session/login", h.handleLogin)
	r.Post("/session/logout", h.handleLogout)
	r.Post("/session/apikey", h.handleSetAPIKey)

	r.Get("/env", h.handleGetEnv)
	r.Post("/env", h.handleUseEnv)
	r.Post("/env/toggle", h.handleToggleEnv)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.Session()
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Nick     string `json:"nick"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.Login(r.Context(), payload.Nick, payload.Password); err != nil {
		respond.Error(w, err)
		return
	}
	h.handleGetSession(w, r)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(); err != nil {
		respond.Error(w, err)
		return
	}
	h.handleGetSession(w, r)
}

func (h *Handler) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		APIKey string `json:"apiKey"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.SetAPIKey(payload.APIKey); err != nil {
		respond.Error(w, err)
		return
	}
	h.handleGetSession(w, r)
}

func (h *Handler) handleGetEnv(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.Environment())
}

func (h *Handler) handleToggleEnv(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.svc.ToggleEnvironment())
}

func (h *Handler) handleUseEnv(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil || strings.TrimSpace(payload.Name) == "" {
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	state, err := h.svc.UseEnvironment(payload.Name)
	if err != nil {
		respond.Error(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}
