package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	activityHandler "github.com/zhouzirui/jarvik/webclient/internal/handler/activity"
	askHandler "github.com/zhouzirui/jarvik/webclient/internal/handler/ask"
	jarvikHandler "github.com/zhouzirui/jarvik/webclient/internal/handler/jarvik"
	sessionHandler "github.com/zhouzirui/jarvik/webclient/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/jarvik/webclient/internal/middleware"
	"github.com/zhouzirui/jarvik/webclient/internal/model/catalog"
	"github.com/zhouzirui/jarvik/webclient/internal/service/router"
	"github.com/zhouzirui/jarvik/webclient/pkg/utils"
)

// NewRouter wires HTTP routes to the request router.
func NewRouter(rr *router.Router, models *catalog.Catalog, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"backend": rr.Environment().Label,
		})
	})

	r.Route("/api", func(api chi.Router) {
		sessionHandler.New(rr).RegisterRoutes(api)
		askHandler.New(rr, log).RegisterRoutes(api)
		jarvikHandler.New(rr, models, log).RegisterRoutes(api)
		activityHandler.New(rr.Activity(), log).RegisterRoutes(api)
	})

	return r
}
