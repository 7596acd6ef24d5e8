package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/relay-chat/backend/internal/handler/admin"
	"github.com/zhouzirui/relay-chat/backend/internal/handler/gateway"
	middlewarePkg "github.com/zhouzirui/relay-chat/backend/internal/middleware"
	"github.com/zhouzirui/relay-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. staticDir may be empty.
func NewRouter(gw *gateway.Gateway, adminHandler *admin.Handler, allowedOrigins []string, staticDir string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": gw.Connections(),
		})
	})

	gw.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		adminHandler.RegisterRoutes(api)
	})

	if staticDir != "" {
		mountStatic(r, staticDir, log)
	}

	return r
}

// mountStatic serves the chat page at "/", the admin page at "/admin" and every other
// file under dir.
func mountStatic(r chi.Router, dir string, log *zap.Logger) {
	if _, err := os.Stat(dir); err != nil {
		log.Warn("static directory unavailable", zap.String("dir", dir), zap.Error(err))
		return
	}

	page := func(name string) http.HandlerFunc {
		path := filepath.Join(dir, name)
		return func(w http.ResponseWriter, req *http.Request) {
			http.ServeFile(w, req, path)
		}
	}

	files := http.FileServer(http.Dir(dir))
	r.Get("/", page("index.html"))
	r.Get("/admin", page("admin.html"))
	r.Get("/*", files.ServeHTTP)
}
