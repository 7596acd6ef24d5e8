package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/zhouzirui/relay-chat/backend/internal/errs"
	adminService "github.com/zhouzirui/relay-chat/backend/internal/service/admin"
	"github.com/zhouzirui/relay-chat/backend/pkg/utils"
)

// TokenHeader carries the admin token on guarded requests.
const TokenHeader = "X-Admin-Token"

type tokenKey struct{}

// Handler 管理端 HTTP 处理器
type Handler struct {
	svc      *adminService.Service
	validate *validator.Validate
}

// New 创建管理端处理器
func New(svc *adminService.Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// RegisterRoutes mounts the admin API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(admin chi.Router) {
		admin.Post("/login", h.handleLogin)

		admin.Group(func(guarded chi.Router) {
			guarded.Use(h.requireAdmin)
			guarded.Post("/logout", h.handleLogout)
			guarded.Get("/users", h.handleListUsers)
			guarded.Post("/clear", h.handleClear)
		})
	})
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Password required")
		return
	}

	token, err := h.svc.Login(payload.Password)
	if errors.Is(err, errs.ErrUnauthorized) {
		utils.RespondError(w, http.StatusUnauthorized, "Invalid password")
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, token)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(tokenFrom(r.Context())); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListOnlineUsers(tokenFrom(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string][]string{"users": users})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.PurgeHistory(r.Context(), tokenFrom(r.Context())); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// requireAdmin rejects requests without a live token and stores the token in the context.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if _, err := h.svc.RequireAdmin(token); err != nil {
			respondServiceError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey{}, token)))
	})
}

// extractToken reads X-Admin-Token, then falls back to "Authorization: Bearer".
func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

func respondServiceError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		utils.RespondError(w, status, "Password required")
	case errors.Is(err, errs.ErrUnauthorized):
		utils.RespondError(w, status, "Unauthorized")
	case errors.Is(err, errs.ErrStorageFailure):
		utils.RespondError(w, status, "Failed to clear messages")
	default:
		utils.RespondError(w, status, "internal error")
	}
}
