package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
	adminService "github.com/zhouzirui/relay-chat/backend/internal/service/admin"
	"github.com/zhouzirui/relay-chat/backend/internal/service/broadcast"
	"github.com/zhouzirui/relay-chat/backend/internal/service/session"
	"github.com/zhouzirui/relay-chat/backend/internal/store"
)

const testPassword = "letmein"

type namedConn string

func (n namedConn) ID() string { return string(n) }

type brokenPurger struct{}

func (brokenPurger) ClearMessages(context.Context) error { return errors.New("disk gone") }

func setupRouter(t *testing.T, purger adminService.HistoryPurger) (*chi.Mux, *session.Registry) {
	t.Helper()
	verifier, err := adminService.NewPasswordVerifier(testPassword, "")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	registry := session.NewRegistry()
	svc := adminService.NewService(verifier, registry, purger, broadcast.NewRouter(zap.NewNop()), 0, zap.NewNop())

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r, registry
}

func doJSON(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func login(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := doJSON(r, http.MethodPost, "/admin/login", `{"password":"`+testPassword+`"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var token adminService.Token
	if err := json.Unmarshal(resp.Body.Bytes(), &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if token.Value == "" {
		t.Fatal("expected token value")
	}
	return token.Value
}

func errorMessage(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

func TestLoginSuccess(t *testing.T) {
	r, _ := setupRouter(t, store.NewMemoryStore(10))
	login(t, r)
}

func TestLoginRejections(t *testing.T) {
	r, _ := setupRouter(t, store.NewMemoryStore(10))

	cases := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"missing password", `{}`, http.StatusBadRequest, "Password required"},
		{"empty password", `{"password":""}`, http.StatusBadRequest, "Password required"},
		{"malformed body", `{`, http.StatusBadRequest, "invalid request body"},
		{"wrong password", `{"password":"nope"}`, http.StatusUnauthorized, "Invalid password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(r, http.MethodPost, "/admin/login", tc.body, nil)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			if got := errorMessage(t, resp); got != tc.msg {
				t.Fatalf("expected %q, got %q", tc.msg, got)
			}
		})
	}
}

func TestListUsersRequiresToken(t *testing.T) {
	r, registry := setupRouter(t, store.NewMemoryStore(10))
	if _, err := registry.Bind("bob", namedConn("c2")); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := registry.Bind("alice", namedConn("c1")); err != nil {
		t.Fatalf("bind: %v", err)
	}

	resp := doJSON(r, http.MethodGet, "/admin/users", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp = doJSON(r, http.MethodGet, "/admin/users", "", map[string]string{TokenHeader: "forged"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with forged token, got %d", resp.Code)
	}

	token := login(t, r)
	for _, header := range []map[string]string{
		{TokenHeader: token},
		{"Authorization": "Bearer " + token},
	} {
		resp = doJSON(r, http.MethodGet, "/admin/users", "", header)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
		var body struct {
			Users []string `json:"users"`
		}
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode users: %v", err)
		}
		if len(body.Users) != 2 || body.Users[0] != "alice" || body.Users[1] != "bob" {
			t.Fatalf("unexpected users %v", body.Users)
		}
	}
}

func TestClearHistory(t *testing.T) {
	messages := store.NewMemoryStore(10)
	if err := messages.SaveMessage(context.Background(), chat.Message{ID: "m1", Username: "alice", Text: "hi"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	r, _ := setupRouter(t, messages)

	resp := doJSON(r, http.MethodPost, "/admin/clear", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	token := login(t, r)
	resp = doJSON(r, http.MethodPost, "/admin/clear", "", map[string]string{TokenHeader: token})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	left, err := messages.RecentMessages(context.Background())
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(left))
	}
}

func TestClearHistoryStorageFailure(t *testing.T) {
	r, _ := setupRouter(t, brokenPurger{})
	token := login(t, r)

	resp := doJSON(r, http.MethodPost, "/admin/clear", "", map[string]string{TokenHeader: token})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := errorMessage(t, resp); got != "Failed to clear messages" {
		t.Fatalf("unexpected error %q", got)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	r, _ := setupRouter(t, store.NewMemoryStore(10))
	token := login(t, r)
	header := map[string]string{TokenHeader: token}

	resp := doJSON(r, http.MethodPost, "/admin/logout", "", header)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = doJSON(r, http.MethodGet, "/admin/users", "", header)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.Code)
	}
}
