package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"geminichat-backend/internal/handlers"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
)

func newTestRouter() http.Handler {
	log := logger.Nop()
	jwtAuth := middleware.NewJWTAuth("router-test-secret", time.Minute, time.Hour)
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }
	return New(
		jwtAuth,
		handlers.NewAuthHandler(nil, log),
		handlers.NewChatHandler(nil, log),
		handlers.NewStatusHandler(nil, log),
		ws,
		[]string{"*"},
		log,
	)
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/profile"},
		{http.MethodDelete, "/api/auth/profile"},
		{http.MethodPut, "/api/auth/password"},
		{http.MethodGet, "/api/chat/conversations"},
		{http.MethodPost, "/api/chat/conversations"},
		{http.MethodGet, "/api/chat/conversations/00000000-0000-0000-0000-000000000001/messages"},
		{http.MethodPost, "/api/chat/conversations/00000000-0000-0000-0000-000000000001/messages"},
		{http.MethodPatch, "/api/chat/conversations/00000000-0000-0000-0000-000000000001"},
		{http.MethodDelete, "/api/chat/conversations/00000000-0000-0000-0000-000000000001"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRefreshRequiresBearer(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWebSocketRouteMounted(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ws", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/chat/conversations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()

	newTestRouter().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
