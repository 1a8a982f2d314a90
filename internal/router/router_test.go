package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-account-go/internal/user/repo"
)

func newTestServer(t *testing.T, origins ...string) (http.Handler, *auth.TokenIssuer) {
	t.Helper()
	tokens, err := auth.NewTokenIssuer("router-secret", time.Hour, "test")
	require.NoError(t, err)
	lg := zap.NewNop().Sugar()
	svc := user.NewUserService(userrepo.NewMemoryUserRepo(), auth.NewBcryptHasher(bcrypt.MinCost), tokens, lg)
	return RegisterRoutes(lg, Options{
		Users:          user.NewHandler(svc, lg),
		Verifier:       tokens,
		AllowedOrigins: origins,
	}), tokens
}

func send(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterRoutes_SignupLoginMe(t *testing.T) {
	srv, tokens := newTestServer(t)

	rec := send(srv, http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"secret1","name":"Ann"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var signed struct {
		User  struct{ ID, Email string } `json:"user"`
		Token string                     `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signed))
	assert.NotContains(t, rec.Body.String(), "password")

	rec = send(srv, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"secret1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logged struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logged))

	sub, err := tokens.Verify(logged.Token)
	require.NoError(t, err)
	assert.Equal(t, signed.User.ID, sub)

	rec = send(srv, http.MethodGet, "/users/me", "", map[string]string{"Authorization": "Bearer " + logged.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"a@x.com"`)

	rec = send(srv, http.MethodGet, "/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = send(srv, http.MethodGet, "/users/"+signed.User.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterRoutes_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := send(srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"])
	assert.NoError(t, err)
}

func TestRegisterRoutes_Fallbacks(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := send(srv, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())

	rec = send(srv, http.MethodGet, "/api-docs/openapi.json", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterRoutes_Headers(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := send(srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = send(srv, http.MethodGet, "/health", "", map[string]string{requestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		wantOrigin string
	}{
		{name: "open", allowed: nil, origin: "http://a.test", wantOrigin: "*"},
		{name: "listed", allowed: []string{"http://a.test/"}, origin: "http://a.test", wantOrigin: "http://a.test"},
		{name: "unlisted", allowed: []string{"http://a.test"}, origin: "http://b.test", wantOrigin: ""},
		{name: "no origin", allowed: nil, origin: "", wantOrigin: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.allowed...)
			rec := send(srv, http.MethodGet, "/health", "", map[string]string{"Origin": tt.origin})
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}

	t.Run("preflight", func(t *testing.T) {
		srv, _ := newTestServer(t)
		rec := send(srv, http.MethodOptions, "/users/me", "", map[string]string{
			"Origin":                        "http://a.test",
			"Access-Control-Request-Method": "PATCH",
		})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(zap.NewNop().Sugar())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	var seen *loggingResponseWriter
	h := LoggingMiddleware(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen = w.(*loggingResponseWriter)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, seen)
	assert.Equal(t, http.StatusTeapot, seen.status)
	assert.Equal(t, 3, seen.size)
}
