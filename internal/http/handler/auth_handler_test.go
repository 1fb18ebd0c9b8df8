package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fornetto/pizzeria-api/internal/config"
	"github.com/fornetto/pizzeria-api/internal/domain"
	transport "github.com/fornetto/pizzeria-api/internal/http"
	"github.com/fornetto/pizzeria-api/internal/http/handler"
	httpmiddleware "github.com/fornetto/pizzeria-api/internal/http/middleware"
	"github.com/fornetto/pizzeria-api/internal/repository"
	"github.com/fornetto/pizzeria-api/internal/service"
	"github.com/fornetto/pizzeria-api/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	users := newUserStore()
	gen := token.NewGenerator([]byte("0123456789abcdef0123456789abcdef"), time.Minute, 24*time.Hour)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := service.NewAuthService(users, gen, token.NewMemoryRevoker(), node, zap.NewNop())

	cfg := config.Config{ServiceName: "pizzeria-api-test"}
	authHandler := handler.NewAuthHandler(svc, false, zap.NewNop())
	authMiddleware := &httpmiddleware.Auth{Tokens: svc}
	return transport.NewRouter(cfg, authHandler, authMiddleware, nil)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == "refresh_token" {
			return cookie
		}
	}
	t.Fatal("refresh_token cookie not set")
	return nil
}

func registerUser(t *testing.T, router *gin.Engine, email, username, pass string) *httptest.ResponseRecorder {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/register", gin.H{
		"email":            email,
		"username":         username,
		"password":         pass,
		"password_confirm": pass,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return rec
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "mario@pizzeria.it", "mario", "quattro-stagioni")

	rec := doJSON(t, router, http.MethodPost, "/api/login", gin.H{
		"email":    "mario@pizzeria.it",
		"password": "quattro-stagioni",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.NotEmpty(t, body["access"])
	user := body["user"].(map[string]any)
	require.Equal(t, "mario@pizzeria.it", user["email"])
	require.Equal(t, "mario", user["username"])

	cookie := refreshCookie(t, rec)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Equal(t, "/", cookie.Path)
	require.Equal(t, 86400, cookie.MaxAge)
	require.NotEmpty(t, cookie.Value)
}

func TestLoginFailures(t *testing.T) {
	router := newTestRouter(t)
	registerUser(t, router, "mario@pizzeria.it", "mario", "quattro-stagioni")

	rec := doJSON(t, router, http.MethodPost, "/api/login", gin.H{
		"email":    "mario@pizzeria.it",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid credentials", decodeBody(t, rec)["error"])
	require.Empty(t, rec.Result().Cookies())

	rec = doJSON(t, router, http.MethodPost, "/api/login", gin.H{"email": "mario@pizzeria.it"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Please provide both email and password", decodeBody(t, rec)["error"])

	// Empty body binds to empty fields, not a parse error.
	rec = doJSON(t, router, http.MethodPost, "/api/login", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/register", gin.H{
		"email":            "a@x.com",
		"username":         "a",
		"password":         "P1",
		"password_confirm": "P2",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Passwords do not match", decodeBody(t, rec)["error"])

	registerUser(t, router, "a@x.com", "a", "P1")

	rec = doJSON(t, router, http.MethodPost, "/api/register", gin.H{
		"email":            "a@x.com",
		"username":         "other",
		"password":         "P1",
		"password_confirm": "P1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "User with this email already exists", decodeBody(t, rec)["error"])

	rec = doJSON(t, router, http.MethodPost, "/api/register", gin.H{
		"email":            "b@x.com",
		"username":         "a",
		"password":         "P1",
		"password_confirm": "P1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "User with this username already exists", decodeBody(t, rec)["error"])
}

func TestRefreshFromCookie(t *testing.T) {
	router := newTestRouter(t)
	rec := registerUser(t, router, "mario@pizzeria.it", "mario", "quattro-stagioni")
	cookie := refreshCookie(t, rec)

	refreshRec := doJSON(t, router, http.MethodPost, "/api/token/refresh", nil, cookie)
	require.Equal(t, http.StatusOK, refreshRec.Code, refreshRec.Body.String())

	body := decodeBody(t, refreshRec)
	require.NotEmpty(t, body["access"])
	require.NotEmpty(t, body["token_id"])
	require.NotZero(t, body["user_id"])
	require.Greater(t, int64(body["expires_at"].(float64)), time.Now().Unix())
}

func TestRefreshFromBodyFallback(t *testing.T) {
	router := newTestRouter(t)
	rec := registerUser(t, router, "mario@pizzeria.it", "mario", "quattro-stagioni")
	cookie := refreshCookie(t, rec)

	refreshRec := doJSON(t, router, http.MethodPost, "/api/token/refresh", gin.H{"refresh": cookie.Value})
	require.Equal(t, http.StatusOK, refreshRec.Code)
}

func TestRefreshCookieTakesPrecedenceOverBody(t *testing.T) {
	router := newTestRouter(t)
	rec := registerUser(t, router, "mario@pizzeria.it", "mario", "quattro-stagioni")
	cookie := refreshCookie(t, rec)

	// A garbage body field must not shadow the valid cookie.
	refreshRec := doJSON(t, router, http.MethodPost, "/api/token/refresh", gin.H{"refresh": "garbage"}, cookie)
	require.Equal(t, http.StatusOK, refreshRec.Code)
}

func TestRefreshWithoutToken(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/token/refresh", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No refresh token provided", decodeBody(t, rec)["error"])
}

func TestLogoutClearsCookieAndRevokes(t *testing.T) {
	router := newTestRouter(t)
	rec := registerUser(t, router, "mario@pizzeria.it", "mario", "quattro-stagioni")
	cookie := refreshCookie(t, rec)

	logoutRec := doJSON(t, router, http.MethodPost, "/api/logout", nil, cookie)
	require.Equal(t, http.StatusOK, logoutRec.Code)
	require.Equal(t, "Successfully logged out", decodeBody(t, logoutRec)["message"])

	cleared := refreshCookie(t, logoutRec)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	// The revoked token must not refresh or log out again, despite not
	// having expired.
	refreshRec := doJSON(t, router, http.MethodPost, "/api/token/refresh", nil, cookie)
	require.Equal(t, http.StatusBadRequest, refreshRec.Code)
	require.Equal(t, "Invalid refresh token", decodeBody(t, refreshRec)["error"])

	logoutAgain := doJSON(t, router, http.MethodPost, "/api/logout", nil, cookie)
	require.Equal(t, http.StatusBadRequest, logoutAgain.Code)
	require.Equal(t, "Invalid token", decodeBody(t, logoutAgain)["error"])
}

func TestLogoutWithoutToken(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/logout", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Refresh token is required", decodeBody(t, rec)["error"])
}

func TestMeRequiresBearerToken(t *testing.T) {
	router := newTestRouter(t)
	rec := registerUser(t, router, "mario@pizzeria.it", "mario", "quattro-stagioni")
	access := decodeBody(t, rec)["access"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", access))
	meRec := httptest.NewRecorder()
	router.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusOK, meRec.Code)
	user := decodeBody(t, meRec)["user"].(map[string]any)
	require.Equal(t, "mario@pizzeria.it", user["email"])

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	meRec = httptest.NewRecorder()
	router.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusUnauthorized, meRec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	meRec = httptest.NewRecorder()
	router.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusUnauthorized, meRec.Code)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

// userStore is a minimal in-memory Identity Store for handler tests.
type userStore struct {
	byEmail    map[string]domain.User
	byUsername map[string]domain.User
}

var _ repository.UserRepository = (*userStore)(nil)

func newUserStore() *userStore {
	return &userStore{
		byEmail:    make(map[string]domain.User),
		byUsername: make(map[string]domain.User),
	}
}

func (s *userStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return domain.User{}, repository.ErrNotFound
}

func (s *userStore) GetByUsername(_ context.Context, username string) (domain.User, error) {
	if user, ok := s.byUsername[username]; ok {
		return user, nil
	}
	return domain.User{}, repository.ErrNotFound
}

func (s *userStore) GetByID(_ context.Context, id int64) (domain.User, error) {
	for _, user := range s.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func (s *userStore) Create(_ context.Context, user domain.User) (domain.User, error) {
	if _, ok := s.byEmail[user.Email]; ok {
		return domain.User{}, repository.ErrEmailTaken
	}
	if _, ok := s.byUsername[user.Username]; ok {
		return domain.User{}, repository.ErrUsernameTaken
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	s.byEmail[user.Email] = user
	s.byUsername[user.Username] = user
	return user, nil
}
