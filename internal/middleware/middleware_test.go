package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelchat-backend/internal/domain"
	"travelchat-backend/pkg/jwt"
)

func newAuthRouter(manager *jwt.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(manager), func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": GetRole(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	manager := jwt.NewJWTManager("secret", "travelchat", time.Hour)
	router := newAuthRouter(manager)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, string(domain.RoleTourGuide))
	require.NoError(t, err)
	badRole, err := manager.GenerateAccessToken(userID, "ROOT")
	require.NoError(t, err)
	foreign, err := jwt.NewJWTManager("other-secret", "travelchat", time.Hour).GenerateAccessToken(userID, string(domain.RoleCustomer))
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		status  int
	}{
		{"bearer header", "/me", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK},
		{"websocket query token", "/me?token=" + token, map[string]string{"Upgrade": "websocket"}, http.StatusOK},
		{"query token without upgrade", "/me?token=" + token, nil, http.StatusUnauthorized},
		{"missing header", "/me", nil, http.StatusUnauthorized},
		{"malformed header", "/me", map[string]string{"Authorization": token}, http.StatusUnauthorized},
		{"wrong signature", "/me", map[string]string{"Authorization": "Bearer " + foreign}, http.StatusUnauthorized},
		{"unknown role", "/me", map[string]string{"Authorization": "Bearer " + badRole}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), userID.String())
				assert.Contains(t, rec.Body.String(), string(domain.RoleTourGuide))
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(2, time.Minute, 2)

	r := gin.New()
	r.GET("/ping", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"))
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.travelchat.example"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/ping", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodGet, "https://app.travelchat.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.travelchat.example", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusForbidden, call(http.MethodGet, "https://evil.example").Code)
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "").Code)
	assert.Equal(t, http.StatusNoContent, call(http.MethodOptions, "http://localhost:3000").Code)
}
