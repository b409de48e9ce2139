package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/app"
	iauth "github.com/opexlabs/formscore/internal/auth"
	"github.com/opexlabs/formscore/internal/database"
)

func newTestRouter(t *testing.T) (*gin.Engine, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, database.AutoMigrateAndSeed(context.Background(), db, database.BootstrapAdmin{
		UserID: "root",
		Email:  "root@example.com",
	}))

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-secret",
		Issuer:         "test",
		AccessTokenTTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Prometheus.Enabled = true
	cfg.Monitoring.Prometheus.Endpoint = "/metrics"

	router, err := NewRouter(db, jwtSvc, cfg)
	require.NoError(t, err)

	return router, jwtSvc
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	router, jwtSvc := newTestRouter(t)

	// Health should be public.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// Protected endpoint without a token -> 401.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/permissions", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Grant end to end with a bearer token for the bootstrap admin.
	token, err := jwtSvc.GenerateAccessToken("root")
	require.NoError(t, err)

	body, err := json.Marshal(gin.H{
		"user_id":          "u-1",
		"permission_level": "view",
		"company":          "Acme Corp",
	})
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/permissions/grant", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// Unknown routes get the JSON fallback.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	require.True(t, strings.Contains(body, `formscore_api_latency_seconds_count{method="GET",path="/health",status="200"}`),
		"metrics output missing latency series")
}
