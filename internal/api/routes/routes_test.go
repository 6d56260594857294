package routes

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-pool/internal/api/controllers"
	"content-pool/internal/auth"
	"content-pool/internal/config"
	"content-pool/internal/logging"
	"content-pool/internal/models"
)

type emptySources struct{}

func (emptySources) Upsert(_ context.Context, src *models.ContentSource) (*models.ContentSource, error) {
	return src, nil
}
func (emptySources) Deactivate(context.Context, string) error { return models.ErrNotFound }
func (emptySources) List(context.Context) ([]models.ContentSource, error) {
	return nil, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *auth.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewLogger(logging.Config{Writer: &bytes.Buffer{}})

	jwtManager, err := auth.NewJWTManager(&auth.JWTConfig{SecretKey: "s3cret", Issuer: "content-pool-admin", ExpireTime: time.Minute})
	require.NoError(t, err)

	cfg := config.Default()
	ctrls := SetupControllers(Dependencies{
		Sources: emptySources{},
		Checks:  map[string]controllers.HealthCheck{"redis": func(context.Context) error { return nil }},
		Logger:  logger,
		Version: "test",
	}, cfg)
	return NewAdminRouter(ctrls, jwtManager, nil, cfg.Admin, logger), jwtManager
}

func TestAdminRoutes(t *testing.T) {
	r, jwtManager := newTestRouter(t)

	do := func(method, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("GET", "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusOK, do("GET", "/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do("GET", "/api/v1/sources", "").Code)

	trafficOnly, err := jwtManager.GenerateToken("ops", auth.ScopeTraffic)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do("GET", "/api/v1/sources", trafficOnly).Code)
	assert.Equal(t, http.StatusForbidden, do("POST", "/api/v1/regenerate", trafficOnly).Code)

	sources, err := jwtManager.GenerateToken("ops", auth.ScopeSources)
	require.NoError(t, err)
	rec := do("GET", "/api/v1/sources", sources)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, http.StatusNotFound, do("DELETE", "/api/v1/sources/unknown", sources).Code)
}
