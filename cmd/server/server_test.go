package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-publish/pkg/simplepublish/config"
)

func newTestRouter(t *testing.T, opts ...config.Option) (http.Handler, *config.ServerConfig) {
	t.Helper()
	base := []config.Option{config.WithEnvironment("testing"), config.WithFFmpeg(false), config.WithEventLogging(false)}
	cfg, err := config.Load(append(base, opts...)...)
	require.NoError(t, err)
	svc, err := cfg.BuildService(context.Background())
	require.NoError(t, err)
	thumbs, err := cfg.ThumbnailStore()
	require.NoError(t, err)
	return newRouter(svc, cfg, thumbs), cfg
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "testing", body["environment"])
}

func TestAPIMounted(t *testing.T) {
	router, _ := newTestRouter(t)

	payload, err := json.Marshal(map[string]any{
		"workspace_id": 1,
		"platform":     "linkedin",
		"account_name": "company-page",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/capabilities?platform=tiktok", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAPIRequiresTokenWhenSecretSet(t *testing.T) {
	router, _ := newTestRouter(t, config.WithJWTSecret("s3cret"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/capabilities", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestFilesystemThumbnailsServed(t *testing.T) {
	dir := t.TempDir()
	key := filepath.Join("publications", "p1", "thumbnails", "main.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, key)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, key), []byte("jpeg-bytes"), 0o644))

	router, _ := newTestRouter(t, config.WithFilesystemThumbnailStorage(dir, "http://localhost:8080/thumbnails"))

	req := httptest.NewRequest(http.MethodGet, "/thumbnails/preview/publications/p1/thumbnails/main.jpg", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg-bytes", rr.Body.String())
}

func TestMemoryThumbnailsServed(t *testing.T) {
	router, cfg := newTestRouter(t)
	thumbs, err := cfg.ThumbnailStore()
	require.NoError(t, err)

	ctx := context.Background()
	key := "publications/p1/thumbnails/main.jpg"
	require.NoError(t, thumbs.Upload(ctx, key, strings.NewReader("jpeg-bytes")))
	url, err := thumbs.GetPreviewURL(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "/thumbnails/preview/"+key, url)

	req := httptest.NewRequest(http.MethodGet, url, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg-bytes", rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/thumbnails/preview/publications/p1/thumbnails/missing.jpg", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
