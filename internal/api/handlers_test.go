package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"malmohomes/collector/internal/database"
	"malmohomes/collector/internal/models"
	"malmohomes/collector/internal/output"
)

func ptr[T any](v T) *T {
	return &v
}

func setupRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dir := t.TempDir()
	db, err := database.NewDatabase(filepath.Join(dir, "properties.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	scraped := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertProperties(context.Background(), []*models.Property{
		{PropertyID: "1", Kind: models.KindSold, URL: "https://www.hemnet.se/salda/a-1", ScrapedAt: scraped, City: ptr("Malmö"), FinalPrice: ptr(int64(2000000)), Latitude: ptr(55.6), Longitude: ptr(13.0)},
		{PropertyID: "2", Kind: models.KindSold, URL: "https://www.hemnet.se/salda/b-2", ScrapedAt: scraped.Add(time.Hour), City: ptr("Lund"), FinalPrice: ptr(int64(3000000))},
		{PropertyID: "3", Kind: models.KindForSale, URL: "https://www.hemnet.se/bostad/c-3", ScrapedAt: scraped.Add(2 * time.Hour), City: ptr("Malmö"), AskingPrice: ptr(int64(2500000))},
	}))

	router := gin.New()
	SetupRoutes(router, NewHandler(db, dir, logger), []string{"http://localhost:3000"})
	return router, dir
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeProperties(t *testing.T, rec *httptest.ResponseRecorder) []models.Property {
	t.Helper()
	var out []models.Property
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetAllProperties(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(t, router, "/api/properties")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeProperties(t, rec), 3)

	rec = get(t, router, "/api/properties?city=Malm%C3%B6&kind=sold")
	require.Equal(t, http.StatusOK, rec.Code)
	props := decodeProperties(t, rec)
	require.Len(t, props, 1)
	assert.Equal(t, "1", props[0].PropertyID)

	rec = get(t, router, "/api/properties?limit=5000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeProperties(t, rec), 3)

	rec = get(t, router, "/api/properties?kind=rental")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, router, "/api/properties?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProperty(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(t, router, "/api/properties/2")
	require.Equal(t, http.StatusOK, rec.Code)
	var p models.Property
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Lund", *p.City)

	rec = get(t, router, "/api/properties/404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPropertyStats(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(t, router, "/api/stats?city=Malm%C3%B6")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.PropertyStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalProperties)
	assert.Equal(t, int64(1), stats.TotalSold)
	assert.Equal(t, int64(1), stats.TotalActive)
	assert.InDelta(t, 2000000, stats.AverageFinalPrice, 0.01)
}

func TestGetRecentSales(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(t, router, "/api/recent-sales?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	props := decodeProperties(t, rec)
	require.Len(t, props, 1)
	assert.Equal(t, "2", props[0].PropertyID)
}

func TestGetRunMetadata(t *testing.T) {
	router, dir := setupRouter(t)

	rec := get(t, router, "/api/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	meta := output.NewMetadata("input.csv", 10)
	meta.Record(output.GroupInfo{Group: 1, Count: 9, Failed: 1, InputEnd: 10, Timestamp: time.Now().UTC()})
	require.NoError(t, meta.Save(filepath.Join(dir, output.MetadataFileName)))

	rec = get(t, router, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run         output.Metadata `json:"run"`
		SuccessRate float64         `json:"success_rate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, meta.RunID, body.Run.RunID)
	assert.Equal(t, 1, body.Run.LastGroup)
	assert.InDelta(t, 90.0, body.SuccessRate, 0.001)

	require.NoError(t, os.WriteFile(filepath.Join(dir, output.MetadataFileName), []byte("{"), 0644))
	rec = get(t, router, "/api/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORS(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMapEndpoints(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(t, router, "/api/map/properties")
	require.Equal(t, http.StatusOK, rec.Code)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 1, "only the positioned listing is mapped")

	rec = get(t, router, "/api/map/neighborhoods?kind=sold")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Empty(t, fc.Features)

	rec = get(t, router, "/api/map/properties?kind=villa")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
