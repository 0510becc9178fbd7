package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"malmohomes/collector/internal/database"
	"malmohomes/collector/internal/geometry"
	"malmohomes/collector/internal/models"
	"malmohomes/collector/internal/output"
)

const (
	defaultLimit = 100
	maxLimit     = 1000

	maxMapFeatures = 10000
)

type Handler struct {
	db        *database.Database
	outputDir string
	logger    *logrus.Logger
}

type PropertyQuery struct {
	Kind   string `form:"kind" binding:"omitempty,oneof=sold for_sale"`
	City   string `form:"city"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

func NewHandler(db *database.Database, outputDir string, logger *logrus.Logger) *Handler {
	return &Handler{
		db:        db,
		outputDir: outputDir,
		logger:    logger,
	}
}

func (h *Handler) GetAllProperties(c *gin.Context) {
	var query PropertyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.logger.WithError(err).Warn("Invalid property query")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	limit := query.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	properties, err := h.db.GetProperties(c.Request.Context(), database.PropertyFilter{
		Kind:   models.Kind(query.Kind),
		City:   query.City,
		Limit:  limit,
		Offset: query.Offset,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to get properties")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get properties"})
		return
	}

	c.JSON(http.StatusOK, properties)
}

func (h *Handler) GetProperty(c *gin.Context) {
	property, err := h.db.GetProperty(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrPropertyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}

	c.JSON(http.StatusOK, property)
}

func (h *Handler) GetPropertyStats(c *gin.Context) {
	stats, err := h.db.GetPropertyStats(c.Request.Context(), c.Query("city"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetRecentSales(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	sales, err := h.db.GetProperties(c.Request.Context(), database.PropertyFilter{
		Kind:  models.KindSold,
		City:  c.Query("city"),
		Limit: min(limit, maxLimit),
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to get recent sales")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get recent sales"})
		return
	}

	c.JSON(http.StatusOK, sales)
}

func (h *Handler) loadMapProperties(c *gin.Context) ([]*models.Property, bool) {
	var query PropertyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return nil, false
	}

	properties, err := h.db.GetProperties(c.Request.Context(), database.PropertyFilter{
		Kind:  models.Kind(query.Kind),
		City:  query.City,
		Limit: maxMapFeatures,
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to get properties for map")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get properties"})
		return nil, false
	}
	return properties, true
}

// GetPropertyFeatures returns positioned listings as a GeoJSON FeatureCollection.
func (h *Handler) GetPropertyFeatures(c *gin.Context) {
	properties, ok := h.loadMapProperties(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, geometry.PropertyFeatures(properties))
}

// GetNeighborhoodHulls returns one convex hull polygon per neighborhood.
func (h *Handler) GetNeighborhoodHulls(c *gin.Context) {
	properties, ok := h.loadMapProperties(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, geometry.NeighborhoodHulls(properties))
}

// GetRunMetadata returns the progress record of the collection run in the
// output directory.
func (h *Handler) GetRunMetadata(c *gin.Context) {
	meta, err := output.LoadMetadata(filepath.Join(h.outputDir, output.MetadataFileName))
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No collection run found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to read run metadata")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read run metadata"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":          meta,
		"success_rate": meta.SuccessRate(),
	})
}
