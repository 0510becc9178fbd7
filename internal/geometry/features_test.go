package geometry

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"malmohomes/collector/internal/models"
)

func ptr[T any](v T) *T {
	return &v
}

func listing(id, city, neighborhood string, lat, lng, perSqm float64) *models.Property {
	return &models.Property{
		PropertyID:       id,
		Kind:             models.KindSold,
		URL:              "https://www.hemnet.se/salda/x-" + id,
		City:             ptr(city),
		Neighborhood:     ptr(neighborhood),
		Latitude:         ptr(lat),
		Longitude:        ptr(lng),
		PricePerSqmFinal: ptr(perSqm),
	}
}

func TestPropertyFeatures(t *testing.T) {
	unplaced := &models.Property{PropertyID: "9", Kind: models.KindForSale}
	fc := PropertyFeatures([]*models.Property{
		listing("1", "Malmö", "Möllevången", 55.59, 13.00, 40000),
		unplaced,
	})

	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, orb.Point{13.00, 55.59}, f.Geometry)
	assert.Equal(t, "1", f.ID)
	assert.Equal(t, "Möllevången", f.Properties["neighborhood"])
	assert.Equal(t, 40000.0, f.Properties["price_per_sqm"])
	assert.NotContains(t, f.Properties, "asking_price")

	raw, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"FeatureCollection"`)
}

func TestNeighborhoodHulls(t *testing.T) {
	props := []*models.Property{
		listing("1", "Malmö", "Västra Hamnen", 55.60, 12.97, 60000),
		listing("2", "Malmö", "Västra Hamnen", 55.62, 12.97, 50000),
		listing("3", "Malmö", "Västra Hamnen", 55.62, 12.99, 70000),
		listing("4", "Malmö", "Västra Hamnen", 55.60, 12.99, 60000),
		listing("5", "Malmö", "Västra Hamnen", 55.61, 12.98, 60000),
		listing("6", "Malmö", "Limhamn", 55.58, 12.92, 45000),
		listing("7", "Malmö", "Limhamn", 55.58, 12.93, 45000),
	}

	fc := NeighborhoodHulls(props)
	require.Len(t, fc.Features, 1, "two points cannot form a hull")

	f := fc.Features[0]
	assert.Equal(t, "Västra Hamnen", f.Properties["neighborhood"])
	assert.Equal(t, 5, f.Properties["point_count"])
	assert.InDelta(t, 60000.0, f.Properties["average_price_per_sqm"], 0.001)

	poly, ok := f.Geometry.(orb.Polygon)
	require.True(t, ok)
	ring := poly[0]
	assert.Len(t, ring, 5, "four corners plus closing point")
	assert.True(t, ring.Closed())
	assert.InDelta(t, 0.0004, math.Abs(planar.Area(poly)), 1e-9)
}

func TestGenerateConvexHull(t *testing.T) {
	assert.Nil(t, generateConvexHull([]orb.Point{{0, 0}, {1, 1}, {2, 2}}), "collinear")
	assert.Nil(t, generateConvexHull([]orb.Point{{0, 0}, {0, 0}, {1, 0}}), "duplicates")

	hull := generateConvexHull([]orb.Point{{0, 0}, {2, 0}, {1, 1}, {0, 2}, {2, 2}, {1, 0}})
	require.NotNil(t, hull)
	assert.Equal(t, orb.Ring{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}, hull)
	assert.Equal(t, orb.CCW, hull.Orientation())
}
