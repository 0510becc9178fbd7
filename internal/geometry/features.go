package geometry

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"malmohomes/collector/internal/models"
)

// PropertyFeatures renders every positioned listing as a GeoJSON point.
// Listings without coordinates are left out.
func PropertyFeatures(properties []*models.Property) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range properties {
		point, ok := position(p)
		if !ok {
			continue
		}

		feature := geojson.NewFeature(point)
		feature.ID = p.PropertyID
		feature.Properties = geojson.Properties{
			"property_id": p.PropertyID,
			"kind":        string(p.Kind),
			"url":         p.URL,
		}
		setOptional(feature.Properties, "address", p.Address)
		setOptional(feature.Properties, "city", p.City)
		setOptional(feature.Properties, "neighborhood", p.Neighborhood)
		setOptional(feature.Properties, "asking_price", p.AskingPrice)
		setOptional(feature.Properties, "final_price", p.FinalPrice)
		if perSqm := pricePerSqm(p); perSqm != nil {
			feature.Properties["price_per_sqm"] = *perSqm
		}
		fc.Append(feature)
	}
	return fc
}

type neighborhoodKey struct {
	city         string
	neighborhood string
}

// NeighborhoodHulls groups positioned listings by city and neighborhood and
// returns the convex hull of each group with at least three distinct points.
func NeighborhoodHulls(properties []*models.Property) *geojson.FeatureCollection {
	groups := make(map[neighborhoodKey][]*models.Property)
	for _, p := range properties {
		if p.Neighborhood == nil || p.City == nil {
			continue
		}
		if _, ok := position(p); !ok {
			continue
		}
		key := neighborhoodKey{city: *p.City, neighborhood: *p.Neighborhood}
		groups[key] = append(groups[key], p)
	}

	keys := make([]neighborhoodKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].city != keys[j].city {
			return keys[i].city < keys[j].city
		}
		return keys[i].neighborhood < keys[j].neighborhood
	})

	fc := geojson.NewFeatureCollection()
	for _, key := range keys {
		members := groups[key]
		points := make([]orb.Point, 0, len(members))
		var sum float64
		var priced int
		for _, p := range members {
			point, _ := position(p)
			points = append(points, point)
			if perSqm := pricePerSqm(p); perSqm != nil {
				sum += *perSqm
				priced++
			}
		}

		hull := generateConvexHull(points)
		if hull == nil {
			continue
		}

		feature := geojson.NewFeature(orb.Polygon{hull})
		feature.Properties = geojson.Properties{
			"city":          key.city,
			"neighborhood":  key.neighborhood,
			"point_count":   len(points),
			"geometry_type": "hull",
			"hull_type":     "convex",
		}
		if priced > 0 {
			feature.Properties["average_price_per_sqm"] = sum / float64(priced)
		}
		fc.Append(feature)
	}
	return fc
}

func position(p *models.Property) (orb.Point, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return orb.Point{}, false
	}
	return orb.Point{*p.Longitude, *p.Latitude}, true
}

func pricePerSqm(p *models.Property) *float64 {
	if p.PricePerSqmFinal != nil {
		return p.PricePerSqmFinal
	}
	return p.PricePerSqm
}

func setOptional[T any](props geojson.Properties, key string, v *T) {
	if v != nil {
		props[key] = *v
	}
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// generateConvexHull returns the closed counter-clockwise hull ring, or nil
// when the points do not span an area.
func generateConvexHull(points []orb.Point) orb.Ring {
	pts := make([]orb.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	unique := pts[:0]
	for i, p := range pts {
		if i == 0 || p != pts[i-1] {
			unique = append(unique, p)
		}
	}
	if len(unique) < 3 {
		return nil
	}

	hull := make([]orb.Point, 0, 2*len(unique))
	for _, p := range unique {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(unique) - 2; i >= 0; i-- {
		p := unique[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// Collinear input collapses to a degenerate ring.
	if len(hull) < 4 {
		return nil
	}
	return orb.Ring(hull)
}
