package main

import (
	"encoding/json"
	"fmt"
	"io"

	"malmohomes/collector/internal/extract"
	"malmohomes/collector/internal/geocoding"
)

// newExtractor wires the address geocoder in only when it is enabled.
func newExtractor() (*extract.Extractor, error) {
	var geocoder extract.AddressGeocoder
	if app.cfg.Geocoding.Enabled {
		geocoder = geocoding.NewGeocoder(geocoding.GeocoderOptions{
			BaseURL:     app.cfg.Geocoding.BaseURL,
			Country:     app.profile.Country,
			CountryCode: app.profile.CountryCode,
			UserAgent:   app.cfg.Geocoding.UserAgent,
			CacheDir:    app.cfg.Geocoding.CacheDir,
			Interval:    app.cfg.Geocoding.Interval,
		}, app.logger)
	}

	e, err := extract.NewExtractor(app.profile, geocoder, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	return e, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
