package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Profile describes the listing site: URL shapes, map endpoints and the local
// conventions the extractor relies on.
type Profile struct {
	URLPrefix         string `yaml:"url_prefix"`
	SoldPathMarker    string `yaml:"sold_path_marker"`
	ForSalePathMarker string `yaml:"for_sale_path_marker"`

	CoordinateEndpoints []string `yaml:"coordinate_endpoints"`
	NearZeroThreshold   float64  `yaml:"near_zero_threshold"`

	AdministrativeWords []string `yaml:"administrative_words"`
	Timezone            string   `yaml:"timezone"`
	Country             string   `yaml:"country"`
	CountryCode         string   `yaml:"country_code"`

	// Appended after the built-in candidates for each target field.
	ExtraAliases map[string][]string `yaml:"extra_aliases"`

	ChallengeMarkers []string `yaml:"challenge_markers"`
}

func DefaultProfile() Profile {
	return Profile{
		URLPrefix:           "https://www.hemnet.se/",
		SoldPathMarker:      "/salda/",
		ForSalePathMarker:   "/bostad/",
		CoordinateEndpoints: []string{"maps.googleapis.com", "SingleImageSearch"},
		NearZeroThreshold:   0.001,
		AdministrativeWords: []string{"kommun", "län"},
		Timezone:            "Europe/Stockholm",
		Country:             "Sweden",
		CountryCode:         "se",
		ChallengeMarkers:    []string{"challenge-platform", "Just a moment"},
	}
}

// LoadProfile reads a YAML profile over the defaults. An empty path returns
// the defaults.
func LoadProfile(path string) (*Profile, error) {
	profile := DefaultProfile()
	if path == "" {
		return &profile, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *Profile) Validate() error {
	if p.URLPrefix == "" {
		return fmt.Errorf("profile: url_prefix is required")
	}
	if p.SoldPathMarker == "" || p.ForSalePathMarker == "" {
		return fmt.Errorf("profile: both path markers are required")
	}
	if p.NearZeroThreshold < 0 {
		return fmt.Errorf("profile: near_zero_threshold must not be negative")
	}
	if _, err := p.Location(); err != nil {
		return err
	}
	return nil
}

// Location loads the profile's time zone.
func (p *Profile) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("profile: invalid timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}
