package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"malmohomes/collector/internal/fsutil"
)

const cacheFileName = "geocode_cache.json"

// GeocoderOptions configures the address fallback.
type GeocoderOptions struct {
	BaseURL     string
	Country     string
	CountryCode string
	UserAgent   string
	CacheDir    string
	Interval    time.Duration
}

// Geocoder resolves street addresses with Nominatim, caching results on disk.
type Geocoder struct {
	logger    *logrus.Logger
	opts      GeocoderOptions
	cache     map[string][]float64
	cacheLock sync.RWMutex
	client    *http.Client
	limiter   *rate.Limiter
}

func NewGeocoder(opts GeocoderOptions, logger *logrus.Logger) *Geocoder {
	if err := os.MkdirAll(opts.CacheDir, 0755); err != nil {
		logger.WithError(err).Warn("Could not create geocode cache directory")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	g := &Geocoder{
		logger:  logger,
		opts:    opts,
		cache:   make(map[string][]float64),
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(opts.Interval), 1),
	}

	g.loadCache()

	return g
}

func (g *Geocoder) cachePath() string {
	return filepath.Join(g.opts.CacheDir, cacheFileName)
}

func (g *Geocoder) loadCache() {
	data, err := os.ReadFile(g.cachePath())
	if err != nil {
		if !os.IsNotExist(err) {
			g.logger.Warnf("Could not load geocode cache: %v", err)
		}
		return
	}

	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		g.cache = make(map[string][]float64)
		return
	}

	g.logger.Infof("Loaded %d cached addresses", len(g.cache))
}

func (g *Geocoder) saveCache() error {
	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal geocode cache: %w", err)
	}

	if err := fsutil.WriteFileAtomic(g.cachePath(), data, 0644); err != nil {
		return fmt.Errorf("failed to save geocode cache: %w", err)
	}
	return nil
}

type nominatimResponse []struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// GeocodeAddress returns the (lon, lat) point of a street address in a city.
func (g *Geocoder) GeocodeAddress(ctx context.Context, street, city string) (orb.Point, error) {
	cacheKey := fmt.Sprintf("%s|%s", street, city)
	fullAddress := fmt.Sprintf("%s, %s, %s", street, city, g.opts.Country)

	g.cacheLock.RLock()
	coords, ok := g.cache[cacheKey]
	g.cacheLock.RUnlock()
	if ok {
		if len(coords) != 2 {
			return orb.Point{}, fmt.Errorf("invalid cached coordinates for %s", fullAddress)
		}
		g.logger.WithFields(logrus.Fields{
			"address":   fullAddress,
			"latitude":  coords[0],
			"longitude": coords[1],
			"source":    "cache",
		}).Debug("Found coordinates in cache")
		return orb.Point{coords[1], coords[0]}, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return orb.Point{}, err
	}

	params := url.Values{
		"q":            []string{fullAddress},
		"format":       []string{"json"},
		"limit":        []string{"1"},
		"countrycodes": []string{g.opts.CountryCode},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.opts.BaseURL+"/search", nil)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", g.opts.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return orb.Point{}, fmt.Errorf("geocoding request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return orb.Point{}, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return orb.Point{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result) == 0 {
		return orb.Point{}, fmt.Errorf("no results found for address: %s", fullAddress)
	}

	lat, err := strconv.ParseFloat(result[0].Lat, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude %q: %w", result[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(result[0].Lon, 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude %q: %w", result[0].Lon, err)
	}

	g.logger.WithFields(logrus.Fields{
		"address":   fullAddress,
		"latitude":  lat,
		"longitude": lon,
		"source":    "nominatim",
	}).Info("Geocoded address")

	g.cacheLock.Lock()
	g.cache[cacheKey] = []float64{lat, lon}
	g.cacheLock.Unlock()

	if err := g.saveCache(); err != nil {
		g.logger.WithError(err).Warn("Failed to persist geocode cache")
	}

	return orb.Point{lon, lat}, nil
}
