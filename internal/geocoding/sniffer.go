package geocoding

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"

	"malmohomes/collector/internal/models"
)

var (
	bodyPairPattern = regexp.MustCompile(`\[null,null,(-?\d+\.\d+),(-?\d+\.\d+)\]`)
	urlLatPattern   = regexp.MustCompile(`(?:^|[?&;,/])(?:lat|latitude)[=:](-?\d+\.\d+)`)
	urlLonPattern   = regexp.MustCompile(`(?:^|[?&;,/])(?:lng|lon|longitude)[=:](-?\d+\.\d+)`)
)

// Sniffer recovers the rendered map position from the requests a page made to
// mapping services. Those requests carry the precise coordinate, while the page
// state often holds a rounded or stale one.
type Sniffer struct {
	endpoints []string
	logger    *logrus.Logger
}

func NewSniffer(endpoints []string, logger *logrus.Logger) *Sniffer {
	return &Sniffer{endpoints: endpoints, logger: logger}
}

// Recover scans calls in capture order and returns the first coordinate found.
// The point is (lon, lat).
func (s *Sniffer) Recover(calls []models.NetworkCall) (orb.Point, bool) {
	for _, call := range calls {
		if !s.matchesEndpoint(call.URL) {
			continue
		}

		if m := bodyPairPattern.FindStringSubmatch(call.Body); m != nil {
			if p, ok := point(m[1], m[2]); ok {
				s.logger.WithFields(logrus.Fields{
					"url":    call.URL,
					"source": "body",
				}).Debug("Recovered coordinate from map request")
				return p, true
			}
		}

		lat := urlLatPattern.FindStringSubmatch(call.URL)
		lon := urlLonPattern.FindStringSubmatch(call.URL)
		if lat != nil && lon != nil {
			if p, ok := point(lat[1], lon[1]); ok {
				s.logger.WithFields(logrus.Fields{
					"url":    call.URL,
					"source": "url",
				}).Debug("Recovered coordinate from map request")
				return p, true
			}
		}
	}
	return orb.Point{}, false
}

func (s *Sniffer) matchesEndpoint(url string) bool {
	for _, pattern := range s.endpoints {
		if strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}

// Drift returns the distance in metres between two points.
func Drift(a, b orb.Point) float64 {
	return geo.Distance(a, b)
}

func point(latText, lonText string) (orb.Point, bool) {
	lat, err := strconv.ParseFloat(latText, 64)
	if err != nil {
		return orb.Point{}, false
	}
	lon, err := strconv.ParseFloat(lonText, 64)
	if err != nil {
		return orb.Point{}, false
	}
	return orb.Point{lon, lat}, true
}
