package extract

import (
	"math"
	"strconv"
	"strings"
	"time"

	"malmohomes/collector/internal/models"
	"malmohomes/collector/internal/state"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDate accepts Unix seconds (number or numeric string) or an ISO-8601
// string. Timestamps are read in loc; ISO values keep their own offset.
func parseDate(n state.Node, loc *time.Location) (models.Date, bool) {
	if n.Kind() == state.KindNumber {
		secs, ok := n.Float()
		if !ok {
			return models.Date{}, false
		}
		return fromUnix(secs, loc)
	}

	s, ok := n.Raw().(string)
	if !ok {
		return models.Date{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Date{}, false
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return fromUnix(secs, loc)
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOf(t), true
		}
	}
	return models.Date{}, false
}

func fromUnix(secs float64, loc *time.Location) (models.Date, bool) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return models.Date{}, false
	}
	whole, frac := math.Modf(secs)
	t := time.Unix(int64(whole), int64(frac*1e9)).In(loc)
	if t.Year() < 1900 || t.Year() > 9999 {
		return models.Date{}, false
	}
	return models.DateOf(t), true
}
