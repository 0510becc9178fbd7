package extract

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"malmohomes/collector/internal/models"
	"malmohomes/collector/internal/state"
)

// fieldReader reads target fields off one located document. Every accessor is
// total: a missing or malformed value yields nil, and malformed ones are logged.
type fieldReader struct {
	doc     *state.Document
	aliases Aliases
	loc     *time.Location
	logger  *logrus.Entry
}

// node returns the reduced value of the first candidate path holding a non-null value.
func (r *fieldReader) node(f Field) state.Node {
	for _, path := range r.aliases[f] {
		if v := r.doc.Lookup(path); v.Exists() {
			return state.Reduce(v)
		}
	}
	return state.Absent()
}

func (r *fieldReader) parseWarning(f Field, n state.Node) {
	r.logger.WithFields(logrus.Fields{
		"field": string(f),
		"value": n.String(),
		"kind":  n.Kind().String(),
	}).Warn("Could not parse field value")
}

func (r *fieldReader) text(f Field) *string {
	n := r.node(f)
	if !n.Exists() {
		return nil
	}
	s, ok := n.Text()
	if !ok {
		r.parseWarning(f, n)
		return nil
	}
	return &s
}

func (r *fieldReader) float(f Field) *float64 {
	n := r.node(f)
	if !n.Exists() {
		return nil
	}
	v, ok := n.Float()
	if !ok {
		r.parseWarning(f, n)
		return nil
	}
	return &v
}

func (r *fieldReader) integer64(f Field) *int64 {
	n := r.node(f)
	if !n.Exists() {
		return nil
	}
	v, ok := n.Int()
	if !ok {
		r.parseWarning(f, n)
		return nil
	}
	return &v
}

func (r *fieldReader) integer(f Field) *int {
	v := r.integer64(f)
	if v == nil {
		return nil
	}
	if *v > math.MaxInt32 || *v < math.MinInt32 {
		r.parseWarning(f, state.NewNode(*v))
		return nil
	}
	i := int(*v)
	return &i
}

// flag reads a boolean that the site omits when false.
func (r *fieldReader) flag(f Field) *bool {
	n := r.node(f)
	result := false
	if n.Exists() {
		if b, ok := n.Bool(); ok {
			result = b
		} else if s, ok := n.Raw().(string); ok {
			if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				result = parsed
			} else {
				r.parseWarning(f, n)
			}
		} else {
			r.parseWarning(f, n)
		}
	}
	return &result
}

// display renders a value as text; whole numbers lose their decimal part.
func (r *fieldReader) display(f Field) *string {
	n := r.node(f)
	if !n.Exists() {
		return nil
	}
	if n.Kind() == state.KindNumber {
		if v, ok := n.Float(); ok && v == math.Trunc(v) && math.Abs(v) < 1e15 {
			s := strconv.FormatInt(int64(v), 10)
			return &s
		}
	}
	s, ok := n.Text()
	if !ok {
		r.parseWarning(f, n)
		return nil
	}
	return &s
}

func (r *fieldReader) date(f Field) *models.Date {
	n := r.node(f)
	if !n.Exists() {
		return nil
	}
	d, ok := parseDate(n, r.loc)
	if !ok {
		r.parseWarning(f, n)
		return nil
	}
	return &d
}

// names resolves each element of a list field to a display name.
func (r *fieldReader) names(f Field) []string {
	var out []string
	for _, item := range r.node(f).Items() {
		v := state.Value(item, r.doc.Index)
		if s, ok := v.Raw().(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// viewings collects the display time of every scheduled viewing.
func (r *fieldReader) viewings(f Field) []string {
	var out []string
	for _, item := range r.node(f).Items() {
		v := state.Resolve(item, r.doc.Index)
		for _, key := range []string{"formattedTime", "time"} {
			if s, ok := v.Get(key).Raw().(string); ok && s != "" {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// coordinate reads the page's own declared position as (lon, lat).
func (r *fieldReader) coordinate() (orb.Point, bool) {
	n := r.node(FieldCoordinate)
	lat, latOK := n.Get("latitude").Float()
	lon, lonOK := n.Get("longitude").Float()
	if !latOK || !lonOK {
		return orb.Point{}, false
	}
	return orb.Point{lon, lat}, true
}
