package location

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Resolver picks a city name out of the district hierarchy attached to a listing.
type Resolver struct {
	administrativeWords []string
}

// NewResolver returns a resolver that discards district names containing any of
// the given administrative words (e.g. "kommun", "län").
func NewResolver(administrativeWords []string) *Resolver {
	words := make([]string, 0, len(administrativeWords))
	for _, w := range administrativeWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &Resolver{administrativeWords: words}
}

// City resolves the city from district names ordered most to least specific.
// Plain names beat slash-separated composites, and shorter names beat longer ones.
// When no district qualifies, the second segment of locationName is used.
// The second result is false when neither source yields a city.
func (r *Resolver) City(districts []string, neighborhood, locationName string) (string, bool) {
	var candidates []string
	for _, name := range districts {
		name = strings.TrimSpace(name)
		if name == "" || name == neighborhood || r.isAdministrative(name) {
			continue
		}
		candidates = append(candidates, name)
	}

	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			si := strings.Contains(candidates[i], "/")
			sj := strings.Contains(candidates[j], "/")
			if si != sj {
				return !si
			}
			return utf8.RuneCountInString(candidates[i]) < utf8.RuneCountInString(candidates[j])
		})
		return candidates[0], true
	}

	return r.fromLocationName(locationName)
}

func (r *Resolver) isAdministrative(name string) bool {
	lower := strings.ToLower(name)
	for _, w := range r.administrativeWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (r *Resolver) fromLocationName(locationName string) (string, bool) {
	parts := strings.Split(locationName, ", ")
	if len(parts) < 2 {
		return "", false
	}
	city := strings.TrimSpace(parts[1])
	lower := strings.ToLower(city)
	for _, w := range r.administrativeWords {
		if strings.HasSuffix(lower, " "+w) {
			city = strings.TrimSpace(city[:len(city)-len(w)])
			break
		}
	}
	if city == "" {
		return "", false
	}
	return city, true
}
