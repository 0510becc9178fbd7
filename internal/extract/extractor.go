package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"malmohomes/collector/config"
	"malmohomes/collector/internal/geocoding"
	"malmohomes/collector/internal/location"
	"malmohomes/collector/internal/models"
	"malmohomes/collector/internal/state"
)

// ErrUnknownKind is returned for URLs that are neither a sale nor an active listing.
var ErrUnknownKind = errors.New("cannot determine listing kind from url")

// AddressGeocoder resolves a street address when the page offers no position.
type AddressGeocoder interface {
	GeocodeAddress(ctx context.Context, street, city string) (orb.Point, error)
}

// Extractor turns a fetched listing page into a validated property record.
type Extractor struct {
	profile   *config.Profile
	validator *models.Validator
	sniffer   *geocoding.Sniffer
	cities    *location.Resolver
	geocoder  AddressGeocoder
	loc       *time.Location
	now       func() time.Time
	logger    *logrus.Logger
}

// NewExtractor builds an extractor for the given site profile. geocoder may be nil.
func NewExtractor(profile *config.Profile, geocoder AddressGeocoder, logger *logrus.Logger) (*Extractor, error) {
	loc, err := profile.Location()
	if err != nil {
		return nil, err
	}

	return &Extractor{
		profile: profile,
		validator: models.NewValidator(models.Rules{
			URLPrefix:         profile.URLPrefix,
			NearZeroThreshold: profile.NearZeroThreshold,
		}),
		sniffer:  geocoding.NewSniffer(profile.CoordinateEndpoints, logger),
		cities:   location.NewResolver(profile.AdministrativeWords),
		geocoder: geocoder,
		loc:      loc,
		now:      func() time.Time { return time.Now().In(loc) },
		logger:   logger,
	}, nil
}

// DetectKind classifies a listing URL by its path.
func (e *Extractor) DetectKind(rawURL string) (models.Kind, error) {
	switch {
	case strings.Contains(rawURL, e.profile.SoldPathMarker):
		return models.KindSold, nil
	case strings.Contains(rawURL, e.profile.ForSalePathMarker):
		return models.KindForSale, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, rawURL)
	}
}

// PropertyIDFromURL returns the trailing numeric id of a listing slug such as
// /salda/lagenhet-3rum-malmo-19955555.
func PropertyIDFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "-"); i >= 0 {
		return path[i+1:]
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func preferredTypename(kind models.Kind) string {
	if kind == models.KindSold {
		return state.TypeSoldPropertyListing
	}
	return state.TypeActivePropertyListing
}

// Extract maps page into a record for id. Missing fields are left empty; only an
// unknown kind, a page without state, or a failed validation is an error.
func (e *Extractor) Extract(ctx context.Context, page *models.Page, id models.Identifier) (*models.Property, error) {
	listingURL := id.URL
	if listingURL == "" {
		listingURL = page.URL
	}

	kind, err := e.DetectKind(listingURL)
	if err != nil {
		return nil, err
	}

	propertyID := strings.TrimSpace(id.PropertyID)
	if propertyID == "" {
		propertyID = PropertyIDFromURL(listingURL)
	}

	doc, err := state.Locate(page.HTML, propertyID, preferredTypename(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to locate page state: %w", err)
	}

	logger := e.logger.WithFields(logrus.Fields{
		"property_id": propertyID,
		"url":         listingURL,
	})
	r := &fieldReader{
		doc:     doc,
		aliases: AliasesFor(kind, e.profile.ExtraAliases),
		loc:     e.loc,
		logger:  logger,
	}

	p := models.Property{
		PropertyID: propertyID,
		Kind:       kind,
		URL:        listingURL,
		ScrapedAt:  e.now(),
	}

	mapCommon(r, &p)
	switch kind {
	case models.KindSold:
		mapSold(r, &p)
	case models.KindForSale:
		mapForSale(r, &p)
	}

	var neighborhood, locationName string
	if p.Neighborhood != nil {
		neighborhood = *p.Neighborhood
	}
	if name := r.text(FieldLocationName); name != nil {
		locationName = *name
	}
	if city, ok := e.cities.City(r.names(FieldDistricts), neighborhood, locationName); ok {
		p.City = &city
	}

	e.applyCoordinate(ctx, r, page.Calls, &p, logger)

	record, err := e.validator.Build(p)
	if err != nil {
		return nil, fmt.Errorf("invalid property %s: %w", propertyID, err)
	}
	record.CalculateDerivedFields()

	return record, nil
}

// applyCoordinate prefers the map request position, then the declared one, then
// the optional address geocoder.
func (e *Extractor) applyCoordinate(ctx context.Context, r *fieldReader, calls []models.NetworkCall, p *models.Property, logger *logrus.Entry) {
	declared, hasDeclared := r.coordinate()

	point, found := e.sniffer.Recover(calls)
	switch {
	case found:
		if hasDeclared {
			logger.WithField("drift_m", geocoding.Drift(point, declared)).Debug("Declared coordinate differs from map request")
		}
	case hasDeclared:
		point, found = declared, true
	case e.geocoder != nil && p.Address != nil && p.City != nil:
		geocoded, err := e.geocoder.GeocodeAddress(ctx, *p.Address, *p.City)
		if err != nil {
			logger.WithError(err).Warn("Address geocoding failed")
			return
		}
		point, found = geocoded, true
	}

	if !found {
		return
	}
	lat, lon := point.Lat(), point.Lon()
	p.Latitude = &lat
	p.Longitude = &lon
}
