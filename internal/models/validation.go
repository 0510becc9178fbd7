package models

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError reports one field that failed a record constraint.
type FieldError struct {
	Field string
	Value any
	Rule  string
	Param string
}

func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("field %s: value %v violates %s=%s", e.Field, e.Value, e.Rule, e.Param)
	}
	return fmt.Sprintf("field %s: value %v violates %s", e.Field, e.Value, e.Rule)
}

// Rules holds the deployment-specific parts of record validation.
type Rules struct {
	// URLPrefix is the required prefix of every listing URL.
	URLPrefix string
	// NearZeroThreshold nulls coordinates whose absolute value is below it.
	NearZeroThreshold float64
}

func DefaultRules() Rules {
	return Rules{
		URLPrefix:         "https://www.hemnet.se/",
		NearZeroThreshold: 0.001,
	}
}

// Validator constructs records. A record either passes every constraint or is
// rejected as a whole.
type Validator struct {
	rules    Rules
	validate *validator.Validate
}

func NewValidator(rules Rules) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("listingurl", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), rules.URLPrefix)
	})

	return &Validator{rules: rules, validate: v}
}

// Build normalizes and validates p, returning a new record. The returned error
// wraps one *FieldError per violated constraint.
func (v *Validator) Build(p Property) (*Property, error) {
	p.PropertyID = strings.TrimSpace(p.PropertyID)
	p.URL = strings.TrimSpace(p.URL)
	for _, s := range []**string{
		&p.Address, &p.City, &p.Neighborhood, &p.HousingForm, &p.Tenure,
		&p.Floor, &p.EnergyClass, &p.AssociationName, &p.Description,
	} {
		*s = trimmed(*s)
	}
	if len(p.ViewingTimes) > 0 {
		p.ViewingTimes = append([]string(nil), p.ViewingTimes...)
	}

	p.Latitude = v.validCoordinate(p.Latitude)
	p.Longitude = v.validCoordinate(p.Longitude)
	if p.Latitude == nil || p.Longitude == nil {
		p.Latitude, p.Longitude = nil, nil
	}

	if err := v.validate.Struct(&p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("failed to validate property: %w", err)
		}
		errs := make([]error, 0, len(verrs))
		for _, fe := range verrs {
			errs = append(errs, &FieldError{
				Field: fe.Field(),
				Value: fe.Value(),
				Rule:  fe.Tag(),
				Param: fe.Param(),
			})
		}
		return nil, errors.Join(errs...)
	}

	return &p, nil
}

func (v *Validator) validCoordinate(c *float64) *float64 {
	if c == nil || math.IsNaN(*c) || math.Abs(*c) < v.rules.NearZeroThreshold {
		return nil
	}
	return c
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
