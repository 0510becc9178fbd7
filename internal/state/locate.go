package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoPageState is returned when a page carries no usable embedded state.
var ErrNoPageState = errors.New("no embedded page state found")

const (
	TypeProperty              = "Property"
	TypeListing               = "Listing"
	TypeActivePropertyListing = "ActivePropertyListing"
	TypeSoldPropertyListing   = "SoldPropertyListing"
)

var listingTypes = map[string]bool{
	TypeProperty:              true,
	TypeListing:               true,
	TypeActivePropertyListing: true,
	TypeSoldPropertyListing:   true,
}

// Document is the located page state: the property object and the index its
// references point into.
type Document struct {
	Index   Index
	Root    Node
	RootKey string
}

// Lookup walks a dotted path from the property object.
func (d *Document) Lookup(path string) Node {
	return Lookup(d.Root, d.Index, path)
}

// Locate finds the embedded Next.js payload in html and selects the property object.
// preferredType is the listing typename expected for the page kind; propertyID, when
// known, pins the selection to the matching index key.
func Locate(html, propertyID, preferredType string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page markup: %w", err)
	}

	script := doc.Find(`script#__NEXT_DATA__`).First()
	if script.Length() == 0 {
		return nil, ErrNoPageState
	}

	payload, err := ParseNode([]byte(script.Text()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPageState, err)
	}

	props := payload.Get("props")
	stateObj := props.Get("pageProps").Get("__APOLLO_STATE__")
	if stateObj.Kind() != KindObject {
		stateObj = props.Get("apolloState")
	}

	if stateObj.Kind() == KindObject {
		idx := NewIndex(stateObj)
		if key, ok := selectRoot(idx, propertyID, preferredType); ok {
			return &Document{Index: idx, Root: idx[key], RootKey: key}, nil
		}
	}

	if legacy := props.Get("pageProps").Get("property"); legacy.Kind() == KindObject {
		return &Document{Index: Index{}, Root: legacy}, nil
	}

	return nil, ErrNoPageState
}

func selectRoot(idx Index, propertyID, preferredType string) (string, bool) {
	keys := make([]string, 0, len(idx))
	for key := range idx {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if propertyID != "" {
		suffix := ":" + propertyID
		for _, key := range keys {
			if strings.HasSuffix(key, suffix) && listingTypes[idx[key].Typename()] {
				return key, true
			}
		}
	}

	order := []string{preferredType, TypeProperty, TypeListing, TypeSoldPropertyListing, TypeActivePropertyListing}
	for _, typename := range order {
		if typename == "" {
			continue
		}
		for _, key := range keys {
			if idx[key].Typename() == typename {
				return key, true
			}
		}
	}
	return "", false
}
