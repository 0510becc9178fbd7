package state

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	TypeMoney       = "Money"
	TypeHousingForm = "HousingForm"
	TypeTenure      = "Tenure"
	TypeLocation    = "Location"
	TypeCoordinate  = "Coordinate"
)

// genericKeys is searched, in order, for wrappers with an unrecognized typename.
var genericKeys = []string{"value", "amount", "name", "code", "label"}

// Reduce collapses a typed wrapper to its semantic scalar. Values it cannot reduce
// are returned unchanged, so Reduce never loses data and never fails.
func Reduce(n Node) Node {
	if n.Kind() != KindObject {
		return n
	}

	typename := n.Typename()
	if typename == "" {
		return n
	}

	var reduced Node
	switch typename {
	case TypeMoney:
		reduced = n.Get("amount")
	case TypeHousingForm, TypeTenure:
		reduced = reduceCategory(n)
	case TypeLocation:
		reduced = firstNonEmpty(n, "fullName", "name")
	case TypeCoordinate:
		return n
	default:
		reduced = firstExisting(n, genericKeys...)
	}

	if !reduced.Exists() {
		return n
	}
	return reduced
}

func reduceCategory(n Node) Node {
	if label := firstNonEmpty(n, "name", "label"); label.Exists() {
		return label
	}
	code, ok := n.Get("code").Text()
	if !ok || code == "" {
		return Absent()
	}
	return NewNode(HumanizeCode(code))
}

// HumanizeCode turns an enum code such as TENANT_OWNERSHIP into "Tenant Ownership".
func HumanizeCode(code string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(code, "_", " "))
}

func firstExisting(n Node, keys ...string) Node {
	for _, key := range keys {
		if v := n.Get(key); v.Exists() {
			return v
		}
	}
	return Absent()
}

func firstNonEmpty(n Node, keys ...string) Node {
	for _, key := range keys {
		v := n.Get(key)
		if s, ok := v.Raw().(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		if v.Exists() {
			return v
		}
	}
	return Absent()
}
