package models

import "time"

// NetworkCall is one outbound request observed while a page rendered.
type NetworkCall struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Body   string `json:"body,omitempty"`
}

// Page is what a fetch returns: the rendered markup plus the requests it issued.
type Page struct {
	URL       string        `json:"url"`
	HTML      string        `json:"html"`
	Calls     []NetworkCall `json:"calls"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Identifier names one input row: a listing URL and, optionally, its known id.
type Identifier struct {
	PropertyID string `json:"property_id,omitempty"`
	URL        string `json:"url"`
}

// Key returns the stable identity used for progress tracking.
func (i Identifier) Key() string {
	if i.PropertyID != "" {
		return i.PropertyID
	}
	return i.URL
}
