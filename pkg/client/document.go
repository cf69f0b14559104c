package client

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Document is a JSON:API response envelope as returned by the DataCite REST API.
type Document struct {
	// Data holds either a single resource object or an array of them.
	Data json.RawMessage `json:"data"`

	Meta  *Meta `json:"meta"`
	Links Links `json:"links"`

	endpoint string
	query    string
}

// Resource is a JSON:API resource object.
type Resource struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Meta is the top-level meta object. Total is a pointer so that an absent
// total can be told apart from zero.
type Meta struct {
	Total      *int    `json:"total"`
	TotalPages int     `json:"totalPages"`
	Page       int     `json:"page"`
	Providers  []Facet `json:"providers"`
}

// Facet is one value of a facet list with its count.
type Facet struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

// Links is the top-level links object.
type Links struct {
	Self string `json:"self"`
	Next string `json:"next"`
}

// Resources decodes Data as a list of resources. A single resource object is
// returned as a one-element list, a null or absent Data as an empty list.
func (d *Document) Resources() ([]Resource, error) {
	raw := bytes.TrimSpace(d.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '{' {
		var r Resource
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, d.shapeError("data", err)
		}
		return []Resource{r}, nil
	}

	var rs []Resource
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, d.shapeError("data", err)
	}
	return rs, nil
}

// Total returns meta.total or a ResponseShapeError if it is absent.
func (d *Document) Total() (int, error) {
	if d.Meta == nil {
		return 0, d.shapeError("meta", ErrMissingField)
	}
	if d.Meta.Total == nil {
		return 0, d.shapeError("meta.total", ErrMissingField)
	}
	return *d.Meta.Total, nil
}

// TotalPages returns meta.totalPages, treating an absent value as a single page.
func (d *Document) TotalPages() int {
	if d.Meta == nil || d.Meta.TotalPages < 1 {
		return 1
	}
	return d.Meta.TotalPages
}

// ProviderCount returns the provider facet count for id. Providers without
// matching DOIs are left out of the facet list by the API, so an absent id
// yields 0.
func (d *Document) ProviderCount(id string) int {
	if d.Meta == nil {
		return 0
	}
	for _, f := range d.Meta.Providers {
		if strings.EqualFold(f.ID, id) {
			return f.Count
		}
	}
	return 0
}

// StringAttribute returns attributes[name] as a string. ok is false when the
// attribute is absent, null or not a string.
func (r Resource) StringAttribute(name string) (string, bool) {
	v, found := r.Attributes[name]
	if !found || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (d *Document) shapeError(field string, err error) error {
	return &ResponseShapeError{
		Endpoint: d.endpoint,
		Query:    d.query,
		Field:    field,
		Err:      err,
	}
}
