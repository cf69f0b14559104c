package client

import (
	"encoding/json"
	"errors"
	"testing"
)

func decodeDocument(t *testing.T, body string) *Document {
	t.Helper()
	doc := &Document{endpoint: "dois", query: "page%5Bsize%5D=0"}
	if err := json.Unmarshal([]byte(body), doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return doc
}

func TestDocument_ProviderCount(t *testing.T) {
	doc := decodeDocument(t, `{
		"data": [],
		"meta": {
			"total": 17,
			"providers": [
				{"id": "alpha", "title": "Alpha University", "count": 12},
				{"id": "gamma", "title": "Gamma Institute", "count": 5}
			]
		}
	}`)

	tests := []struct {
		id   string
		want int
	}{
		{"alpha", 12},
		{"ALPHA", 12},
		{"gamma", 5},
		{"beta", 0},
	}

	for _, tt := range tests {
		if got := doc.ProviderCount(tt.id); got != tt.want {
			t.Errorf("ProviderCount(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestDocument_ProviderCount_NoFacets(t *testing.T) {
	doc := decodeDocument(t, `{"data": [], "meta": {"total": 0}}`)
	if got := doc.ProviderCount("alpha"); got != 0 {
		t.Errorf("ProviderCount() = %d, want 0", got)
	}

	empty := &Document{}
	if got := empty.ProviderCount("alpha"); got != 0 {
		t.Errorf("ProviderCount() without meta = %d, want 0", got)
	}
}

func TestDocument_Total(t *testing.T) {
	doc := decodeDocument(t, `{"meta": {"total": 0}}`)
	total, err := doc.Total()
	if err != nil || total != 0 {
		t.Errorf("Total() = %d, %v; want 0, nil", total, err)
	}

	missing := decodeDocument(t, `{"meta": {"totalPages": 3}}`)
	_, err = missing.Total()
	var shapeErr *ResponseShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("Total() error = %v, want *ResponseShapeError", err)
	}
	if shapeErr.Field != "meta.total" || shapeErr.Endpoint != "dois" {
		t.Errorf("shape error = %+v", shapeErr)
	}
}

func TestDocument_TotalPages(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{`{"meta": {"totalPages": 4}}`, 4},
		{`{"meta": {"totalPages": 0}}`, 1},
		{`{"meta": {}}`, 1},
		{`{}`, 1},
	}

	for _, tt := range tests {
		if got := decodeDocument(t, tt.body).TotalPages(); got != tt.want {
			t.Errorf("TotalPages(%s) = %d, want %d", tt.body, got, tt.want)
		}
	}
}

func TestDocument_Resources(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
		wantErr bool
	}{
		{"array", `{"data": [{"id": "a"}, {"id": "b"}]}`, []string{"a", "b"}, false},
		{"object", `{"data": {"id": "a"}}`, []string{"a"}, false},
		{"null", `{"data": null}`, nil, false},
		{"absent", `{"meta": {}}`, nil, false},
		{"wrong type", `{"data": [1, 2]}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources, err := decodeDocument(t, tt.body).Resources()
			if tt.wantErr {
				var shapeErr *ResponseShapeError
				if !errors.As(err, &shapeErr) || shapeErr.Field != "data" {
					t.Fatalf("error = %v, want data shape error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resources() error = %v", err)
			}
			if len(resources) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d", len(resources), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if resources[i].ID != id {
					t.Errorf("resources[%d].ID = %q, want %q", i, resources[i].ID, id)
				}
			}
		})
	}
}

func TestResource_StringAttribute(t *testing.T) {
	r := Resource{Attributes: map[string]interface{}{
		"name":    "Alpha University",
		"country": nil,
		"year":    2010.0,
	}}

	if v, ok := r.StringAttribute("name"); !ok || v != "Alpha University" {
		t.Errorf("name = %q, %v", v, ok)
	}
	if _, ok := r.StringAttribute("country"); ok {
		t.Error("null attribute should not be ok")
	}
	if _, ok := r.StringAttribute("year"); ok {
		t.Error("non-string attribute should not be ok")
	}
	if _, ok := r.StringAttribute("missing"); ok {
		t.Error("missing attribute should not be ok")
	}
}
