package routes

import (
	"testing"

	"stylegen/internal/domain"
)

func TestDefaultTable(t *testing.T) {
	table := Default()
	tests := []struct {
		number int
		path   string
		style  string
		mode   domain.Mode
	}{
		{1, "/generate-image1", "style1", domain.ModeGenerate},
		{4, "/generate-image4", "style4", domain.ModeGenerate},
		{5, "/generate-image5", "style5", domain.ModeEdit},
	}
	for _, tc := range tests {
		r, ok := table.ByNumber(tc.number)
		if !ok {
			t.Fatalf("route %d missing", tc.number)
		}
		if r.Path() != tc.path || r.StyleID != tc.style || r.Mode != tc.mode {
			t.Fatalf("route %d = %#v (path %s)", tc.number, r, r.Path())
		}
	}
	edit, _ := table.ByNumber(5)
	if !edit.RequiresUpload() || edit.Upload != ReferenceField {
		t.Fatalf("edit route upload = %q", edit.Upload)
	}
	if _, ok := table.ByNumber(9); ok {
		t.Fatal("unexpected route 9")
	}
	primary, ok := table.Primary()
	if !ok || primary.Number != 1 {
		t.Fatal("primary route should be route 1")
	}
	if primary.Key() != "route1" || edit.Key() != "route5" {
		t.Fatalf("keys = %q/%q", primary.Key(), edit.Key())
	}
}
