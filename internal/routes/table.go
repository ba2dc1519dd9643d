package routes

import (
	"fmt"

	"stylegen/internal/domain"
)

// BasePath is the shared prefix of every image generation endpoint.
const BasePath = "/generate-image"

// Route binds a numbered endpoint to a style and a provider operation.
type Route struct {
	Number  int
	StyleID string
	Mode    domain.Mode
	// Upload names the multipart field carrying the reference image.
	Upload string
}

// Path renders the endpoint path, e.g. /generate-image3.
func (r Route) Path() string {
	return fmt.Sprintf("%s%d", BasePath, r.Number)
}

// RequiresUpload reports whether requests must carry a reference image.
func (r Route) RequiresUpload() bool {
	return r.Mode == domain.ModeEdit
}

// Key identifies the route for quota accounting and metrics.
func (r Route) Key() string {
	return fmt.Sprintf("route%d", r.Number)
}

// ReferenceField is the multipart field used by edit routes.
const ReferenceField = "referenceImage"

// Table is the static endpoint mapping. Adding a route is a code change.
type Table struct {
	routes []Route
}

// Default returns the production table.
func Default() Table {
	return Table{routes: []Route{
		{Number: 1, StyleID: "style1", Mode: domain.ModeGenerate},
		{Number: 2, StyleID: "style2", Mode: domain.ModeGenerate},
		{Number: 3, StyleID: "style3", Mode: domain.ModeGenerate},
		{Number: 4, StyleID: "style4", Mode: domain.ModeGenerate},
		{Number: 5, StyleID: "style5", Mode: domain.ModeEdit, Upload: ReferenceField},
	}}
}

// NewTable is used by tests and tools that need a custom mapping.
func NewTable(routes ...Route) Table {
	return Table{routes: append([]Route(nil), routes...)}
}

// Routes returns a copy of the table entries.
func (t Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// ByNumber finds a route by its endpoint number.
func (t Table) ByNumber(n int) (Route, bool) {
	for _, r := range t.routes {
		if r.Number == n {
			return r, true
		}
	}
	return Route{}, false
}

// Primary is the route also served on the bare BasePath.
func (t Table) Primary() (Route, bool) {
	return t.ByNumber(1)
}
