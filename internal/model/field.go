// Package model implements the schema layer: ordered field
// definitions, the primary-key field, and per-field validation/
// coercion (§3, §4.2).
package model

import "github.com/gridrow/dbengine/internal/cell"

// Field carries one column's definition: its declared class and
// whether null is accepted. vt_data_fpath in the original source is
// Validate here — it both checks and may coerce the incoming cell.
type Field struct {
	Name     string
	Class    cell.TagClass
	Nullable bool
}

// Validate checks (and, for future coercions, may rewrite) d in place.
// It reports whether the value is acceptable for this field.
func (f Field) Validate(d *cell.Datacell) bool {
	if d.IsNull() {
		return f.Nullable
	}
	return d.Class() == f.Class
}
