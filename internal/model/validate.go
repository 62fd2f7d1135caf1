package model

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	keyPattern     = regexp.MustCompile(`^[a-z0-9_]+$`)
	invalidKeyChar = regexp.MustCompile(`[^a-z0-9_]`)
)

// SystemColumns are created for every table and cannot be used as field keys
var SystemColumns = []string{"id", "created_at", "updated_at"}

// IsSystemColumn reports whether key names a system column
func IsSystemColumn(key string) bool {
	for _, c := range SystemColumns {
		if c == key {
			return true
		}
	}
	return false
}

// MetadataTables hold pages and model metadata and can never back a model
var MetadataTables = []string{"pages"}

// ReservedTable reports whether table belongs to pagecraft itself: the
// metadata tables or anything prefixed with _sys_
func ReservedTable(table string) bool {
	if strings.HasPrefix(table, "_sys_") {
		return true
	}
	for _, t := range MetadataTables {
		if t == table {
			return true
		}
	}
	return false
}

// KeyFromName derives a column key from a display name
func KeyFromName(name string) string {
	return invalidKeyChar.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
}

// ValidKey reports whether key is a valid column or table identifier
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// ValidateField checks one field against the other fields of its model. The
// result is nil or a *ValidationErrors keyed by field attribute.
func ValidateField(f Field, others []Field) error {
	errs := NewValidationErrors()
	validateField(errs, "", f, others)
	return errs.Err()
}

func validateField(errs *ValidationErrors, prefix string, f Field, others []Field) {
	if strings.TrimSpace(f.Name) == "" {
		errs.Add(prefix+"name", "Field name is required.")
	}

	switch {
	case f.Key == "":
		errs.Add(prefix+"key", "Field key is required.")
	case !ValidKey(f.Key):
		errs.Add(prefix+"key", "Only lowercase letters, numbers, and underscores are allowed.")
	case !f.IsSystem && IsSystemColumn(f.Key):
		errs.Add(prefix+"key", fmt.Sprintf("Field key %q is reserved.", f.Key))
	default:
		for _, other := range others {
			if other.Key == f.Key && other.ID != f.ID {
				errs.Add(prefix+"key", fmt.Sprintf("Field key %q already exists.", f.Key))
				break
			}
		}
	}

	if !f.Type.Valid() {
		errs.Add(prefix+"type", fmt.Sprintf("Unsupported field type %q.", f.Type))
	}
	if f.Type == FieldSelect && len(f.Options) == 0 {
		errs.Add(prefix+"options", "Select fields need at least one option.")
	}

	if v := f.Validation; v != nil {
		if v.Regex != "" {
			if _, err := regexp.Compile(v.Regex); err != nil {
				errs.Add(prefix+"validation.regex", fmt.Sprintf("Invalid pattern: %v", err))
			}
		}
		if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
			errs.Add(prefix+"validation.min", "Minimum cannot exceed maximum.")
		}
	}

	if r := f.Relation; r != nil {
		switch r.Type {
		case RelationBelongsTo, RelationHasOne, RelationHasMany:
		default:
			errs.Add(prefix+"relation.type", fmt.Sprintf("Unsupported relation type %q.", r.Type))
		}
		if r.TargetModelID == "" {
			errs.Add(prefix+"relation.targetModelId", "Related model is required.")
		}
	}
}

// ValidateModel checks the model attributes and every field
func ValidateModel(m *DataModel) error {
	errs := NewValidationErrors()
	if m == nil {
		errs.Add("model", "Model is required.")
		return errs
	}
	if strings.TrimSpace(m.Name) == "" {
		errs.Add("name", "Model name is required.")
	}
	switch {
	case m.TableName == "":
		errs.Add("table_name", "Table name is required.")
	case !ValidKey(m.TableName):
		errs.Add("table_name", "Only lowercase letters, numbers, and underscores are allowed.")
	case ReservedTable(m.TableName):
		errs.Add("table_name", fmt.Sprintf("Table name %q is reserved.", m.TableName))
	}

	for i, f := range m.Fields {
		validateField(errs, fmt.Sprintf("fields[%d].", i), f, m.Fields)
	}
	return errs.Err()
}
