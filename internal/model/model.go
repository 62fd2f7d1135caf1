// Package model describes the user-defined data models that back Tables and
// Forms: their fields, validation rules and relations.
package model

import (
	"encoding/json"
	"time"
)

// FieldType is the logical type of a field
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
	FieldJSON     FieldType = "json"
	FieldSelect   FieldType = "select"
)

// FieldTypes lists every supported field type
var FieldTypes = []FieldType{FieldText, FieldNumber, FieldBoolean, FieldDate, FieldDateTime, FieldJSON, FieldSelect}

// Valid reports whether t is a supported field type
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// RelationType is the cardinality of a relation
type RelationType string

const (
	RelationBelongsTo RelationType = "belongsTo"
	RelationHasOne    RelationType = "hasOne"
	RelationHasMany   RelationType = "hasMany"
)

// Relation links a field to another model
type Relation struct {
	Type          RelationType `json:"type"`
	TargetModelID string       `json:"targetModelId"`
	ForeignKey    string       `json:"foreignKey,omitempty"`
}

// Validation holds the rules enforced on a field's values
type Validation struct {
	Required bool     `json:"required,omitempty"`
	Unique   bool     `json:"unique,omitempty"`
	Regex    string   `json:"regex,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
}

// Field is one column of a data model. ID is stable across renames; Key is
// the physical column name.
type Field struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Key          string          `json:"key"`
	Type         FieldType       `json:"type"`
	Description  string          `json:"description,omitempty"`
	DefaultValue json.RawMessage `json:"defaultValue,omitempty"`
	Options      []string        `json:"options,omitempty"`
	Validation   *Validation     `json:"validation,omitempty"`
	Relation     *Relation       `json:"relation,omitempty"`
	IsSystem     bool            `json:"isSystem,omitempty"`
}

// Required reports whether values of the field must be present
func (f Field) Required() bool {
	return f.Validation != nil && f.Validation.Required
}

// Clone returns a deep copy of the field
func (f Field) Clone() Field {
	out := f
	if f.DefaultValue != nil {
		out.DefaultValue = append(json.RawMessage(nil), f.DefaultValue...)
	}
	if f.Options != nil {
		out.Options = append([]string(nil), f.Options...)
	}
	if f.Validation != nil {
		v := *f.Validation
		if v.Min != nil {
			lo := *v.Min
			v.Min = &lo
		}
		if v.Max != nil {
			hi := *v.Max
			v.Max = &hi
		}
		out.Validation = &v
	}
	if f.Relation != nil {
		r := *f.Relation
		out.Relation = &r
	}
	return out
}

// DataModel is a user-defined entity backed by one physical table
type DataModel struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	TableName   string     `json:"table_name"`
	Fields      []Field    `json:"fields"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the model
func (m *DataModel) Clone() *DataModel {
	if m == nil {
		return nil
	}
	out := *m
	out.Fields = make([]Field, len(m.Fields))
	for i, f := range m.Fields {
		out.Fields[i] = f.Clone()
	}
	return &out
}

// Field returns the field with the given id
func (m *DataModel) Field(id string) (Field, bool) {
	for _, f := range m.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByKey returns the field with the given column key
func (m *DataModel) FieldByKey(key string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}
