package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrFieldNotFound is returned when a draft has no field with the given id
	ErrFieldNotFound = errors.New("field not found")
	// ErrSystemField is returned when a system field is updated or deleted
	ErrSystemField = errors.New("system fields cannot be changed")
)

// Draft is an unpublished edit of a model's field definitions. It keeps the
// last published version so callers can tell whether there is anything to
// publish.
type Draft struct {
	original *DataModel
	current  *DataModel
	dirty    bool
}

// NewDraft starts a draft from the last published version of a model
func NewDraft(published *DataModel) *Draft {
	if published == nil {
		published = &DataModel{}
	}
	return &Draft{
		original: published.Clone(),
		current:  published.Clone(),
	}
}

// Current returns a copy of the draft model
func (d *Draft) Current() *DataModel { return d.current.Clone() }

// Original returns a copy of the model the draft started from
func (d *Draft) Original() *DataModel { return d.original.Clone() }

// Dirty reports whether the draft changed since it was created or published
func (d *Draft) Dirty() bool { return d.dirty }

// AddField appends a field. A missing id is generated.
func (d *Draft) AddField(f Field) (Field, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := ValidateField(f, d.current.Fields); err != nil {
		return Field{}, err
	}
	d.current.Fields = append(d.current.Fields, f.Clone())
	d.dirty = true
	return f, nil
}

// UpdateField replaces the field with the same id
func (d *Draft) UpdateField(f Field) error {
	idx := d.indexOf(f.ID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, f.ID)
	}
	if d.current.Fields[idx].IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemField, d.current.Fields[idx].Key)
	}
	if err := ValidateField(f, d.current.Fields); err != nil {
		return err
	}
	d.current.Fields[idx] = f.Clone()
	d.dirty = true
	return nil
}

// DeleteField removes the field with the given id
func (d *Draft) DeleteField(id string) error {
	idx := d.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	if d.current.Fields[idx].IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemField, d.current.Fields[idx].Key)
	}
	d.current.Fields = append(d.current.Fields[:idx], d.current.Fields[idx+1:]...)
	d.dirty = true
	return nil
}

// MarkPublished makes the current draft the new baseline
func (d *Draft) MarkPublished() {
	d.original = d.current.Clone()
	d.dirty = false
}

func (d *Draft) indexOf(id string) int {
	for i, f := range d.current.Fields {
		if f.ID == id {
			return i
		}
	}
	return -1
}
