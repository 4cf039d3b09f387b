package model

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rickgao/ercot-data/internal/schema"
)

var validate = validator.New()

// decoder reads typed values out of a canonical record, keeping the first
// error it encounters.
type decoder struct {
	table *schema.Table
	rec   Record
	err   error
}

func newDecoder(name schema.Name, rec Record) *decoder {
	d := &decoder{table: schema.MustLookup(name), rec: rec}
	for k := range rec {
		if _, ok := d.table.Column(k); !ok {
			d.fail(k, ErrUnknownField, "")
			break
		}
	}
	return d
}

func (d *decoder) fail(field string, err error, reason string) {
	if d.err != nil {
		return
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		d.err = ve
		return
	}
	d.err = &ValidationError{Table: d.table.Name, Field: field, Reason: reason, Err: err}
}

// value returns the raw value and whether it is present. Missing required
// values are recorded as errors.
func (d *decoder) value(key string) (any, bool) {
	v, ok := d.rec[key]
	if ok && v != nil {
		return v, true
	}
	if c, known := d.table.Column(key); known && c.Required {
		d.fail(key, ErrMissingRequiredField, "")
	}
	return nil, false
}

func (d *decoder) date(key string) time.Time {
	v, ok := d.value(key)
	if !ok {
		return time.Time{}
	}
	t, err := ParseDate(v)
	if err != nil {
		d.fail(key, err, "")
	}
	return t
}

func (d *decoder) hour(key string) int {
	v, ok := d.value(key)
	if !ok {
		return 0
	}
	n, err := ParseHour(v)
	if err != nil {
		d.fail(key, err, "")
	}
	return n
}

func (d *decoder) integer(key string) int {
	v, ok := d.value(key)
	if !ok {
		return 0
	}
	n, err := ParseInt(v)
	if err != nil {
		d.fail(key, err, "")
	}
	return n
}

func (d *decoder) number(key string) float64 {
	v, ok := d.value(key)
	if !ok {
		return 0
	}
	f, err := ParseNumber(v)
	if err != nil {
		d.fail(key, err, "")
	}
	return f
}

func (d *decoder) optNumber(key string) *float64 {
	v, ok := d.value(key)
	if !ok {
		return nil
	}
	f, err := ParseNumber(v)
	if err != nil {
		d.fail(key, err, "")
		return nil
	}
	return &f
}

func (d *decoder) text(key string) string {
	v, ok := d.value(key)
	if !ok {
		return ""
	}
	s, err := ParseText(v)
	if err != nil {
		d.fail(key, err, "")
	}
	return s
}

func (d *decoder) optText(key string) *string {
	v, ok := d.value(key)
	if !ok {
		return nil
	}
	s, err := ParseText(v)
	if err != nil {
		d.fail(key, err, "")
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// check runs struct validation and returns the decoder's first error.
func (d *decoder) check(v any) error {
	if d.err != nil {
		return d.err
	}
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				Table:  d.table.Name,
				Field:  fe.Field(),
				Reason: fe.Tag() + " " + fe.Param(),
				Err:    ErrInvalidValue,
			}
		}
		return &ValidationError{Table: d.table.Name, Err: err}
	}
	return nil
}
