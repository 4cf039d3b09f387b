package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/ercot-data/internal/schema"
)

// Record is a string-keyed row. Raw records carry whatever keys the source
// used; canonical records carry the registry keys of one table.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Row is a validated, typed row of one fact table.
type Row interface {
	// Table returns the destination table.
	Table() schema.Name

	// Values returns column values in registry column order.
	Values() []any

	// Key returns the business key used for dedup.
	Key() Key

	// Date returns the delivery date.
	Date() time.Time
}

// Key is a business key flattened to a comparable value.
type Key string

const keySep = "\x1f"

// KeyOf builds a Key from business key values. It accepts the Go types
// produced by model constructors and by pgx when scanning key columns.
func KeyOf(values ...any) Key {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = keyPart(v)
	}
	return Key(strings.Join(parts, keySep))
}

func keyPart(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case time.Time:
		return x.Format(DateLayout)
	case int:
		return strconv.Itoa(x)
	case int16:
		return strconv.Itoa(int(x))
	case int32:
		return strconv.Itoa(int(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case *int:
		if x == nil {
			return ""
		}
		return strconv.Itoa(*x)
	default:
		return fmt.Sprint(x)
	}
}
