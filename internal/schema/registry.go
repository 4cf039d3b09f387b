package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownTable is returned when a table name is not in the registry.
var ErrUnknownTable = errors.New("unknown table")

// Name identifies a table in the registry.
type Name string

// Registered tables.
const (
	Bids                  Name = "BIDS"
	BidAwards             Name = "BID_AWARDS"
	Offers                Name = "OFFERS"
	OfferAwards           Name = "OFFER_AWARDS"
	SettlementPointPrices Name = "SETTLEMENT_POINT_PRICES"
	Final                 Name = "FINAL"
)

// ColumnType is the SQL type of a column.
type ColumnType string

// Supported column types.
const (
	Date      ColumnType = "DATE"
	Integer   ColumnType = "INTEGER"
	Numeric   ColumnType = "NUMERIC"
	Text      ColumnType = "TEXT"
	Timestamp ColumnType = "TIMESTAMPTZ"
)

// Column describes one column of a table.
type Column struct {
	Key      string // canonical record key
	Name     string // SQL column name
	Type     ColumnType
	Required bool
	Aliases  []string // additional header spellings, any case/spacing
}

// Tiers describes the MW/price steps of a bid or offer curve.
type Tiers struct {
	Count    int
	MWKey    string // format with tier number, e.g. "energyOnlyBidMW%d"
	PriceKey string
	OutPrice string // FINAL key receiving the selected price
	OutSize  string // FINAL key receiving the selected MW
}

// MWKeyFor returns the canonical MW key of tier n (1-based).
func (t Tiers) MWKeyFor(n int) string { return fmt.Sprintf(t.MWKey, n) }

// PriceKeyFor returns the canonical price key of tier n (1-based).
func (t Tiers) PriceKeyFor(n int) string { return fmt.Sprintf(t.PriceKey, n) }

// Table describes one fact table.
type Table struct {
	Name    Name
	SQLName string
	Columns []Column

	// BusinessKey lists the canonical keys that identify a row for dedup.
	BusinessKey []string

	// Role keys. Empty when the table has no such column.
	DateKey  string
	HourKey  string
	PointKey string
	QSEKey   string
	IDKey    string

	// IDAlternates are raw key spellings promoted to IDKey when IDKey is absent.
	IDAlternates []string

	Tiers *Tiers

	byKey   map[string]int
	aliases map[string]string
}

// Column returns the column with the given canonical key.
func (t *Table) Column(key string) (Column, bool) {
	i, ok := t.byKey[key]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// ColumnName returns the SQL column name for a canonical key.
// It panics on an unknown key; callers pass registry constants.
func (t *Table) ColumnName(key string) string {
	c, ok := t.Column(key)
	if !ok {
		panic(fmt.Sprintf("schema: table %s has no column %q", t.Name, key))
	}
	return c.Name
}

// Canonical maps a raw header or JSON key to the table's canonical key.
// The second result is false when the key is not recognized.
func (t *Table) Canonical(raw string) (string, bool) {
	k, ok := t.aliases[FoldKey(raw)]
	return k, ok
}

// RequiredKeys returns the canonical keys that must be present.
func (t *Table) RequiredKeys() []string {
	var keys []string
	for _, c := range t.Columns {
		if c.Required {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

// Keys returns all canonical keys in column order.
func (t *Table) Keys() []string {
	keys := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		keys[i] = c.Key
	}
	return keys
}

// IsFact reports whether the table receives ingested rows.
func (t *Table) IsFact() bool { return t.Name != Final }

// FoldKey lower-cases a header and removes whitespace, underscores,
// hyphens and slashes so that "Delivery Date", "delivery_date" and
// "deliveryDate" compare equal.
func FoldKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '\t', '\n', '\r', '_', '-', '/':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (t *Table) index() {
	t.byKey = make(map[string]int, len(t.Columns))
	t.aliases = make(map[string]string, len(t.Columns)*2)
	for i, c := range t.Columns {
		t.byKey[c.Key] = i
		t.aliases[FoldKey(c.Key)] = c.Key
		t.aliases[FoldKey(c.Name)] = c.Key
		for _, a := range c.Aliases {
			t.aliases[FoldKey(a)] = c.Key
		}
	}
}

var registry = map[Name]*Table{}

func register(t *Table) {
	t.index()
	registry[t.Name] = t
}

// Lookup returns the registered table with the given name.
func Lookup(name Name) (*Table, error) {
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// MustLookup is Lookup for registry constants.
func MustLookup(name Name) *Table {
	t, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}

// FactTables returns the ingested tables in a stable order.
func FactTables() []*Table {
	var out []*Table
	for _, t := range registry {
		if t.IsFact() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseName resolves a table name, accepting any case.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := registry[n]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, s)
	}
	return n, nil
}
