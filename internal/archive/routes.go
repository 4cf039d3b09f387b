package archive

import (
	"path"
	"strings"

	"github.com/rickgao/ercot-data/internal/schema"
)

// Reasons a bundle entry is not ingested.
const (
	ReasonNotNestedZip  = "not a nested zip"
	ReasonNotCSV        = "not a CSV"
	ReasonUnknownPrefix = "unrecognized prefix"
	ReasonNoTable       = "no table mapping"
	ReasonHeaderless    = "headerless file"
	ReasonCorrupt       = "corrupt"
	ReasonEmpty         = "no data rows"
)

// RouteFunc maps a CSV entry name to its destination table. When the entry
// is not ingested, it returns the reason instead.
type RouteFunc func(name string) (schema.Name, string)

// Product describes one archive product.
type Product struct {
	ID       string    // archive product id, e.g. NP3-966-ER
	MaxBatch int       // documents per download request
	Route    RouteFunc // CSV name to table
}

// Archive products.
var (
	DAM = Product{ID: "NP3-966-ER", MaxBatch: 25, Route: RouteDAM}
	SPP = Product{ID: "NP6-905-CD", MaxBatch: 1000, Route: RouteSPP}
)

// damReports lists the 60-day DAM report prefixes that are ingested.
var damReports = []string{
	"60d_DAM_EnergyBidAwards-",
	"60d_DAM_EnergyBids-",
	"60d_DAM_EnergyOnlyOfferAwards-",
	"60d_DAM_EnergyOnlyOffers-",
}

var damTables = map[string]schema.Name{
	"60d_DAM_EnergyBidAwards-":       schema.BidAwards,
	"60d_DAM_EnergyBids-":            schema.Bids,
	"60d_DAM_EnergyOnlyOfferAwards-": schema.OfferAwards,
	"60d_DAM_EnergyOnlyOffers-":      schema.Offers,
}

// RouteDAM routes DAM disclosure CSVs by report prefix. Other DAM reports
// in the same bundle (resource offers, ancillary services) are skipped.
func RouteDAM(name string) (schema.Name, string) {
	base := path.Base(name)
	if !isCSV(base) {
		return "", ReasonNotCSV
	}
	for _, prefix := range damReports {
		if !strings.HasPrefix(base, prefix) {
			continue
		}
		table, ok := damTables[prefix]
		if !ok {
			return "", ReasonNoTable
		}
		return table, ""
	}
	return "", ReasonUnknownPrefix
}

// RouteSPP sends every CSV of a settlement point price bundle to the price
// table.
func RouteSPP(name string) (schema.Name, string) {
	if !isCSV(path.Base(name)) {
		return "", ReasonNotCSV
	}
	return schema.SettlementPointPrices, ""
}

func isCSV(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv")
}

func isZip(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}
