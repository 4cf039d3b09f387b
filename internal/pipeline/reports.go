package pipeline

import (
	"fmt"

	"github.com/rickgao/ercot-data/internal/archive"
	"github.com/rickgao/ercot-data/internal/schema"
	"github.com/rickgao/ercot-data/internal/store"
)

// Report ties a table to the live endpoint and archive product serving it.
type Report struct {
	Table    schema.Name
	Endpoint string
	Product  archive.Product
	Cache    store.CacheType
}

// Reports is the catalogue in ingest order.
var Reports = []Report{
	{schema.BidAwards, "np3-966-er/60_dam_energy_bid_awards", archive.DAM, store.CacheDAM},
	{schema.Bids, "np3-966-er/60_dam_energy_bids", archive.DAM, store.CacheDAM},
	{schema.OfferAwards, "np3-966-er/60_dam_energy_only_offer_awards", archive.DAM, store.CacheDAM},
	{schema.Offers, "np3-966-er/60_dam_energy_only_offers", archive.DAM, store.CacheDAM},
	{schema.SettlementPointPrices, "np6-905-cd/spp_node_zone_hub", archive.SPP, store.CacheSPP},
}

// LookupReport returns the catalogue entry for a table.
func LookupReport(name schema.Name) (Report, error) {
	for _, r := range Reports {
		if r.Table == name {
			return r, nil
		}
	}
	return Report{}, fmt.Errorf("%w: no report for %s", schema.ErrUnknownTable, name)
}

// group is the selected reports of one archive product.
type group struct {
	product archive.Product
	cache   store.CacheType
	reports []Report
}

// groups returns the selected reports grouped by product, in catalogue
// order. An empty selection means every report.
func groups(tables []schema.Name) ([]group, error) {
	want := make(map[schema.Name]bool, len(tables))
	for _, t := range tables {
		if _, err := LookupReport(t); err != nil {
			return nil, err
		}
		want[t] = true
	}

	var out []group
	for _, r := range Reports {
		if len(want) > 0 && !want[r.Table] {
			continue
		}
		if n := len(out); n > 0 && out[n-1].product.ID == r.Product.ID {
			out[n-1].reports = append(out[n-1].reports, r)
			continue
		}
		out = append(out, group{product: r.Product, cache: r.Cache, reports: []Report{r}})
	}
	return out, nil
}

// route restricts the product's routing to the group's tables.
func (g group) route() archive.RouteFunc {
	return func(name string) (schema.Name, string) {
		table, reason := g.product.Route(name)
		if reason != "" {
			return table, reason
		}
		for _, r := range g.reports {
			if r.Table == table {
				return table, ""
			}
		}
		return "", ReasonNotSelected
	}
}

// ReasonNotSelected marks archive files of tables outside the selection.
const ReasonNotSelected = "table not selected"
