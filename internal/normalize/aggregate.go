package normalize

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rickgao/ercot-data/internal/model"
)

type hourKey struct {
	date  string
	hour  int
	point string
}

// AverageHourly collapses interval prices into one row per delivery date,
// hour and settlement point carrying the mean price. Interval is set to 0.
// Output is ordered by date, hour, then point.
func AverageHourly(prices []model.SettlementPointPrice) []model.SettlementPointPrice {
	type acc struct {
		first model.SettlementPointPrice
		sum   decimal.Decimal
		n     int64
	}

	groups := make(map[hourKey]*acc)
	for _, p := range prices {
		k := hourKey{p.DeliveryDate.Format(model.DateLayout), p.DeliveryHour, p.SettlementPoint}
		a, ok := groups[k]
		if !ok {
			a = &acc{first: p}
			groups[k] = a
		}
		a.sum = a.sum.Add(decimal.NewFromFloat(p.SettlementPointPrice))
		a.n++
	}

	keys := make([]hourKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		if keys[i].hour != keys[j].hour {
			return keys[i].hour < keys[j].hour
		}
		return keys[i].point < keys[j].point
	})

	out := make([]model.SettlementPointPrice, 0, len(keys))
	for _, k := range keys {
		a := groups[k]
		mean, _ := a.sum.Div(decimal.NewFromInt(a.n)).Round(6).Float64()
		row := a.first
		row.DeliveryInterval = 0
		row.SettlementPointPrice = mean
		out = append(out, row)
	}
	return out
}
