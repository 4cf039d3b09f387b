package merge

import (
	"fmt"
	"strings"

	"github.com/rickgao/ercot-data/internal/schema"
)

// Source types written to FINAL.
const (
	SourceBid   = "Bid"
	SourceOffer = "Offer"
)

// side pairs an award table with the curve table it was awarded from.
type side struct {
	source  string
	award   *schema.Table
	curve   *schema.Table
	awardMW string // award MW key, shared by the award table and FINAL
	idKey   string
}

func sides() []side {
	return []side{
		{
			source:  SourceBid,
			award:   schema.MustLookup(schema.BidAwards),
			curve:   schema.MustLookup(schema.Bids),
			awardMW: schema.KeyBidAwardMW,
			idKey:   schema.KeyBidID,
		},
		{
			source:  SourceOffer,
			award:   schema.MustLookup(schema.OfferAwards),
			curve:   schema.MustLookup(schema.Offers),
			awardMW: schema.KeyOfferAwardMW,
			idKey:   schema.KeyOfferID,
		},
	}
}

// deleteSQL clears FINAL, or only the window bound to $1 and $2.
func deleteSQL(windowed bool) string {
	final := schema.MustLookup(schema.Final)
	q := "DELETE FROM " + final.SQLName
	if windowed {
		q += fmt.Sprintf(" WHERE %s BETWEEN $1 AND $2", final.ColumnName(schema.KeyDeliveryDate))
	}
	return q
}

// insertSQL builds the INSERT ... SELECT for one side.
func insertSQL(s side, windowed bool) string {
	final := schema.MustLookup(schema.Final)
	prices := schema.MustLookup(schema.SettlementPointPrices)
	tiers := s.curve.Tiers

	a := func(key string) string { return "a." + s.award.ColumnName(key) }
	c := func(key string) string { return "c." + s.curve.ColumnName(key) }

	targets := final.ColumnName
	cols := []string{
		targets(schema.KeyDeliveryDate),
		targets(schema.KeyHourEnding),
		targets(schema.KeySettlementPoint),
		targets(schema.KeyQSEName),
		targets(schema.KeySourceType),
		targets(s.awardMW),
		targets(s.idKey),
		targets(schema.KeySettlementPrice),
		targets(schema.KeyMarkPrice),
		targets(tiers.OutPrice),
		targets(tiers.OutSize),
		targets(schema.KeyFinalBlockCurve),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\n", final.SQLName, strings.Join(cols, ", "))
	b.WriteString("SELECT\n")
	fields := []string{
		a(schema.KeyDeliveryDate),
		a(schema.KeyHourEnding),
		a(schema.KeySettlementPoint),
		a(schema.KeyQSEName),
		"'" + s.source + "'",
		a(s.awardMW),
		a(s.idKey),
		fmt.Sprintf("COALESCE(p.price, %s)", a(schema.KeySettlementPrice)),
		"p.price",
		tierCase(tiers, func(n int) string { return c(tiers.PriceKeyFor(n)) }, c),
		tierCase(tiers, func(n int) string { return c(tiers.MWKeyFor(n)) }, c),
		c(schema.KeyBlockCurve),
	}
	b.WriteString("\t" + strings.Join(fields, ",\n\t") + "\n")

	fmt.Fprintf(&b, "FROM %s a\n", s.award.SQLName)
	fmt.Fprintf(&b, "LEFT JOIN %s c ON %s = %s AND %s = %s AND %s = %s\n",
		s.curve.SQLName,
		c(s.idKey), a(s.idKey),
		c(schema.KeyDeliveryDate), a(schema.KeyDeliveryDate),
		c(schema.KeyHourEnding), a(schema.KeyHourEnding),
	)

	date := prices.ColumnName(schema.KeyDeliveryDate)
	hour := prices.ColumnName(schema.KeyDeliveryHour)
	point := prices.ColumnName(schema.KeySettlementPoint)
	fmt.Fprintf(&b, "LEFT JOIN (SELECT %s, %s, %s, AVG(%s) AS price FROM %s",
		date, hour, point, prices.ColumnName(schema.KeySettlementPrice), prices.SQLName)
	if windowed {
		fmt.Fprintf(&b, " WHERE %s BETWEEN $1 AND $2", date)
	}
	fmt.Fprintf(&b, " GROUP BY %s, %s, %s) p", date, hour, point)
	fmt.Fprintf(&b, " ON p.%s = %s AND p.%s = %s AND p.%s = %s",
		point, a(schema.KeySettlementPoint),
		date, a(schema.KeyDeliveryDate),
		hour, a(schema.KeyHourEnding),
	)
	if windowed {
		fmt.Fprintf(&b, "\nWHERE %s BETWEEN $1 AND $2", a(schema.KeyDeliveryDate))
	}
	return b.String()
}

// tierCase picks the first tier, ascending, whose MW is not null.
func tierCase(t *schema.Tiers, pick func(n int) string, c func(string) string) string {
	var b strings.Builder
	b.WriteString("CASE")
	for n := 1; n <= t.Count; n++ {
		fmt.Fprintf(&b, " WHEN %s IS NOT NULL THEN %s", c(t.MWKeyFor(n)), pick(n))
	}
	b.WriteString(" END")
	return b.String()
}

// reportSQL counts the distinct QSEs and settlement points in FINAL.
func reportSQL(windowed bool) string {
	final := schema.MustLookup(schema.Final)
	q := fmt.Sprintf("SELECT COUNT(DISTINCT %s), COUNT(DISTINCT %s) FROM %s",
		final.ColumnName(schema.KeyQSEName),
		final.ColumnName(schema.KeySettlementPoint),
		final.SQLName,
	)
	if windowed {
		q += fmt.Sprintf(" WHERE %s BETWEEN $1 AND $2", final.ColumnName(schema.KeyDeliveryDate))
	}
	return q
}
