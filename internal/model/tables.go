package model

import (
	"fmt"
	"time"

	"github.com/rickgao/ercot-data/internal/schema"
)

// -----------------------------------------------------------------------------
// Prices
// -----------------------------------------------------------------------------

// SettlementPointPrice is one price observation at a settlement point.
type SettlementPointPrice struct {
	DeliveryDate         time.Time `validate:"required"`
	DeliveryHour         int       `validate:"min=1,max=25"`
	DeliveryInterval     int       `validate:"min=0,max=4"`
	SettlementPoint      string    `validate:"required"`
	SettlementPointType  *string
	SettlementPointPrice float64
	DSTFlag              *string
}

// NewSettlementPointPrice builds a validated SettlementPointPrice.
func NewSettlementPointPrice(rec Record) (SettlementPointPrice, error) {
	d := newDecoder(schema.SettlementPointPrices, rec)
	p := SettlementPointPrice{
		DeliveryDate:         d.date(schema.KeyDeliveryDate),
		DeliveryHour:         d.hour(schema.KeyDeliveryHour),
		DeliveryInterval:     d.integer(schema.KeyDeliveryInterval),
		SettlementPoint:      d.text(schema.KeySettlementPoint),
		SettlementPointType:  d.optText(schema.KeySettlementPointType),
		SettlementPointPrice: d.number(schema.KeySettlementPrice),
		DSTFlag:              d.optText(schema.KeyDSTFlag),
	}
	return p, d.check(p)
}

func (p SettlementPointPrice) Table() schema.Name { return schema.SettlementPointPrices }
func (p SettlementPointPrice) Date() time.Time { return p.DeliveryDate }

func (p SettlementPointPrice) Key() Key {
	return KeyOf(p.DeliveryDate, p.DeliveryHour, p.DeliveryInterval, p.SettlementPoint)
}

func (p SettlementPointPrice) Values() []any {
	return []any{
		p.DeliveryDate, p.DeliveryHour, p.DeliveryInterval, p.SettlementPoint,
		p.SettlementPointType, p.SettlementPointPrice, p.DSTFlag,
	}
}

// -----------------------------------------------------------------------------
// Awards
// -----------------------------------------------------------------------------

// BidAward is an energy-only bid cleared in the day-ahead market.
type BidAward struct {
	DeliveryDate           time.Time `validate:"required"`
	HourEnding             int       `validate:"min=1,max=25"`
	SettlementPoint        string    `validate:"required"`
	QSEName                string    `validate:"required"`
	EnergyOnlyBidAwardInMW float64
	SettlementPointPrice   float64
	BidID                  string `validate:"required"`
}

// NewBidAward builds a validated BidAward.
func NewBidAward(rec Record) (BidAward, error) {
	d := newDecoder(schema.BidAwards, rec)
	a := BidAward{
		DeliveryDate:           d.date(schema.KeyDeliveryDate),
		HourEnding:             d.hour(schema.KeyHourEnding),
		SettlementPoint:        d.text(schema.KeySettlementPoint),
		QSEName:                d.text(schema.KeyQSEName),
		EnergyOnlyBidAwardInMW: d.number(schema.KeyBidAwardMW),
		SettlementPointPrice:   d.number(schema.KeySettlementPrice),
		BidID:                  d.text(schema.KeyBidID),
	}
	return a, d.check(a)
}

func (a BidAward) Table() schema.Name { return schema.BidAwards }
func (a BidAward) Date() time.Time { return a.DeliveryDate }

func (a BidAward) Key() Key {
	return KeyOf(a.DeliveryDate, a.HourEnding, a.SettlementPoint, a.QSEName, a.BidID)
}

func (a BidAward) Values() []any {
	return []any{
		a.DeliveryDate, a.HourEnding, a.SettlementPoint, a.QSEName,
		a.EnergyOnlyBidAwardInMW, a.SettlementPointPrice, a.BidID,
	}
}

// OfferAward is an energy-only offer cleared in the day-ahead market.
type OfferAward struct {
	DeliveryDate             time.Time `validate:"required"`
	HourEnding               int       `validate:"min=1,max=25"`
	SettlementPoint          string    `validate:"required"`
	QSEName                  string    `validate:"required"`
	EnergyOnlyOfferAwardInMW float64
	SettlementPointPrice     float64
	OfferID                  string `validate:"required"`
}

// NewOfferAward builds a validated OfferAward.
func NewOfferAward(rec Record) (OfferAward, error) {
	d := newDecoder(schema.OfferAwards, rec)
	a := OfferAward{
		DeliveryDate:             d.date(schema.KeyDeliveryDate),
		HourEnding:               d.hour(schema.KeyHourEnding),
		SettlementPoint:          d.text(schema.KeySettlementPoint),
		QSEName:                  d.text(schema.KeyQSEName),
		EnergyOnlyOfferAwardInMW: d.number(schema.KeyOfferAwardMW),
		SettlementPointPrice:     d.number(schema.KeySettlementPrice),
		OfferID:                  d.text(schema.KeyOfferID),
	}
	return a, d.check(a)
}

func (a OfferAward) Table() schema.Name { return schema.OfferAwards }
func (a OfferAward) Date() time.Time { return a.DeliveryDate }

func (a OfferAward) Key() Key {
	return KeyOf(a.DeliveryDate, a.HourEnding, a.SettlementPoint, a.QSEName, a.OfferID)
}

func (a OfferAward) Values() []any {
	return []any{
		a.DeliveryDate, a.HourEnding, a.SettlementPoint, a.QSEName,
		a.EnergyOnlyOfferAwardInMW, a.SettlementPointPrice, a.OfferID,
	}
}

// -----------------------------------------------------------------------------
// Curves
// -----------------------------------------------------------------------------

// Tier is one MW/price step of a curve. Either side may be null.
type Tier struct {
	MW    *float64
	Price *float64
}

// Curve is the shared shape of bids and offers.
type Curve struct {
	DeliveryDate    time.Time `validate:"required"`
	HourEnding      int       `validate:"min=1,max=25"`
	SettlementPoint string    `validate:"required"`
	QSEName         string    `validate:"required"`
	ID              *string
	MultiHourBlock  *string
	BlockCurve      *string
	Tiers           [schema.TierCount]Tier
}

// First returns the first tier, ascending, whose MW is set.
func (c Curve) First() (Tier, int, bool) {
	for i, t := range c.Tiers {
		if t.MW != nil {
			return t, i + 1, true
		}
	}
	return Tier{}, 0, false
}

func decodeCurve(d *decoder, idKey string) Curve {
	c := Curve{
		DeliveryDate:    d.date(schema.KeyDeliveryDate),
		HourEnding:      d.hour(schema.KeyHourEnding),
		SettlementPoint: d.text(schema.KeySettlementPoint),
		QSEName:         d.text(schema.KeyQSEName),
		ID:              d.optText(idKey),
		MultiHourBlock:  d.optText(schema.KeyMultiHourBlock),
		BlockCurve:      d.optText(schema.KeyBlockCurve),
	}
	tiers := d.table.Tiers
	for i := range c.Tiers {
		c.Tiers[i] = Tier{
			MW:    d.optNumber(tiers.MWKeyFor(i + 1)),
			Price: d.optNumber(tiers.PriceKeyFor(i + 1)),
		}
	}
	return c
}

func (c Curve) key() Key {
	return KeyOf(c.DeliveryDate, c.HourEnding, c.SettlementPoint, c.QSEName, c.ID)
}

func (c Curve) values() []any {
	vals := make([]any, 0, 7+2*schema.TierCount)
	vals = append(vals,
		c.DeliveryDate, c.HourEnding, c.SettlementPoint, c.QSEName,
		c.ID, c.MultiHourBlock, c.BlockCurve,
	)
	for _, t := range c.Tiers {
		vals = append(vals, t.MW, t.Price)
	}
	return vals
}

// Bid is an energy-only bid curve.
type Bid struct{ Curve }

// NewBid builds a validated Bid.
func NewBid(rec Record) (Bid, error) {
	d := newDecoder(schema.Bids, rec)
	b := Bid{decodeCurve(d, schema.KeyBidID)}
	return b, d.check(b)
}

func (b Bid) Table() schema.Name { return schema.Bids }
func (b Bid) Date() time.Time { return b.DeliveryDate }
func (b Bid) Key() Key { return b.key() }
func (b Bid) Values() []any { return b.values() }

// Offer is an energy-only offer curve.
type Offer struct{ Curve }

// NewOffer builds a validated Offer.
func NewOffer(rec Record) (Offer, error) {
	d := newDecoder(schema.Offers, rec)
	o := Offer{decodeCurve(d, schema.KeyOfferID)}
	return o, d.check(o)
}

func (o Offer) Table() schema.Name { return schema.Offers }
func (o Offer) Date() time.Time { return o.DeliveryDate }
func (o Offer) Key() Key { return o.key() }
func (o Offer) Values() []any { return o.values() }

// New dispatches to the constructor of the named table.
func New(table schema.Name, rec Record) (Row, error) {
	switch table {
	case schema.SettlementPointPrices:
		return wrap(NewSettlementPointPrice(rec))
	case schema.BidAwards:
		return wrap(NewBidAward(rec))
	case schema.OfferAwards:
		return wrap(NewOfferAward(rec))
	case schema.Bids:
		return wrap(NewBid(rec))
	case schema.Offers:
		return wrap(NewOffer(rec))
	default:
		return nil, fmt.Errorf("%w: %s has no row model", schema.ErrUnknownTable, table)
	}
}

func wrap[R Row](r R, err error) (Row, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}
