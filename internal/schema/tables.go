package schema

import (
	"fmt"
	"strings"
)

// Canonical keys shared by several tables.
const (
	KeyDeliveryDate        = "deliveryDate"
	KeyHourEnding          = "hourEnding"
	KeyDeliveryHour        = "deliveryHour"
	KeyDeliveryInterval    = "deliveryInterval"
	KeySettlementPoint     = "settlementPoint"
	KeySettlementPointType = "settlementPointType"
	KeySettlementPrice     = "settlementPointPrice"
	KeyDSTFlag             = "dstFlag"
	KeyQSEName             = "qseName"
	KeyBidID               = "bidId"
	KeyOfferID             = "offerId"
	KeyBidAwardMW          = "energyOnlyBidAwardInMW"
	KeyOfferAwardMW        = "energyOnlyOfferAwardInMW"
	KeyMultiHourBlock      = "multiHourBlockIndicator"
	KeyBlockCurve          = "blockCurveIndicator"

	// FINAL only.
	KeySourceType      = "sourceType"
	KeyMarkPrice       = "markPrice"
	KeyBidPrice        = "bidPrice"
	KeyBidSize         = "bidSize"
	KeyOfferPrice      = "offerPrice"
	KeyOfferSize       = "offerSize"
	KeyFinalBlockCurve = "blockCurve"
)

// TierCount is the number of MW/price steps on a bid or offer curve.
const TierCount = 10

func col(key, name string, typ ColumnType, required bool, aliases ...string) Column {
	return Column{Key: key, Name: name, Type: typ, Required: required, Aliases: aliases}
}

var (
	deliveryDate    = col(KeyDeliveryDate, "delivery_date", Date, true, "Delivery Date", "DeliveryDate", "OperatingDay")
	hourEnding      = col(KeyHourEnding, "hour_ending", Integer, true, "Hour Ending", "HourEnding", "HE")
	settlementPoint = col(KeySettlementPoint, "settlement_point", Text, true, "Settlement Point", "Settlement Point Name", "SettlementPointName")
	qseName         = col(KeyQSEName, "qse_name", Text, true, "QSE Name", "QSE", "QSEName")
)

func tierColumns(kind string) []Column {
	var cols []Column
	for i := 1; i <= TierCount; i++ {
		cols = append(cols,
			col(fmt.Sprintf("energyOnly%sMW%d", kind, i),
				fmt.Sprintf("energy_only_%s_mw%d", strings.ToLower(kind), i), Numeric, false,
				fmt.Sprintf("Energy Only %s MW%d", kind, i),
				fmt.Sprintf("Energy Only %s MW %d", kind, i)),
			col(fmt.Sprintf("energyOnly%sPrice%d", kind, i),
				fmt.Sprintf("energy_only_%s_price%d", strings.ToLower(kind), i), Numeric, false,
				fmt.Sprintf("Energy Only %s Price%d", kind, i),
				fmt.Sprintf("Energy Only %s Price %d", kind, i)),
		)
	}
	return cols
}

func init() {
	register(&Table{
		Name:    SettlementPointPrices,
		SQLName: "settlement_point_prices",
		Columns: []Column{
			deliveryDate,
			col(KeyDeliveryHour, "delivery_hour", Integer, true, "Delivery Hour", "DeliveryHour"),
			col(KeyDeliveryInterval, "delivery_interval", Integer, false, "Delivery Interval", "DeliveryInterval"),
			settlementPoint,
			col(KeySettlementPointType, "settlement_point_type", Text, false, "Settlement Point Type", "SettlementPointType"),
			col(KeySettlementPrice, "settlement_point_price", Numeric, true, "Settlement Point Price", "SettlementPointPrice"),
			col(KeyDSTFlag, "dst_flag", Text, false, "DST Flag", "DSTFlag", "Repeated Hour Flag", "RepeatedHourFlag"),
		},
		BusinessKey: []string{KeyDeliveryDate, KeyDeliveryHour, KeyDeliveryInterval, KeySettlementPoint},
		DateKey:     KeyDeliveryDate,
		HourKey:     KeyDeliveryHour,
		PointKey:    KeySettlementPoint,
	})

	register(&Table{
		Name:    BidAwards,
		SQLName: "bid_awards",
		Columns: []Column{
			deliveryDate,
			hourEnding,
			settlementPoint,
			qseName,
			col(KeyBidAwardMW, "energy_only_bid_award_mw", Numeric, true, "Energy Only Bid Award in MW", "EnergyOnlyBidAwardMW", "Energy Only Bid Award MW"),
			col(KeySettlementPrice, "settlement_point_price", Numeric, true, "Settlement Point Price"),
			col(KeyBidID, "bid_id", Text, true, "Bid ID"),
		},
		BusinessKey:  []string{KeyDeliveryDate, KeyHourEnding, KeySettlementPoint, KeyQSEName, KeyBidID},
		DateKey:      KeyDeliveryDate,
		HourKey:      KeyHourEnding,
		PointKey:     KeySettlementPoint,
		QSEKey:       KeyQSEName,
		IDKey:        KeyBidID,
		IDAlternates: []string{"Energy Only Bid ID", "EnergyOnlyBidID"},
	})

	register(&Table{
		Name:    Bids,
		SQLName: "bids",
		Columns: append([]Column{
			deliveryDate,
			hourEnding,
			settlementPoint,
			qseName,
			col(KeyBidID, "bid_id", Text, false, "Bid ID"),
			col(KeyMultiHourBlock, "multi_hour_block_indicator", Text, false, "Multi-Hour Block Indicator", "Multi Hour Block Flag"),
			col(KeyBlockCurve, "block_curve_indicator", Text, false, "Block/Curve indicator", "Block Curve Indicator"),
		}, tierColumns("Bid")...),
		BusinessKey:  []string{KeyDeliveryDate, KeyHourEnding, KeySettlementPoint, KeyQSEName, KeyBidID},
		DateKey:      KeyDeliveryDate,
		HourKey:      KeyHourEnding,
		PointKey:     KeySettlementPoint,
		QSEKey:       KeyQSEName,
		IDKey:        KeyBidID,
		IDAlternates: []string{"Energy Only Bid ID", "EnergyOnlyBidID"},
		Tiers: &Tiers{
			Count:    TierCount,
			MWKey:    "energyOnlyBidMW%d",
			PriceKey: "energyOnlyBidPrice%d",
			OutPrice: KeyBidPrice,
			OutSize:  KeyBidSize,
		},
	})

	register(&Table{
		Name:    OfferAwards,
		SQLName: "offer_awards",
		Columns: []Column{
			deliveryDate,
			hourEnding,
			settlementPoint,
			qseName,
			col(KeyOfferAwardMW, "energy_only_offer_award_mw", Numeric, true, "Energy Only Offer Award in MW", "EnergyOnlyOfferAwardMW", "Energy Only Offer Award MW"),
			col(KeySettlementPrice, "settlement_point_price", Numeric, true, "Settlement Point Price"),
			col(KeyOfferID, "offer_id", Text, true, "Offer ID"),
		},
		BusinessKey:  []string{KeyDeliveryDate, KeyHourEnding, KeySettlementPoint, KeyQSEName, KeyOfferID},
		DateKey:      KeyDeliveryDate,
		HourKey:      KeyHourEnding,
		PointKey:     KeySettlementPoint,
		QSEKey:       KeyQSEName,
		IDKey:        KeyOfferID,
		IDAlternates: []string{"Energy Only Offer ID", "EnergyOnlyOfferID"},
	})

	register(&Table{
		Name:    Offers,
		SQLName: "offers",
		Columns: append([]Column{
			deliveryDate,
			hourEnding,
			settlementPoint,
			qseName,
			col(KeyOfferID, "offer_id", Text, false, "Offer ID"),
			col(KeyMultiHourBlock, "multi_hour_block_indicator", Text, false, "Multi-Hour Block Indicator", "Multi Hour Block Flag"),
			col(KeyBlockCurve, "block_curve_indicator", Text, false, "Block/Curve indicator", "Block Curve Indicator"),
		}, tierColumns("Offer")...),
		BusinessKey:  []string{KeyDeliveryDate, KeyHourEnding, KeySettlementPoint, KeyQSEName, KeyOfferID},
		DateKey:      KeyDeliveryDate,
		HourKey:      KeyHourEnding,
		PointKey:     KeySettlementPoint,
		QSEKey:       KeyQSEName,
		IDKey:        KeyOfferID,
		IDAlternates: []string{"Energy Only Offer ID", "EnergyOnlyOfferID"},
		Tiers: &Tiers{
			Count:    TierCount,
			MWKey:    "energyOnlyOfferMW%d",
			PriceKey: "energyOnlyOfferPrice%d",
			OutPrice: KeyOfferPrice,
			OutSize:  KeyOfferSize,
		},
	})

	register(&Table{
		Name:    Final,
		SQLName: "final",
		Columns: []Column{
			deliveryDate,
			hourEnding,
			settlementPoint,
			qseName,
			col(KeySourceType, "source_type", Text, true),
			col(KeyBidAwardMW, "energy_only_bid_award_mw", Numeric, false),
			col(KeyBidID, "bid_id", Text, false),
			col(KeyOfferAwardMW, "energy_only_offer_award_mw", Numeric, false),
			col(KeyOfferID, "offer_id", Text, false),
			col(KeySettlementPrice, "settlement_point_price", Numeric, false),
			col(KeyMarkPrice, "mark_price", Numeric, false),
			col(KeyBidPrice, "bid_price", Numeric, false),
			col(KeyBidSize, "bid_size", Numeric, false),
			col(KeyOfferPrice, "offer_price", Numeric, false),
			col(KeyOfferSize, "offer_size", Numeric, false),
			col(KeyFinalBlockCurve, "block_curve", Text, false),
		},
		DateKey:  KeyDeliveryDate,
		HourKey:  KeyHourEnding,
		PointKey: KeySettlementPoint,
		QSEKey:   KeyQSEName,
	})
}
