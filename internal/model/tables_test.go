package model

import (
	"errors"
	"testing"
	"time"

	"github.com/rickgao/ercot-data/internal/schema"
)

func TestNewBidAward(t *testing.T) {
	rec := Record{
		schema.KeyDeliveryDate:    "01/02/2024",
		schema.KeyHourEnding:      "07:00",
		schema.KeySettlementPoint: "HB_NORTH",
		schema.KeyQSEName:         "QSE1",
		schema.KeyBidAwardMW:      "10.5",
		schema.KeySettlementPrice: 48.25,
		schema.KeyBidID:           "B1",
	}

	a, err := NewBidAward(rec)
	if err != nil {
		t.Fatalf("NewBidAward failed: %v", err)
	}
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC); !a.DeliveryDate.Equal(want) {
		t.Errorf("DeliveryDate = %v, want %v", a.DeliveryDate, want)
	}
	if a.HourEnding != 7 {
		t.Errorf("HourEnding = %d, want 7", a.HourEnding)
	}
	if a.EnergyOnlyBidAwardInMW != 10.5 {
		t.Errorf("EnergyOnlyBidAwardInMW = %v, want 10.5", a.EnergyOnlyBidAwardInMW)
	}
	if a.SettlementPointPrice != 48.25 {
		t.Errorf("SettlementPointPrice = %v, want 48.25", a.SettlementPointPrice)
	}
	if got := len(a.Values()); got != len(schema.MustLookup(schema.BidAwards).Columns) {
		t.Errorf("len(Values()) = %d, want column count", got)
	}
}

func TestNewBidAward_Errors(t *testing.T) {
	base := func() Record {
		return Record{
			schema.KeyDeliveryDate:    "2024-01-02",
			schema.KeyHourEnding:      1,
			schema.KeySettlementPoint: "SP1",
			schema.KeyQSEName:         "QSE1",
			schema.KeyBidAwardMW:      1.0,
			schema.KeySettlementPrice: 1.0,
			schema.KeyBidID:           "B1",
		}
	}

	tests := []struct {
		name    string
		mutate  func(Record)
		wantErr error
		field   string
	}{
		{"missing bid id", func(r Record) { delete(r, schema.KeyBidID) }, ErrMissingRequiredField, schema.KeyBidID},
		{"null price", func(r Record) { r[schema.KeySettlementPrice] = nil }, ErrMissingRequiredField, schema.KeySettlementPrice},
		{"bad date", func(r Record) { r[schema.KeyDeliveryDate] = "yesterday" }, ErrInvalidValue, schema.KeyDeliveryDate},
		{"bad number", func(r Record) { r[schema.KeyBidAwardMW] = "ten" }, ErrInvalidValue, schema.KeyBidAwardMW},
		{"unknown field", func(r Record) { r["Resource Name"] = "X" }, ErrUnknownField, "Resource Name"},
		{"hour out of range", func(r Record) { r[schema.KeyHourEnding] = 30 }, ErrInvalidValue, "HourEnding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := base()
			tt.mutate(rec)

			_, err := NewBidAward(rec)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not a *ValidationError", err)
			}
			if ve.Table != schema.BidAwards {
				t.Errorf("Table = %q, want %q", ve.Table, schema.BidAwards)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestNewBid_Tiers(t *testing.T) {
	rec := Record{
		schema.KeyDeliveryDate:    "2024-01-01",
		schema.KeyHourEnding:      "01:00",
		schema.KeySettlementPoint: "SP1",
		schema.KeyQSEName:         "QSE1",
		schema.KeyBidID:           "B1",
		"energyOnlyBidMW3":        "5",
		"energyOnlyBidPrice3":     "22.5",
		"energyOnlyBidPrice4":     "30",
	}

	b, err := NewBid(rec)
	if err != nil {
		t.Fatalf("NewBid failed: %v", err)
	}
	tier, n, ok := b.First()
	if !ok {
		t.Fatal("First() found no tier")
	}
	if n != 3 {
		t.Errorf("first tier = %d, want 3", n)
	}
	if *tier.MW != 5 || *tier.Price != 22.5 {
		t.Errorf("tier = (%v, %v), want (5, 22.5)", *tier.MW, *tier.Price)
	}
	if b.Tiers[3].MW != nil {
		t.Error("tier 4 MW should be null")
	}
	if got := len(b.Values()); got != len(schema.MustLookup(schema.Bids).Columns) {
		t.Errorf("len(Values()) = %d, want %d", got, len(schema.MustLookup(schema.Bids).Columns))
	}
}

func TestNewBid_OptionalID(t *testing.T) {
	b, err := NewBid(Record{
		schema.KeyDeliveryDate:    "2024-01-01",
		schema.KeyHourEnding:      2,
		schema.KeySettlementPoint: "SP1",
		schema.KeyQSEName:         "QSE1",
	})
	if err != nil {
		t.Fatalf("NewBid failed: %v", err)
	}
	if b.ID != nil {
		t.Errorf("ID = %v, want nil", *b.ID)
	}
	if _, _, ok := b.First(); ok {
		t.Error("First() should report no tier")
	}
}

func TestNewSettlementPointPrice(t *testing.T) {
	p, err := NewSettlementPointPrice(Record{
		schema.KeyDeliveryDate:     "2024-01-01T00:00:00",
		schema.KeyDeliveryHour:     1.0,
		schema.KeyDeliveryInterval: "2",
		schema.KeySettlementPoint:  "SP1",
		schema.KeySettlementPrice:  "50.0",
		schema.KeyDSTFlag:          "N",
	})
	if err != nil {
		t.Fatalf("NewSettlementPointPrice failed: %v", err)
	}
	if p.DeliveryInterval != 2 {
		t.Errorf("DeliveryInterval = %d, want 2", p.DeliveryInterval)
	}
	if p.DSTFlag == nil || *p.DSTFlag != "N" {
		t.Errorf("DSTFlag = %v, want N", p.DSTFlag)
	}
	if p.SettlementPointType != nil {
		t.Errorf("SettlementPointType = %v, want nil", *p.SettlementPointType)
	}
}

func TestNew_Dispatch(t *testing.T) {
	row, err := New(schema.OfferAwards, Record{
		schema.KeyDeliveryDate:    "2024-01-01",
		schema.KeyHourEnding:      1,
		schema.KeySettlementPoint: "SP1",
		schema.KeyQSEName:         "QSE1",
		schema.KeyOfferAwardMW:    3,
		schema.KeySettlementPrice: 20,
		schema.KeyOfferID:         "O1",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if row.Table() != schema.OfferAwards {
		t.Errorf("Table() = %q, want %q", row.Table(), schema.OfferAwards)
	}

	if _, err := New(schema.Final, Record{}); !errors.Is(err, schema.ErrUnknownTable) {
		t.Errorf("New(FINAL) error = %v, want ErrUnknownTable", err)
	}
}

func TestKeyOf(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	id := "B1"

	fromModel := KeyOf(date, 1, "SP1", "QSE1", &id)
	fromDB := KeyOf(date, int32(1), "SP1", "QSE1", "B1")
	if fromModel != fromDB {
		t.Errorf("model key %q != db key %q", fromModel, fromDB)
	}

	var nilID *string
	if KeyOf(date, 1, nilID) != KeyOf(date, int32(1), nil) {
		t.Error("nil pointer and nil interface should produce the same key")
	}
}
