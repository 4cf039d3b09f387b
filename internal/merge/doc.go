// Package merge consolidates the fact tables into FINAL.
//
// Every award row becomes one FINAL row, tagged Bid or Offer. The award is
// joined to its curve on (id, delivery date, hour ending) and to the hourly
// mean settlement point price on (point, delivery date, hour). The curve's
// first tier with a non-null MW supplies the price and size.
//
// A merge replaces FINAL for its window, or the whole table without one,
// inside a single transaction.
package merge
