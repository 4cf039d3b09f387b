// Package model holds the canonical record shape shared by every stage of
// ingestion, and one validated row type per fact table.
//
// Conventions:
//   - Record keys are camelCase canonical field names from the schema registry
//   - Delivery dates parse from any accepted layout to midnight UTC
//   - Prices and MW quantities are float64 once validated
package model
