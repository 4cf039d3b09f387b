// Package archive ingests historical report bundles from the archive API.
//
// A bundle is a zip of zips. Each nested zip holds one or more CSV reports
// whose file name selects the destination table. Parsing runs on a bounded
// pool; every parsed file is handed to a single writer in arrival order.
//
// Failures are contained at the smallest scope: a corrupt file skips that
// file, a failed download skips that chunk of documents. Only a sink error
// (the database) stops processing.
package archive
