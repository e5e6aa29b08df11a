// Package database stores link check history in SQLite.
//
// Each run is recorded with its summary and its broken references so that
// later runs can be compared: which links broke since the previous build and
// which were fixed. The store uses modernc.org/sqlite, a CGO-free driver, and
// keeps a single database file in the XDG data directory.
package database
