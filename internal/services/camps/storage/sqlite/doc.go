// Package sqlite provides a SQLite-backed storage adapter for the camp
// catalog and user collections.
//
// Catalog rows live in the camps table with a single-row catalog_meta
// holding the version that LoadCatalog reports. User collections map one
// table per storage.Collection; booleans are stored as 0/1 and times as
// Unix milliseconds.
package sqlite
