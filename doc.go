// Package main provides the entry point of confstore, an embedded settings store.
// Nested settings are grouped by category, persisted with gorm in MySQL, PostgreSQL
// or SQLite, merged with defaults from a TOML file and served through a JSON API
// built on fiber. The cobra commands read, write, import and delete categories
// from the command line.
package main
