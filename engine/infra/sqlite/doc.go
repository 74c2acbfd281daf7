// Package sqlite provides the modernc.org/sqlite task store used in
// standalone mode. It mirrors the postgres driver layout.
package sqlite
