// Package store persists measurements. Two backends implement Store: an
// in-memory map for single-process deployments and tests, and SQLite for
// durable storage.
//
// Each metric has an ordered history of measurements. Only the latest one is
// ever modified, and only by moving its end forward.
package store
