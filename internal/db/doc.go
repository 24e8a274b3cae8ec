// Package db provides the SQLite-backed durable store for finalized
// interview sessions, their speaker segments, and canvas participants.
package db
