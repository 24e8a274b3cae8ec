// Package server implements the HTTP API for chunk ingest, recording
// finalization, and monitoring/management endpoints.
package server
