// Package pipeline orchestrates the chunk and finalization flows: it ties
// the session cache, object store, recognizer, and durable store together
// into the per-chunk processing pipeline and the end-of-recording merge.
package pipeline
