// Package storage defines the object store contract for chunk and merged
// audio artifacts, with a disk-backed implementation.
package storage
