// Package session maintains the in-flight state of interview recording
// sessions: a capacity-bounded cache of per-canvas sessions with their
// ordered chunk entries, and a graduated time-limit checker.
package session
