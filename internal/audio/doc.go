// Package audio handles WAV container parsing, duration probing, and
// multi-chunk merging. It extracts data payloads from RIFF containers,
// rebuilds canonical headers for merged recordings, and remaps
// recognizer-relative timestamps onto the real session timeline.
package audio
