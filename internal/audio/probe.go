package audio

import (
	"math"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcript"
)

// fallbackBytesPerSecond is used when a chunk's mime type has no
// configured byte-rate estimate.
const fallbackBytesPerSecond = 16000

// DefaultEstimates maps codec family mime types to approximate byte rates
// used when container metadata cannot be read. Compressed families sit far
// below PCM; the WAV figure matches 16 kHz 16-bit mono.
var DefaultEstimates = map[string]int{
	"audio/webm": 6000,
	"audio/ogg":  6000,
	"audio/mp4":  8000,
	"audio/mpeg": 16000,
	"audio/wav":  32000,
	"audio/wave": 32000,
}

// Prober extracts or estimates the playback duration of raw audio chunks.
type Prober struct {
	estimates map[string]int
}

// NewProber creates a duration prober. A nil or empty estimate table
// falls back to the built-in defaults.
func NewProber(estimates map[string]int) *Prober {
	if len(estimates) == 0 {
		estimates = DefaultEstimates
	}
	return &Prober{estimates: estimates}
}

// ProbeDuration returns the most accurate possible duration of the raw
// bytes in seconds. Exact container metadata is preferred; on failure a
// bitrate-based estimate keyed by mime type is used. The result is always
// finite and non-negative.
func (p *Prober) ProbeDuration(data []byte, mimeType string) float64 {
	if len(data) == 0 {
		return 0
	}

	if exact, err := Duration(data); err == nil && isUsableDuration(exact) {
		return exact
	}

	bytesPerSecond, ok := p.estimates[baseMimeType(mimeType)]
	if !ok || bytesPerSecond <= 0 {
		bytesPerSecond = fallbackBytesPerSecond
	}

	return float64(len(data)) / float64(bytesPerSecond)
}

func isUsableDuration(d float64) bool {
	return d >= 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

// baseMimeType strips codec parameters, e.g. "audio/webm;codecs=opus".
func baseMimeType(mimeType string) string {
	for i := 0; i < len(mimeType); i++ {
		if mimeType[i] == ';' {
			return mimeType[:i]
		}
	}
	return mimeType
}

// MapTimingsToFullDuration remaps recognizer-relative segment timestamps
// onto the real session timeline. The first stage normalizes against the
// recognizer's own reported duration to compensate internal clock drift;
// the second rescales to the probed container duration and shifts by the
// session offset. Results are rounded to one decimal place. Degenerate
// inputs are returned unchanged.
func MapTimingsToFullDuration(segments []transcript.SpeakerSegment, sttDuration, fullDuration, sessionOffset float64) []transcript.SpeakerSegment {
	if len(segments) == 0 || sttDuration <= 0 || fullDuration <= 0 {
		return segments
	}

	maxReportedTime := 0.0
	for _, seg := range segments {
		if seg.EndTime > maxReportedTime {
			maxReportedTime = seg.EndTime
		}
	}
	if maxReportedTime <= 0 {
		return segments
	}

	sttScale := sttDuration / maxReportedTime
	fullScale := fullDuration / sttDuration

	out := make([]transcript.SpeakerSegment, len(segments))
	for i, seg := range segments {
		normalizedStart := seg.StartTime * sttScale
		normalizedEnd := seg.EndTime * sttScale

		out[i] = seg
		out[i].StartTime = roundTenth(normalizedStart*fullScale + sessionOffset)
		out[i].EndTime = roundTenth(normalizedEnd*fullScale + sessionOffset)
	}

	return out
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
