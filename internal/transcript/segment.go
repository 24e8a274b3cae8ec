package transcript

import (
	"sort"
	"strings"
)

// SpeakerSegment represents a contiguous span of recognized speech
// attributed to one speaker with session-relative timestamps in seconds.
type SpeakerSegment struct {
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	SpeakerTag int     `json:"speaker_tag"`
}

// Duration returns the segment length in seconds.
func (s SpeakerSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// SortByStart sorts segments in place by their start time.
func SortByStart(segments []SpeakerSegment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartTime < segments[j].StartTime
	})
}

// DefaultFillerTokens are pure-filler utterances dropped from the
// consolidated transcript text.
var DefaultFillerTokens = []string{
	"um", "uh", "hmm", "mhm", "mm", "ah", "er", "erm", "hm",
}

// BuildText derives the consolidated transcript text from a set of
// segments: sorted by start time, trimmed, with pure filler tokens and
// fragments shorter than 3 characters discarded, joined by single spaces.
func BuildText(segments []SpeakerSegment, fillerTokens []string) string {
	if len(fillerTokens) == 0 {
		fillerTokens = DefaultFillerTokens
	}

	fillers := make(map[string]bool, len(fillerTokens))
	for _, f := range fillerTokens {
		fillers[strings.ToLower(f)] = true
	}

	sorted := make([]SpeakerSegment, len(segments))
	copy(sorted, segments)
	SortByStart(sorted)

	parts := make([]string, 0, len(sorted))
	for _, seg := range sorted {
		text := strings.TrimSpace(seg.Text)
		if len(text) < 3 {
			continue
		}
		if fillers[strings.ToLower(strings.Trim(text, ".,!?"))] {
			continue
		}
		parts = append(parts, text)
	}

	return strings.Join(parts, " ")
}
