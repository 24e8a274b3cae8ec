package transcript

import (
	"math"
	"regexp"
	"strings"
)

const (
	// minOverlap is the minimum overlap between adjacent segments, in
	// seconds, that triggers reconciliation.
	minOverlap = 0.3

	// separationGap is the silence inserted between force-separated segments.
	separationGap = 0.1

	// maxSegmentChars is the length above which a segment is split into
	// sentence-sized sub-segments.
	maxSegmentChars = 100
)

// Corrector performs lexical clean-up, speaker-overlap reconciliation,
// and sentence segmentation on recognized speech segments.
type Corrector struct {
	lexicalFixes []lexicalFix
	whitespace   *regexp.Regexp
	charRepeats  *regexp.Regexp
}

type lexicalFix struct {
	pattern     *regexp.Regexp
	replacement string
}

// overlap records a detected collision between segment i and segment i+1.
type overlap struct {
	index      int
	duration   float64
	confidence float64
}

// NewCorrector creates a corrector with the built-in domain vocabulary fixes.
func NewCorrector() *Corrector {
	fixes := []struct {
		pattern     string
		replacement string
	}{
		// Common mis-recognitions of technical interview vocabulary.
		{`(?i)\bjava\s?scripts?\b`, "JavaScript"},
		{`(?i)\btype\s?scripts?\b`, "TypeScript"},
		{`(?i)\bgit\s?hub\b`, "GitHub"},
		{`(?i)\bpost\s?gres\b`, "Postgres"},
		{`(?i)\bmy\s?sequel\b`, "MySQL"},
		{`(?i)\bno\s?sequel\b`, "NoSQL"},
		{`(?i)\bkuber\s?netes\b`, "Kubernetes"},
		{`(?i)\bdocker\s?file\b`, "Dockerfile"},
		{`(?i)\brest\s?ful\b`, "RESTful"},
		{`(?i)\bweb\s?socket\b`, "WebSocket"},
		// Stuttered filler runs collapse to a single token.
		{`(?i)\b(um|uh|ah|er)(\s+\1)+\b`, "$1"},
	}

	compiled := make([]lexicalFix, 0, len(fixes))
	for _, f := range fixes {
		compiled = append(compiled, lexicalFix{
			pattern:     regexp.MustCompile(f.pattern),
			replacement: f.replacement,
		})
	}

	return &Corrector{
		lexicalFixes: compiled,
		whitespace:   regexp.MustCompile(`\s+`),
		charRepeats:  regexp.MustCompile(`([^\s\d])\1{3,}`),
	}
}

// Correct applies the full correction pipeline: lexical clean-up per
// segment, overlap reconciliation across adjacent segments in time order,
// and sentence segmentation of overlong segments.
func (c *Corrector) Correct(segments []SpeakerSegment) []SpeakerSegment {
	if len(segments) == 0 {
		return segments
	}

	out := make([]SpeakerSegment, len(segments))
	copy(out, segments)

	for i := range out {
		out[i].Text = c.CorrectText(out[i].Text)
	}

	SortByStart(out)
	out = c.resolveOverlaps(out)
	out = c.splitLongSegments(out)

	return out
}

// CorrectText applies lexical fixes, whitespace normalization, and
// immediate character repeat collapsing to a single piece of text.
func (c *Corrector) CorrectText(text string) string {
	for _, fix := range c.lexicalFixes {
		text = fix.pattern.ReplaceAllString(text, fix.replacement)
	}

	text = c.charRepeats.ReplaceAllString(text, "$1")
	text = c.whitespace.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// detectOverlaps finds adjacent segment pairs whose time ranges collide
// by more than the minimum overlap and scores each collision.
func (c *Corrector) detectOverlaps(segments []SpeakerSegment) []overlap {
	overlaps := make([]overlap, 0)

	for i := 0; i < len(segments)-1; i++ {
		overlapDur := segments[i].EndTime - segments[i+1].StartTime
		if overlapDur <= minOverlap {
			continue
		}

		overlaps = append(overlaps, overlap{
			index:      i,
			duration:   overlapDur,
			confidence: overlapConfidence(segments[i], segments[i+1], overlapDur),
		})
	}

	return overlaps
}

// overlapConfidence scores how likely two colliding segments are the same
// utterance recognized twice. The score is clamped to [0, 1].
func overlapConfidence(first, second SpeakerSegment, overlapDur float64) float64 {
	confidence := 0.5

	if first.SpeakerTag == second.SpeakerTag {
		confidence += 0.3
	} else {
		confidence -= 0.3
	}

	lenA := float64(len(first.Text))
	lenB := float64(len(second.Text))
	if lenA > 0 && lenB > 0 {
		ratio := math.Min(lenA, lenB) / math.Max(lenA, lenB)
		if ratio > 0.7 {
			confidence += 0.2
		}
	}

	if firstDur := first.Duration(); firstDur > 0 && overlapDur > 0.5*firstDur {
		confidence += 0.2
	}

	return math.Max(0, math.Min(1, confidence))
}

// resolveOverlaps reconciles colliding segment pairs. Pairs are processed
// in reverse index order so earlier splices do not invalidate later indices.
func (c *Corrector) resolveOverlaps(segments []SpeakerSegment) []SpeakerSegment {
	overlaps := c.detectOverlaps(segments)

	for i := len(overlaps) - 1; i >= 0; i-- {
		ov := overlaps[i]
		switch {
		case ov.confidence > 0.7:
			segments = mergeSegments(segments, ov.index)
		case ov.confidence > 0.4:
			segments = adjustBoundary(segments, ov.index)
		default:
			segments = forceSeparate(segments, ov.index)
		}
	}

	return segments
}

// mergeSegments collapses segments i and i+1 into one. The longer text is
// kept as primary; the other is appended after removing a word duplicated
// across the seam. The merged span is the union of both time ranges.
func mergeSegments(segments []SpeakerSegment, i int) []SpeakerSegment {
	first, second := segments[i], segments[i+1]

	primary, secondary := first, second
	if len(second.Text) > len(first.Text) {
		primary, secondary = second, first
	}

	merged := SpeakerSegment{
		Text:       joinWithoutSeamDuplicate(primary.Text, secondary.Text),
		StartTime:  math.Min(first.StartTime, second.StartTime),
		EndTime:    math.Max(first.EndTime, second.EndTime),
		SpeakerTag: primary.SpeakerTag,
	}

	out := append(segments[:i:i], merged)
	return append(out, segments[i+2:]...)
}

// joinWithoutSeamDuplicate concatenates two texts, dropping the leading
// word of the second when it repeats the trailing word of the first.
func joinWithoutSeamDuplicate(primary, secondary string) string {
	if secondary == "" {
		return primary
	}
	if primary == "" {
		return secondary
	}

	primaryWords := strings.Fields(primary)
	secondaryWords := strings.Fields(secondary)
	if len(primaryWords) > 0 && len(secondaryWords) > 0 &&
		strings.EqualFold(primaryWords[len(primaryWords)-1], secondaryWords[0]) {
		secondaryWords = secondaryWords[1:]
	}

	if len(secondaryWords) == 0 {
		return primary
	}

	return primary + " " + strings.Join(secondaryWords, " ")
}

// adjustBoundary splits the overlapped duration in half, shrinking the
// first segment's end and growing the second segment's start symmetrically.
func adjustBoundary(segments []SpeakerSegment, i int) []SpeakerSegment {
	overlapDur := segments[i].EndTime - segments[i+1].StartTime
	half := overlapDur / 2

	segments[i].EndTime -= half
	segments[i+1].StartTime += half

	return segments
}

// forceSeparate cuts both segments at the midpoint of the overlap window
// and inserts a small gap between them.
func forceSeparate(segments []SpeakerSegment, i int) []SpeakerSegment {
	mid := (segments[i+1].StartTime + segments[i].EndTime) / 2

	segments[i].EndTime = mid - separationGap/2
	segments[i+1].StartTime = mid + separationGap/2

	if segments[i].EndTime <= segments[i].StartTime {
		segments[i].EndTime = segments[i].StartTime + separationGap
	}
	if segments[i+1].EndTime <= segments[i+1].StartTime {
		segments[i+1].EndTime = segments[i+1].StartTime + separationGap
	}

	return segments
}

// splitLongSegments breaks segments longer than maxSegmentChars into
// sub-segments at meaningful text breaks, apportioning each sub-segment's
// time span proportionally to its character share of the parent.
func (c *Corrector) splitLongSegments(segments []SpeakerSegment) []SpeakerSegment {
	out := make([]SpeakerSegment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, splitSegment(seg)...)
	}
	return out
}

func splitSegment(seg SpeakerSegment) []SpeakerSegment {
	runes := []rune(seg.Text)
	if len(runes) <= maxSegmentChars {
		return []SpeakerSegment{seg}
	}

	cut := findBreak(runes)
	headText := strings.TrimSpace(string(runes[:cut]))
	tailText := strings.TrimSpace(string(runes[cut:]))
	if headText == "" || tailText == "" {
		return []SpeakerSegment{seg}
	}

	// Apportion the parent time span by character share.
	total := float64(len(runes))
	headShare := float64(cut) / total
	splitTime := seg.StartTime + seg.Duration()*headShare

	head := SpeakerSegment{
		Text:       headText,
		StartTime:  seg.StartTime,
		EndTime:    splitTime,
		SpeakerTag: seg.SpeakerTag,
	}
	tail := SpeakerSegment{
		Text:       tailText,
		StartTime:  splitTime,
		EndTime:    seg.EndTime,
		SpeakerTag: seg.SpeakerTag,
	}

	return append([]SpeakerSegment{head}, splitSegment(tail)...)
}

// breakScore ranks candidate split points: sentence-final endings beat
// connective words, which beat commas.
var sentenceEndings = []string{". ", "! ", "? "}
var connectives = []string{" and ", " but ", " so ", " because ", " then "}

// findBreak locates the rightmost meaningful break within the first
// maxSegmentChars runes, falling back to a hard cut when none qualifies.
func findBreak(runes []rune) int {
	window := string(runes[:maxSegmentChars])

	for _, ending := range sentenceEndings {
		if idx := strings.LastIndex(window, ending); idx > 0 {
			return len([]rune(window[:idx+len(ending)]))
		}
	}

	best := -1
	for _, conn := range connectives {
		if idx := strings.LastIndex(window, conn); idx > best {
			best = idx
		}
	}
	if best > 0 {
		return len([]rune(window[:best+1]))
	}

	if idx := strings.LastIndex(window, ", "); idx > 0 {
		return len([]rune(window[:idx+2]))
	}

	return maxSegmentChars
}
