package db

import "time"

// FinalizedSession is one persisted interview recording: the merged audio
// artifact plus its participants and total duration.
type FinalizedSession struct {
	ID        int64
	CanvasID  string
	MentorID  string
	MenteeID  string
	AudioURL  string
	Duration  float64 // seconds, max segment end time
	CreatedAt time.Time
}

// SegmentRow is one persisted speaker segment of a finalized session.
type SegmentRow struct {
	ID         int64
	SessionID  int64
	SpeakerTag int
	Text       string
	StartTime  float64
	EndTime    float64
}

// Participant links a user to a canvas in a given role.
type Participant struct {
	CanvasID string
	UserID   string
	Role     string // "mentor" or "mentee"
}
