package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcript"
)

// Store provides durable persistence for finalized interview sessions
// and their speaker segments.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS interview_sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	canvas_id  TEXT NOT NULL,
	mentor_id  TEXT NOT NULL DEFAULT '',
	mentee_id  TEXT NOT NULL DEFAULT '',
	audio_url  TEXT NOT NULL,
	duration   REAL NOT NULL DEFAULT 0,
	created_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_canvas ON interview_sessions(canvas_id);

CREATE TABLE IF NOT EXISTS speaker_segments (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  INTEGER NOT NULL REFERENCES interview_sessions(id),
	speaker_tag INTEGER NOT NULL,
	text        TEXT NOT NULL,
	start_time  REAL NOT NULL,
	end_time    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_segments_session ON speaker_segments(session_id);

CREATE TABLE IF NOT EXISTS canvas_participants (
	canvas_id TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	role      TEXT NOT NULL,
	PRIMARY KEY (canvas_id, user_id)
);
`

// Open opens (and if needed initializes) the database at path with WAL.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertFinalizedSession persists a finalized session record and returns
// its generated id.
func (s *Store) InsertFinalizedSession(ctx context.Context, fs FinalizedSession) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_sessions (canvas_id, mentor_id, mentee_id, audio_url, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, fs.CanvasID, fs.MentorID, fs.MenteeID, fs.AudioURL, fs.Duration, unixFloat(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session insert id: %w", err)
	}
	return id, nil
}

// InsertSegments bulk-inserts speaker segments for a session in fixed-size
// batches inside one transaction, bounding single-insert payload size.
func (s *Store) InsertSegments(ctx context.Context, sessionID int64, segments []transcript.SpeakerSegment, batchSize int) error {
	if len(segments) == 0 {
		return nil
	}
	if batchSize < 1 {
		batchSize = 50
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(segments); start += batchSize {
		end := start + batchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*5)
		for _, seg := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?)")
			args = append(args, sessionID, seg.SpeakerTag, seg.Text, seg.StartTime, seg.EndTime)
		}

		query := `INSERT INTO speaker_segments (session_id, speaker_tag, text, start_time, end_time) VALUES ` +
			strings.Join(placeholders, ", ")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert segment batch: %w", err)
		}
	}

	return tx.Commit()
}

// SessionsByCanvas returns all finalized sessions for a canvas, newest first.
func (s *Store) SessionsByCanvas(ctx context.Context, canvasID string) ([]FinalizedSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canvas_id, mentor_id, mentee_id, audio_url, duration, created_at
		FROM interview_sessions
		WHERE canvas_id = ?
		ORDER BY created_at DESC
	`, canvasID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []FinalizedSession
	for rows.Next() {
		var fs FinalizedSession
		var createdAt float64
		if err := rows.Scan(&fs.ID, &fs.CanvasID, &fs.MentorID, &fs.MenteeID,
			&fs.AudioURL, &fs.Duration, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		fs.CreatedAt = timeFromUnix(createdAt)
		sessions = append(sessions, fs)
	}
	return sessions, rows.Err()
}

// SegmentsBySession returns all speaker segments of a finalized session
// ordered by start time.
func (s *Store) SegmentsBySession(ctx context.Context, sessionID int64) ([]SegmentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, speaker_tag, text, start_time, end_time
		FROM speaker_segments
		WHERE session_id = ?
		ORDER BY start_time ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []SegmentRow
	for rows.Next() {
		var seg SegmentRow
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.SpeakerTag,
			&seg.Text, &seg.StartTime, &seg.EndTime); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// UpsertParticipant records or updates a user's role on a canvas.
func (s *Store) UpsertParticipant(ctx context.Context, p Participant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvas_participants (canvas_id, user_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT (canvas_id, user_id) DO UPDATE SET role = excluded.role
	`, p.CanvasID, p.UserID, p.Role)
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// ResolveParticipants looks up which canvas party is the mentor and which
// the mentee. Missing roles come back empty rather than as an error.
func (s *Store) ResolveParticipants(ctx context.Context, canvasID string) (mentorID, menteeID string, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role
		FROM canvas_participants
		WHERE canvas_id = ?
	`, canvasID)
	if err != nil {
		return "", "", fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, role string
		if err := rows.Scan(&userID, &role); err != nil {
			return "", "", fmt.Errorf("scan participant: %w", err)
		}
		switch role {
		case "mentor":
			mentorID = userID
		case "mentee":
			menteeID = userID
		}
	}
	return mentorID, menteeID, rows.Err()
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
