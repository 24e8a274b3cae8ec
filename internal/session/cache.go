package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcript"
)

// ErrFinalizing is returned when a chunk registration arrives after
// finalization has started for the session.
var ErrFinalizing = errors.New("session is finalizing, no new chunks accepted")

// ErrChunkInFlight is returned when a chunk with the same index is
// already being processed for the session.
var ErrChunkInFlight = errors.New("chunk with this index is already processing")

// ChunkStatus distinguishes the lifecycle states of an ingested chunk.
type ChunkStatus int

const (
	// StatusProcessing marks a placeholder registered before any I/O.
	StatusProcessing ChunkStatus = iota
	// StatusComplete marks a chunk with uploaded audio and a transcript.
	StatusComplete
	// StatusFailed marks a chunk whose pipeline failed.
	StatusFailed
)

// String returns the lifecycle state name.
func (s ChunkStatus) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Chunk is one ingested audio segment of a recording session. While the
// status is StatusProcessing the chunk holds no audio reference.
type Chunk struct {
	Index    int
	Status   ChunkStatus
	AudioRef string
	Duration float64 // seconds
	Speakers []transcript.SpeakerSegment
}

// Session holds the in-flight state of one recording attempt on a canvas.
type Session struct {
	CanvasID     string
	SessionKey   string
	SegmentIndex int
	StartTime    time.Time
	LastActivity time.Time

	mu         sync.Mutex
	cond       *sync.Cond
	chunks     map[int]*Chunk
	finalizing bool
	warned     map[WarningLevel]bool
	mentorID   string
	menteeID   string
}

func newSession(canvasID string) *Session {
	now := time.Now()
	s := &Session{
		CanvasID:     canvasID,
		SessionKey:   newSessionKey(canvasID, now),
		StartTime:    now,
		LastActivity: now,
		chunks:       make(map[int]*Chunk),
		warned:       make(map[WarningLevel]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// newSessionKey builds a unique per-recording-attempt key from the canvas
// id, the creation timestamp, and a random suffix.
func newSessionKey(canvasID string, now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s_%d_%s", canvasID, now.UnixMilli(), suffix)
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastActivity
}

// SetParticipants records the resolved mentor/mentee identifiers. Empty
// values never overwrite known ones.
func (s *Session) SetParticipants(mentorID, menteeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mentorID != "" {
		s.mentorID = mentorID
	}
	if menteeID != "" {
		s.menteeID = menteeID
	}
}

// Participants returns the resolved mentor/mentee identifiers.
func (s *Session) Participants() (mentorID, menteeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mentorID, s.menteeID
}

// Segment returns the current segment index of the recording attempt.
func (s *Session) Segment() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SegmentIndex
}

// RegisterProcessing adds a placeholder chunk entry before any I/O so
// concurrent finalize calls can observe outstanding work. It rejects
// registrations once finalization has started and duplicate in-flight
// indices.
func (s *Session) RegisterProcessing(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalizing {
		return ErrFinalizing
	}

	if existing, ok := s.chunks[index]; ok && existing.Status == StatusProcessing {
		return fmt.Errorf("%w: index %d", ErrChunkInFlight, index)
	}

	s.chunks[index] = &Chunk{Index: index, Status: StatusProcessing}
	s.LastActivity = time.Now()
	return nil
}

// CompleteChunk replaces the placeholder at index with the finished chunk.
func (s *Session) CompleteChunk(index int, audioRef string, duration float64, speakers []transcript.SpeakerSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks[index] = &Chunk{
		Index:    index,
		Status:   StatusComplete,
		AudioRef: audioRef,
		Duration: duration,
		Speakers: speakers,
	}
	s.LastActivity = time.Now()
	s.cond.Broadcast()
}

// RemoveChunk deletes the entry at index entirely. It is used on pipeline
// failure so no partial chunk is left behind.
func (s *Session) RemoveChunk(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chunks, index)
	s.cond.Broadcast()
}

// OffsetBefore returns the summed duration of all completed chunks with a
// smaller index: the point on the session timeline where the chunk at
// index begins.
func (s *Session) OffsetBefore(index int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := 0.0
	for _, chunk := range s.chunks {
		if chunk.Index < index && chunk.Status == StatusComplete {
			offset += chunk.Duration
		}
	}
	return offset
}

// ProcessingCount returns the number of chunks still in flight.
func (s *Session) ProcessingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processingCountLocked()
}

func (s *Session) processingCountLocked() int {
	count := 0
	for _, chunk := range s.chunks {
		if chunk.Status == StatusProcessing {
			count++
		}
	}
	return count
}

// CompleteChunks returns a snapshot of all completed chunks.
func (s *Session) CompleteChunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Chunk, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		if chunk.Status == StatusComplete {
			out = append(out, *chunk)
		}
	}
	return out
}

// ChunkCount returns the total number of chunk entries.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// BeginFinalize marks the session as finalizing. Subsequent chunk
// registrations are rejected. Calling it again is harmless.
func (s *Session) BeginFinalize() {
	s.mu.Lock()
	s.finalizing = true
	s.mu.Unlock()
}

// IsFinalizing reports whether finalization has started.
func (s *Session) IsFinalizing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizing
}

// WaitProcessingDrained blocks until no chunk is in flight or the wait
// budget is exhausted, and reports whether the session fully drained.
func (s *Session) WaitProcessingDrained(ctx context.Context, maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)

	// The condition variable is signalled on every chunk state change;
	// the timer wakes the waiter once the budget runs out.
	wake := time.AfterFunc(maxWait, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer wake.Stop()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.processingCountLocked() > 0 {
		if time.Now().After(deadline) || ctx.Err() != nil {
			return false
		}
		s.cond.Wait()
	}

	return true
}

// markWarnedOnce records that a warning level has been delivered and
// reports whether this call was the first to do so.
func (s *Session) markWarnedOnce(level WarningLevel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.warned[level] {
		return false
	}
	s.warned[level] = true
	return true
}

// Info is a read-only snapshot of a session for monitoring APIs.
type Info struct {
	CanvasID     string    `json:"canvas_id"`
	SessionKey   string    `json:"session_key"`
	SegmentIndex int       `json:"segment_index"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	Finalizing   bool      `json:"finalizing"`
	Chunks       int       `json:"chunks"`
	Processing   int       `json:"processing_chunks"`
	Complete     int       `json:"complete_chunks"`
}

// GetInfo returns a monitoring snapshot of the session.
func (s *Session) GetInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	complete := 0
	processing := 0
	for _, chunk := range s.chunks {
		switch chunk.Status {
		case StatusComplete:
			complete++
		case StatusProcessing:
			processing++
		}
	}

	return Info{
		CanvasID:     s.CanvasID,
		SessionKey:   s.SessionKey,
		SegmentIndex: s.SegmentIndex,
		StartTime:    s.StartTime,
		LastActivity: s.LastActivity,
		Finalizing:   s.finalizing,
		Chunks:       len(s.chunks),
		Processing:   processing,
		Complete:     complete,
	}
}

// Cache holds all in-flight recording sessions. It is capacity-bounded
// with FIFO eviction and sweeps idle sessions in the background.
type Cache struct {
	sessions map[string]*Session
	order    []string // insertion order for FIFO eviction
	mu       sync.RWMutex
	logger   *slog.Logger
	capacity int
	idle     time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewCache creates a session cache and starts its idle-sweep routine.
func NewCache(logger *slog.Logger, capacity int, idleTimeout time.Duration) *Cache {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Cache{
		sessions: make(map[string]*Session),
		order:    make([]string, 0),
		logger:   logger,
		capacity: capacity,
		idle:     idleTimeout,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go c.startSweepRoutine()

	return c
}

// Get retrieves a session by key.
func (c *Cache) Get(sessionKey string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	session, exists := c.sessions[sessionKey]
	return session, exists
}

// Put stores a session, evicting the oldest entry when at capacity.
func (c *Cache) Put(sessionKey string, session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(sessionKey, session)
}

func (c *Cache) putLocked(sessionKey string, session *Session) {
	if _, exists := c.sessions[sessionKey]; !exists {
		for len(c.sessions) >= c.capacity && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			if _, ok := c.sessions[oldest]; ok {
				delete(c.sessions, oldest)
				c.logger.Warn("Session cache full, evicted oldest entry",
					slog.String("evicted_key", oldest),
					slog.Int("capacity", c.capacity),
				)
			}
		}
		c.order = append(c.order, sessionKey)
	}
	c.sessions[sessionKey] = session
}

// Delete removes a session by key.
func (c *Cache) Delete(sessionKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sessions[sessionKey]; !exists {
		return false
	}

	delete(c.sessions, sessionKey)
	for i, key := range c.order {
		if key == sessionKey {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Resolve returns the session to which a new chunk for the canvas
// belongs, creating one when none exists. When the caller signals a new
// recording attempt and a session is already live, the segment index is
// bumped instead of replacing the key, preserving ordinal continuity
// across restarted recordings in the same room.
func (c *Cache) Resolve(canvasID string, isNewRecording bool) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	var latest *Session
	for _, session := range c.sessions {
		if session.CanvasID != canvasID {
			continue
		}
		if latest == nil || session.lastActivity().After(latest.lastActivity()) {
			latest = session
		}
	}

	if latest != nil {
		if isNewRecording {
			latest.mu.Lock()
			latest.SegmentIndex++
			latest.mu.Unlock()
			c.logger.Info("Recording restarted, segment index bumped",
				slog.String("canvas_id", canvasID),
				slog.String("session_key", latest.SessionKey),
				slog.Int("segment_index", latest.SegmentIndex),
			)
		}
		return latest
	}

	session := newSession(canvasID)
	c.putLocked(session.SessionKey, session)

	c.logger.Info("Created new recording session",
		slog.String("canvas_id", canvasID),
		slog.String("session_key", session.SessionKey),
	)

	return session
}

// FindActive returns the key of the most-recently-active session for the
// canvas whose chunk list is non-empty.
func (c *Cache) FindActive(canvasID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var bestKey string
	var bestActivity time.Time
	for key, session := range c.sessions {
		if session.CanvasID != canvasID || session.ChunkCount() == 0 {
			continue
		}
		if activity := session.lastActivity(); bestKey == "" || activity.After(bestActivity) {
			bestKey = key
			bestActivity = activity
		}
	}

	return bestKey, bestKey != ""
}

// FindAll returns all session keys for a canvas.
func (c *Cache) FindAll(canvasID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0)
	for key, session := range c.sessions {
		if session.CanvasID == canvasID {
			keys = append(keys, key)
		}
	}
	return keys
}

// MaxSegmentIndex returns the highest segment index across the canvas's
// sessions, or -1 when the canvas has none.
func (c *Cache) MaxSegmentIndex(canvasID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	max := -1
	for _, session := range c.sessions {
		if session.CanvasID != canvasID {
			continue
		}
		if session.SegmentIndex > max {
			max = session.SegmentIndex
		}
	}
	return max
}

// Len returns the number of cached sessions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// All returns a snapshot of every cached session (for monitoring).
func (c *Cache) All() []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sessions := make([]*Session, 0, len(c.sessions))
	for _, session := range c.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Stop stops the idle-sweep routine.
func (c *Cache) Stop() {
	c.cancel()
	<-c.cleanup
}

// startSweepRoutine periodically removes sessions idle past the timeout.
func (c *Cache) startSweepRoutine() {
	defer close(c.cleanup)

	interval := c.idle / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("Session idle-sweep routine started",
		slog.Duration("idle_timeout", c.idle),
		slog.Duration("check_interval", interval),
	)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Session idle-sweep routine stopping")
			return

		case <-ticker.C:
			c.sweepIdleSessions()
		}
	}
}

// sweepIdleSessions removes sessions whose last activity is older than
// the idle timeout.
func (c *Cache) sweepIdleSessions() {
	now := time.Now()
	expired := make([]string, 0)

	c.mu.RLock()
	for key, session := range c.sessions {
		if now.Sub(session.lastActivity()) > c.idle {
			expired = append(expired, key)
		}
	}
	c.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	c.logger.Info("Sweeping idle sessions",
		slog.Int("expired_count", len(expired)),
	)

	for _, key := range expired {
		c.Delete(key)
	}
}
