package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/audio"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/db"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/session"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/storage"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcript"
)

// Persister is the durable-store contract the finalizer needs.
type Persister interface {
	InsertFinalizedSession(ctx context.Context, fs db.FinalizedSession) (int64, error)
	InsertSegments(ctx context.Context, sessionID int64, segments []transcript.SpeakerSegment, batchSize int) error
	ResolveParticipants(ctx context.Context, canvasID string) (mentorID, menteeID string, err error)
}

// FinalizerConfig bounds the wait for in-flight chunks and sizes the
// segment insert batches.
type FinalizerConfig struct {
	MaxWait          time.Duration
	PartialThreshold float64 // fraction of MaxWait after which partial results are accepted
	SegmentBatchSize int
}

// Finalizer merges a canvas's completed chunks into one audio artifact,
// persists the consolidated transcript, and tears down the cache entries.
type Finalizer struct {
	cache  *session.Cache
	store  storage.ObjectStore
	db     Persister
	config FinalizerConfig
	logger *slog.Logger
}

// NewFinalizer creates a session finalizer.
func NewFinalizer(logger *slog.Logger, cache *session.Cache, store storage.ObjectStore,
	persister Persister, config FinalizerConfig) *Finalizer {

	if config.MaxWait <= 0 {
		config.MaxWait = 30 * time.Second
	}
	if config.PartialThreshold <= 0 || config.PartialThreshold > 1 {
		config.PartialThreshold = 0.8
	}
	if config.SegmentBatchSize < 1 {
		config.SegmentBatchSize = 50
	}

	return &Finalizer{
		cache:  cache,
		store:  store,
		db:     persister,
		config: config,
		logger: logger,
	}
}

// Result reports the outcome of a finalization.
type Result struct {
	Empty        bool    `json:"empty"`
	Partial      bool    `json:"partial"`
	SessionID    int64   `json:"session_id,omitempty"`
	AudioURL     string  `json:"audio_url,omitempty"`
	Duration     float64 `json:"duration"`
	MergedChunks int     `json:"merged_chunks"`
	SegmentCount int     `json:"segment_count"`
	Transcript   string  `json:"transcript,omitempty"`
}

// Finalize drains outstanding chunks for the canvas, merges the audio,
// persists the transcript, and deletes the cache entries. Once at least
// the partial threshold of the wait budget is spent and one chunk is
// complete, partial results are accepted rather than blocking further.
func (f *Finalizer) Finalize(ctx context.Context, canvasID string) (*Result, error) {
	start := time.Now()

	keys := f.cache.FindAll(canvasID)
	if len(keys) == 0 {
		f.logger.Warn("Finalize requested for canvas with no sessions",
			slog.String("canvas_id", canvasID),
		)
		return &Result{Empty: true}, nil
	}

	sessions := make([]*session.Session, 0, len(keys))
	for _, key := range keys {
		if sess, ok := f.cache.Get(key); ok {
			sess.BeginFinalize()
			sessions = append(sessions, sess)
		}
	}

	partial := f.drainSessions(ctx, sessions)

	chunks := f.collectCompleteChunks(sessions)
	if len(chunks) == 0 {
		f.logger.Warn("Finalize found no completed chunks",
			slog.String("canvas_id", canvasID),
			slog.Duration("waited", time.Since(start)),
		)
		f.teardown(ctx, keys, nil, "")
		return &Result{Empty: true}, nil
	}

	if partial {
		f.logger.Warn("Finalize proceeding with partial results",
			slog.String("canvas_id", canvasID),
			slog.Int("complete_chunks", len(chunks)),
			slog.Duration("waited", time.Since(start)),
		)
	}

	mergedURL := f.mergeAudio(ctx, canvasID, chunks)

	segments := make([]transcript.SpeakerSegment, 0)
	for _, chunk := range chunks {
		segments = append(segments, chunk.Speakers...)
	}
	transcript.SortByStart(segments)

	duration := 0.0
	for _, seg := range segments {
		if seg.EndTime > duration {
			duration = seg.EndTime
		}
	}

	mentorID, menteeID := f.resolveParticipants(ctx, canvasID, sessions)

	sessionID, err := f.db.InsertFinalizedSession(ctx, db.FinalizedSession{
		CanvasID: canvasID,
		MentorID: mentorID,
		MenteeID: menteeID,
		AudioURL: mergedURL,
		Duration: duration,
	})
	if err != nil {
		return nil, fmt.Errorf("persist finalized session: %w", err)
	}

	if err := f.db.InsertSegments(ctx, sessionID, segments, f.config.SegmentBatchSize); err != nil {
		return nil, fmt.Errorf("persist speaker segments: %w", err)
	}

	text := transcript.BuildText(segments, nil)

	f.teardown(ctx, keys, chunks, mergedURL)

	f.logger.Info("Session finalized",
		slog.String("canvas_id", canvasID),
		slog.Int64("session_id", sessionID),
		slog.String("audio_url", mergedURL),
		slog.Float64("duration", duration),
		slog.Int("merged_chunks", len(chunks)),
		slog.Int("segments", len(segments)),
		slog.Bool("partial", partial),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Partial:      partial,
		SessionID:    sessionID,
		AudioURL:     mergedURL,
		Duration:     duration,
		MergedChunks: len(chunks),
		SegmentCount: len(segments),
		Transcript:   text,
	}, nil
}

// drainSessions waits for in-flight chunks. It first waits up to the
// partial threshold for a full drain; if work is still outstanding but
// completed chunks exist it stops there, otherwise it spends the rest of
// the budget. Returns whether the finalize proceeds on partial results.
func (f *Finalizer) drainSessions(ctx context.Context, sessions []*session.Session) bool {
	partialBudget := time.Duration(float64(f.config.MaxWait) * f.config.PartialThreshold)
	partialDeadline := time.Now().Add(partialBudget)
	fullDeadline := time.Now().Add(f.config.MaxWait)

	drained := true
	for _, sess := range sessions {
		remaining := time.Until(partialDeadline)
		if remaining <= 0 || !sess.WaitProcessingDrained(ctx, remaining) {
			drained = false
		}
	}
	if drained {
		return false
	}

	if f.completedCount(sessions) > 0 {
		// Accept what we have rather than blocking indefinitely.
		return true
	}

	// Nothing completed yet; spend the remaining budget hoping for one.
	for _, sess := range sessions {
		remaining := time.Until(fullDeadline)
		if remaining <= 0 {
			break
		}
		sess.WaitProcessingDrained(ctx, remaining)
	}

	return f.outstandingCount(sessions) > 0
}

func (f *Finalizer) completedCount(sessions []*session.Session) int {
	count := 0
	for _, sess := range sessions {
		count += len(sess.CompleteChunks())
	}
	return count
}

func (f *Finalizer) outstandingCount(sessions []*session.Session) int {
	count := 0
	for _, sess := range sessions {
		count += sess.ProcessingCount()
	}
	return count
}

// collectCompleteChunks gathers completed chunks across every session key
// for the canvas, sorted by chunk index.
func (f *Finalizer) collectCompleteChunks(sessions []*session.Session) []session.Chunk {
	chunks := make([]session.Chunk, 0)
	for _, sess := range sessions {
		chunks = append(chunks, sess.CompleteChunks()...)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})

	return chunks
}

// mergeAudio downloads the chunk audio in parallel, merges the survivors
// into one WAV artifact, and uploads it. Any failure falls back to the
// first available chunk's reference rather than failing the finalize.
func (f *Finalizer) mergeAudio(ctx context.Context, canvasID string, chunks []session.Chunk) string {
	if len(chunks) == 1 {
		return chunks[0].AudioRef
	}

	buffers := make([][]byte, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			data, err := f.store.Download(ctx, ref)
			if err != nil {
				f.logger.Warn("Failed to download chunk audio for merge, dropping",
					slog.String("audio_url", ref),
					slog.String("error", err.Error()),
				)
				return
			}
			buffers[i] = data
		}(i, chunk.AudioRef)
	}
	wg.Wait()

	survivors := make([][]byte, 0, len(buffers))
	for _, buf := range buffers {
		if len(buf) > 0 {
			survivors = append(survivors, buf)
		}
	}

	if len(survivors) == 0 {
		f.logger.Error("All chunk downloads failed, reusing first chunk reference",
			slog.String("canvas_id", canvasID),
		)
		return chunks[0].AudioRef
	}

	merged, err := audio.Merge(survivors)
	if err != nil {
		f.logger.Error("Audio merge failed, reusing first chunk reference",
			slog.String("canvas_id", canvasID),
			slog.String("error", err.Error()),
		)
		return chunks[0].AudioRef
	}

	key := fmt.Sprintf("%s/merged_%d.wav", canvasID, time.Now().UnixMilli())
	url, err := f.store.Upload(ctx, key, "audio/wav", merged)
	if err != nil {
		f.logger.Error("Failed to upload merged audio, reusing first chunk reference",
			slog.String("canvas_id", canvasID),
			slog.String("error", err.Error()),
		)
		return chunks[0].AudioRef
	}

	return url
}

// resolveParticipants prefers identifiers captured at ingest, falling
// back to the canvas participant lookup.
func (f *Finalizer) resolveParticipants(ctx context.Context, canvasID string, sessions []*session.Session) (string, string) {
	for _, sess := range sessions {
		if mentorID, menteeID := sess.Participants(); mentorID != "" || menteeID != "" {
			return mentorID, menteeID
		}
	}

	mentorID, menteeID, err := f.db.ResolveParticipants(ctx, canvasID)
	if err != nil {
		f.logger.Warn("Failed to resolve canvas participants",
			slog.String("canvas_id", canvasID),
			slog.String("error", err.Error()),
		)
	}
	return mentorID, menteeID
}

// teardown deletes the canvas's cache entries and best-effort deletes the
// now-redundant per-chunk audio objects. The merged artifact, if any, is
// kept.
func (f *Finalizer) teardown(ctx context.Context, keys []string, chunks []session.Chunk, mergedURL string) {
	for _, key := range keys {
		f.cache.Delete(key)
	}

	urls := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.AudioRef != "" && chunk.AudioRef != mergedURL {
			urls = append(urls, chunk.AudioRef)
		}
	}
	if len(urls) == 0 {
		return
	}

	deleted, errs := f.store.DeleteMany(ctx, urls)
	if len(errs) > 0 {
		f.logger.Warn("Some chunk audio objects could not be deleted",
			slog.Int("deleted", deleted),
			slog.Int("failed", len(errs)),
		)
	}
}
