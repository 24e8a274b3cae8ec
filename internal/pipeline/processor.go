package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/audio"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/session"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/storage"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcript"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcription"
)

// Recognizer is the transcription/diarization collaborator contract.
type Recognizer interface {
	Transcribe(ctx context.Context, request *transcription.Request) (*transcription.Response, error)
}

// Processor orchestrates the per-chunk pipeline: decode, duration probe,
// session offset, upload, transcribe, normalize, correct, cache update.
type Processor struct {
	cache     *session.Cache
	store     storage.ObjectStore
	stt       Recognizer
	prober    *audio.Prober
	corrector *transcript.Corrector
	timer     *session.Timer
	logger    *slog.Logger
}

// NewProcessor creates a chunk processor.
func NewProcessor(logger *slog.Logger, cache *session.Cache, store storage.ObjectStore,
	stt Recognizer, prober *audio.Prober, timer *session.Timer) *Processor {

	return &Processor{
		cache:     cache,
		store:     store,
		stt:       stt,
		prober:    prober,
		corrector: transcript.NewCorrector(),
		timer:     timer,
		logger:    logger,
	}
}

// ChunkInput carries one audio chunk and its ingest metadata.
type ChunkInput struct {
	Data       []byte
	MimeType   string
	CanvasID   string
	ChunkIndex int
	MentorID   string
	MenteeID   string

	// Diarization selects the external speaker-labeling path; its
	// timestamps are already absolute on the session timeline.
	Diarization bool

	// IsNewRecordingSession signals that the client restarted recording
	// in the same room.
	IsNewRecordingSession bool
}

// ChunkResult reports the outcome of one chunk's pipeline run.
type ChunkResult struct {
	SessionKey    string                  `json:"session_key"`
	SegmentIndex  int                     `json:"segment_index"`
	ChunkIndex    int                     `json:"chunk_index"`
	AudioRef      string                  `json:"audio_url,omitempty"`
	Duration      float64                 `json:"duration"`
	SessionOffset float64                 `json:"session_offset"`
	Segments      int                     `json:"segments"`
	TimeLimit     session.TimeLimitStatus `json:"time_limit"`
}

// ProcessChunk runs the full per-chunk pipeline. A placeholder entry is
// registered before any I/O so concurrent finalize calls can observe the
// outstanding work; any failure after that removes the placeholder and
// leaves the session and all other chunks untouched.
func (p *Processor) ProcessChunk(ctx context.Context, input ChunkInput) (*ChunkResult, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("chunk %d for canvas %s has no audio data", input.ChunkIndex, input.CanvasID)
	}

	sess := p.cache.Resolve(input.CanvasID, input.IsNewRecordingSession)
	sess.SetParticipants(input.MentorID, input.MenteeID)

	limit := p.timer.CheckTimeLimit(sess, time.Now())
	if limit.Blocked {
		p.logger.Warn("Session time limit reached, chunk rejected",
			slog.String("canvas_id", input.CanvasID),
			slog.String("session_key", sess.SessionKey),
			slog.Int("chunk_index", input.ChunkIndex),
		)
		return &ChunkResult{
			SessionKey:   sess.SessionKey,
			SegmentIndex: sess.Segment(),
			ChunkIndex:   input.ChunkIndex,
			TimeLimit:    limit,
		}, nil
	}

	if err := sess.RegisterProcessing(input.ChunkIndex); err != nil {
		return nil, fmt.Errorf("register chunk %d: %w", input.ChunkIndex, err)
	}

	result, err := p.runPipeline(ctx, sess, input)
	if err != nil {
		// No partial or failed entry is left behind.
		sess.RemoveChunk(input.ChunkIndex)
		p.logger.Error("Chunk pipeline failed",
			slog.String("canvas_id", input.CanvasID),
			slog.String("session_key", sess.SessionKey),
			slog.Int("chunk_index", input.ChunkIndex),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result.TimeLimit = limit
	return result, nil
}

// runPipeline executes the I/O stages after placeholder registration.
func (p *Processor) runPipeline(ctx context.Context, sess *session.Session, input ChunkInput) (*ChunkResult, error) {
	duration := p.prober.ProbeDuration(input.Data, input.MimeType)

	// The point on the session timeline where this chunk's audio begins.
	sessionOffset := sess.OffsetBefore(input.ChunkIndex)

	key := fmt.Sprintf("%s/%s/chunk_%04d_%s%s",
		input.CanvasID, sess.SessionKey, input.ChunkIndex,
		uuid.NewString()[:8], extensionForMime(input.MimeType))

	audioRef, err := p.store.Upload(ctx, key, input.MimeType, input.Data)
	if err != nil {
		return nil, fmt.Errorf("upload chunk audio: %w", err)
	}

	response, err := p.stt.Transcribe(ctx, &transcription.Request{
		AudioRef:      audioRef,
		MimeType:      input.MimeType,
		CanvasID:      input.CanvasID,
		SessionKey:    sess.SessionKey,
		ChunkIndex:    input.ChunkIndex,
		SessionOffset: sessionOffset,
		Diarization:   input.Diarization,
		RequestID:     fmt.Sprintf("%s_%d_%d", sess.SessionKey, input.ChunkIndex, time.Now().UnixNano()),
		Timestamp:     time.Now(),
	})
	if err != nil {
		p.cleanupUpload(audioRef)
		return nil, fmt.Errorf("transcribe chunk: %w", err)
	}

	speakers := response.Speakers
	if !input.Diarization {
		// Recognizer timestamps are chunk-relative and need rescaling to
		// the probed container duration plus the session offset.
		speakers = audio.MapTimingsToFullDuration(speakers, response.Duration, duration, sessionOffset)
	}

	speakers = p.corrector.Correct(speakers)

	sess.CompleteChunk(input.ChunkIndex, audioRef, duration, speakers)

	p.logger.Info("Chunk processed",
		slog.String("canvas_id", input.CanvasID),
		slog.String("session_key", sess.SessionKey),
		slog.Int("chunk_index", input.ChunkIndex),
		slog.Float64("duration", duration),
		slog.Float64("session_offset", sessionOffset),
		slog.Int("segments", len(speakers)),
		slog.Bool("diarization", input.Diarization),
	)

	return &ChunkResult{
		SessionKey:    sess.SessionKey,
		SegmentIndex:  sess.Segment(),
		ChunkIndex:    input.ChunkIndex,
		AudioRef:      audioRef,
		Duration:      duration,
		SessionOffset: sessionOffset,
		Segments:      len(speakers),
	}, nil
}

// cleanupUpload removes an uploaded object after a downstream failure.
// Best effort: the chunk is already aborted either way.
func (p *Processor) cleanupUpload(audioRef string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.store.Delete(ctx, audioRef); err != nil {
		p.logger.Warn("Failed to delete aborted chunk audio",
			slog.String("audio_url", audioRef),
			slog.String("error", err.Error()),
		)
	}
}

func extensionForMime(mimeType string) string {
	switch {
	case mimeType == "audio/wav" || mimeType == "audio/wave":
		return ".wav"
	case mimeType == "audio/mpeg":
		return ".mp3"
	case mimeType == "audio/mp4":
		return ".m4a"
	case mimeType == "audio/ogg":
		return ".ogg"
	default:
		return ".webm"
	}
}
