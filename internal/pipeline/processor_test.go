package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/audio"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/db"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/session"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcript"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory object store.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	failUpload   bool
	failDownload map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:      make(map[string][]byte),
		failDownload: make(map[string]bool),
	}
}

func (s *fakeStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpload {
		return "", errors.New("upload rejected")
	}

	url := "mem://" + key
	s.objects[url] = append([]byte{}, data...)
	return url, nil
}

func (s *fakeStore) Download(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDownload[url] {
		return nil, errors.New("download rejected")
	}

	data, ok := s.objects[url]
	if !ok {
		return nil, fmt.Errorf("object %s not found", url)
	}
	return data, nil
}

func (s *fakeStore) Delete(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, url)
	return nil
}

func (s *fakeStore) DeleteMany(ctx context.Context, urls []string) (int, []error) {
	deleted := 0
	for _, url := range urls {
		if err := s.Delete(ctx, url); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeStore) has(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[url]
	return ok
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakeRecognizer returns canned chunk-relative segments per chunk index.
type fakeRecognizer struct {
	mu        sync.Mutex
	responses map[int]*transcription.Response
	fail      bool
	requests  []*transcription.Request
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{responses: make(map[int]*transcription.Response)}
}

func (r *fakeRecognizer) Transcribe(ctx context.Context, request *transcription.Request) (*transcription.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = append(r.requests, request)

	if r.fail {
		return nil, errors.New("recognizer unavailable")
	}

	if resp, ok := r.responses[request.ChunkIndex]; ok {
		return resp, nil
	}
	return &transcription.Response{Duration: 0}, nil
}

// fakePersister records the finalized session and segments it is given.
type fakePersister struct {
	mu        sync.Mutex
	session   *db.FinalizedSession
	segments  []transcript.SpeakerSegment
	batchSize int

	mentorID string
	menteeID string
}

func (p *fakePersister) InsertFinalizedSession(ctx context.Context, fs db.FinalizedSession) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = &fs
	return 42, nil
}

func (p *fakePersister) InsertSegments(ctx context.Context, sessionID int64, segments []transcript.SpeakerSegment, batchSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.segments = segments
	p.batchSize = batchSize
	return nil
}

func (p *fakePersister) ResolveParticipants(ctx context.Context, canvasID string) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mentorID, p.menteeID, nil
}

func testProcessor(t *testing.T, store *fakeStore, stt *fakeRecognizer) (*Processor, *session.Cache) {
	t.Helper()

	cache := session.NewCache(testLogger(), 10, time.Minute)
	t.Cleanup(cache.Stop)

	timer := session.NewTimer(55*time.Minute, 58*time.Minute, 60*time.Minute)
	prober := audio.NewProber(map[string]int{"audio/webm": 6000})

	return NewProcessor(testLogger(), cache, store, stt, prober, timer), cache
}

func TestProcessChunkPipeline(t *testing.T) {
	store := newFakeStore()
	stt := newFakeRecognizer()
	processor, _ := testProcessor(t, store, stt)

	// Three sequential chunks of 10s, 12s, and 8s at the 6000 B/s webm
	// estimate. The recognizer reports chunk-relative timestamps.
	chunkSeconds := []int{10, 12, 8}
	for i, secs := range chunkSeconds {
		stt.responses[i] = &transcription.Response{
			Duration: float64(secs),
			Speakers: []transcript.SpeakerSegment{
				{Text: "part one", StartTime: 0, EndTime: float64(secs) / 2, SpeakerTag: 1},
				{Text: "part two", StartTime: float64(secs) / 2, EndTime: float64(secs), SpeakerTag: 2},
			},
		}
	}

	offsets := []float64{0, 10, 22}

	for i, secs := range chunkSeconds {
		result, err := processor.ProcessChunk(context.Background(), ChunkInput{
			Data:       make([]byte, secs*6000),
			MimeType:   "audio/webm",
			CanvasID:   "canvas-pipe",
			ChunkIndex: i,
		})
		if err != nil {
			t.Fatalf("ProcessChunk %d failed: %v", i, err)
		}

		if result.SessionOffset != offsets[i] {
			t.Errorf("Chunk %d: expected offset %.1f, got %.1f", i, offsets[i], result.SessionOffset)
		}
		if result.Duration != float64(secs) {
			t.Errorf("Chunk %d: expected duration %d, got %f", i, secs, result.Duration)
		}
		if result.Segments != 2 {
			t.Errorf("Chunk %d: expected 2 segments, got %d", i, result.Segments)
		}
		if !store.has(result.AudioRef) {
			t.Errorf("Chunk %d: audio not uploaded at %s", i, result.AudioRef)
		}
	}

	sttReq := stt.requests
	if len(sttReq) != 3 {
		t.Fatalf("Expected 3 recognizer calls, got %d", len(sttReq))
	}
	for i, req := range sttReq {
		if req.SessionOffset != offsets[i] {
			t.Errorf("Recognizer request %d: expected offset %.1f, got %.1f", i, offsets[i], req.SessionOffset)
		}
	}
}

func TestProcessChunkSegmentsOnSessionTimeline(t *testing.T) {
	store := newFakeStore()
	stt := newFakeRecognizer()
	processor, cache := testProcessor(t, store, stt)

	chunkSeconds := []int{10, 12, 8}
	windows := []struct{ lo, hi float64 }{{0, 10}, {10, 22}, {22, 30}}

	for i, secs := range chunkSeconds {
		stt.responses[i] = &transcription.Response{
			Duration: float64(secs),
			Speakers: []transcript.SpeakerSegment{
				{Text: "first half of the answer", StartTime: 0, EndTime: float64(secs) / 2, SpeakerTag: 1},
				{Text: "second half of the answer", StartTime: float64(secs) / 2, EndTime: float64(secs), SpeakerTag: 1},
			},
		}

		if _, err := processor.ProcessChunk(context.Background(), ChunkInput{
			Data:       make([]byte, secs*6000),
			MimeType:   "audio/webm",
			CanvasID:   "canvas-win",
			ChunkIndex: i,
		}); err != nil {
			t.Fatalf("ProcessChunk %d failed: %v", i, err)
		}
	}

	sess := cache.Resolve("canvas-win", false)
	chunks := sess.CompleteChunks()
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 complete chunks, got %d", len(chunks))
	}

	const tolerance = 0.5
	for _, chunk := range chunks {
		win := windows[chunk.Index]
		for _, seg := range chunk.Speakers {
			if seg.StartTime < win.lo-tolerance || seg.EndTime > win.hi+tolerance {
				t.Errorf("Chunk %d segment [%f, %f] outside window [%f, %f]",
					chunk.Index, seg.StartTime, seg.EndTime, win.lo, win.hi)
			}
		}
	}
}

func TestProcessChunkDiarizationSkipsRemap(t *testing.T) {
	store := newFakeStore()
	stt := newFakeRecognizer()
	processor, cache := testProcessor(t, store, stt)

	// Diarized timestamps are already absolute; they must pass through.
	stt.responses[0] = &transcription.Response{
		Duration: 10,
		Speakers: []transcript.SpeakerSegment{
			{Text: "already absolute", StartTime: 120, EndTime: 125, SpeakerTag: 1},
		},
	}

	if _, err := processor.ProcessChunk(context.Background(), ChunkInput{
		Data:        make([]byte, 60000),
		MimeType:    "audio/webm",
		CanvasID:    "canvas-dia",
		ChunkIndex:  0,
		Diarization: true,
	}); err != nil {
		t.Fatalf("ProcessChunk failed: %v", err)
	}

	sess := cache.Resolve("canvas-dia", false)
	chunks := sess.CompleteChunks()
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if seg := chunks[0].Speakers[0]; seg.StartTime != 120 || seg.EndTime != 125 {
		t.Errorf("Diarized timestamps were remapped: [%f, %f]", seg.StartTime, seg.EndTime)
	}
}

func TestProcessChunkFailureRemovesPlaceholder(t *testing.T) {
	store := newFakeStore()
	stt := newFakeRecognizer()
	stt.fail = true
	processor, cache := testProcessor(t, store, stt)

	_, err := processor.ProcessChunk(context.Background(), ChunkInput{
		Data:       make([]byte, 60000),
		MimeType:   "audio/webm",
		CanvasID:   "canvas-fail",
		ChunkIndex: 0,
	})
	if err == nil {
		t.Fatal("Expected error from failing recognizer")
	}

	sess := cache.Resolve("canvas-fail", false)
	if sess.ChunkCount() != 0 {
		t.Errorf("Expected no chunk entries after failure, got %d", sess.ChunkCount())
	}

	// The uploaded audio is cleaned up too.
	if store.count() != 0 {
		t.Errorf("Expected aborted upload to be deleted, %d objects remain", store.count())
	}
}

func TestProcessChunkEmptyData(t *testing.T) {
	store := newFakeStore()
	stt := newFakeRecognizer()
	processor, _ := testProcessor(t, store, stt)

	if _, err := processor.ProcessChunk(context.Background(), ChunkInput{
		CanvasID:   "canvas-empty",
		ChunkIndex: 0,
	}); err == nil {
		t.Error("Expected error for empty chunk data")
	}
}

func TestProcessChunkBlockedByTimeLimit(t *testing.T) {
	store := newFakeStore()
	stt := newFakeRecognizer()

	cache := session.NewCache(testLogger(), 10, time.Minute)
	t.Cleanup(cache.Stop)

	// Thresholds in the past relative to any session age.
	timer := session.NewTimer(0, 0, 0)
	prober := audio.NewProber(map[string]int{"audio/webm": 6000})
	processor := NewProcessor(testLogger(), cache, store, stt, prober, timer)

	result, err := processor.ProcessChunk(context.Background(), ChunkInput{
		Data:       make([]byte, 6000),
		MimeType:   "audio/webm",
		CanvasID:   "canvas-blocked",
		ChunkIndex: 0,
	})
	if err != nil {
		t.Fatalf("ProcessChunk failed: %v", err)
	}

	if !result.TimeLimit.Blocked {
		t.Error("Expected the chunk to be blocked by the time limit")
	}
	if result.AudioRef != "" {
		t.Error("Blocked chunk must not be uploaded")
	}
	if len(stt.requests) != 0 {
		t.Error("Blocked chunk must not reach the recognizer")
	}
}

func TestProcessChunkRejectedDuringFinalize(t *testing.T) {
	store := newFakeStore()
	stt := newFakeRecognizer()
	processor, cache := testProcessor(t, store, stt)

	sess := cache.Resolve("canvas-late", false)
	sess.BeginFinalize()

	_, err := processor.ProcessChunk(context.Background(), ChunkInput{
		Data:       make([]byte, 6000),
		MimeType:   "audio/webm",
		CanvasID:   "canvas-late",
		ChunkIndex: 0,
	})
	if !errors.Is(err, session.ErrFinalizing) {
		t.Errorf("Expected ErrFinalizing, got %v", err)
	}
}

func TestExtensionForMime(t *testing.T) {
	tests := []struct {
		mime string
		ext  string
	}{
		{"audio/wav", ".wav"},
		{"audio/mpeg", ".mp3"},
		{"audio/mp4", ".m4a"},
		{"audio/ogg", ".ogg"},
		{"audio/webm", ".webm"},
		{"application/octet-stream", ".webm"},
	}

	for _, tt := range tests {
		if got := extensionForMime(tt.mime); got != tt.ext {
			t.Errorf("extensionForMime(%q) = %q, want %q", tt.mime, got, tt.ext)
		}
	}
}
