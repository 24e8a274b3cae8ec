package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func makeWAV(t *testing.T, format Format, payload []byte) []byte {
	t.Helper()

	header, err := BuildHeader(len(payload), format)
	if err != nil {
		t.Fatalf("BuildHeader failed: %v", err)
	}

	return append(header, payload...)
}

func TestParseFormat(t *testing.T) {
	format := Format{NumChannels: 1, SampleRate: 16000, BitsPerSample: 16}
	data := makeWAV(t, format, make([]byte, 320))

	parsed, err := ParseFormat(data)
	if err != nil {
		t.Fatalf("ParseFormat failed: %v", err)
	}

	if parsed != format {
		t.Errorf("Expected format %+v, got %+v", format, parsed)
	}
}

func TestParseFormatErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty buffer", []byte{}},
		{"too short", []byte("RIFF")},
		{"not RIFF", bytes.Repeat([]byte{0xAB}, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFormat(tt.data); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestExtractPayload(t *testing.T) {
	format := Format{NumChannels: 1, SampleRate: 16000, BitsPerSample: 16}
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	data := makeWAV(t, format, payload)

	got := ExtractPayload(data)
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected payload %v, got %v", payload, got)
	}
}

func TestExtractPayloadSkipsExtraChunks(t *testing.T) {
	// A LIST sub-chunk sits between the fixed header and the data chunk.
	format := Format{NumChannels: 1, SampleRate: 16000, BitsPerSample: 16}
	payload := []byte{9, 8, 7, 6}

	header, err := BuildHeader(len(payload), format)
	if err != nil {
		t.Fatalf("BuildHeader failed: %v", err)
	}

	listBody := []byte("INFOxxxx")
	data := make([]byte, 0)
	data = append(data, header[:headerSize-8]...) // through fmt, before data id
	data = append(data, []byte("LIST")...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(listBody)))
	data = append(data, listBody...)
	data = append(data, []byte("data")...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(payload)))
	data = append(data, payload...)

	got := ExtractPayload(data)
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected payload %v, got %v", payload, got)
	}
}

func TestExtractPayloadNonRIFF(t *testing.T) {
	data := []byte("opus-ish compressed bytes that are not a RIFF container")

	got := ExtractPayload(data)
	if !bytes.Equal(got, data) {
		t.Error("Non-RIFF buffer should be returned whole")
	}
}

func TestMergeSizeInvariant(t *testing.T) {
	format := Format{NumChannels: 1, SampleRate: 16000, BitsPerSample: 16}

	payloads := [][]byte{
		bytes.Repeat([]byte{0x01}, 3200),
		bytes.Repeat([]byte{0x02}, 1600),
		bytes.Repeat([]byte{0x03}, 4800),
	}

	buffers := make([][]byte, 0, len(payloads))
	total := 0
	for _, p := range payloads {
		buffers = append(buffers, makeWAV(t, format, p))
		total += len(p)
	}

	merged, err := Merge(buffers)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if len(merged) != headerSize+total {
		t.Errorf("Expected merged size %d, got %d", headerSize+total, len(merged))
	}

	parsed, err := ParseFormat(merged)
	if err != nil {
		t.Fatalf("Merged buffer is not a valid WAV: %v", err)
	}
	if parsed != format {
		t.Errorf("Expected format %+v preserved, got %+v", format, parsed)
	}

	// Payload bytes must appear in order.
	payload := ExtractPayload(merged)
	expected := bytes.Join(payloads, nil)
	if !bytes.Equal(payload, expected) {
		t.Error("Merged payload does not preserve chunk order")
	}
}

func TestMergeSingleBufferUnchanged(t *testing.T) {
	format := Format{NumChannels: 2, SampleRate: 44100, BitsPerSample: 16}
	data := makeWAV(t, format, make([]byte, 1024))

	merged, err := Merge([][]byte{data})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if !bytes.Equal(merged, data) {
		t.Error("Single buffer should be returned unchanged")
	}
}

func TestMergeFallbackToRawConcat(t *testing.T) {
	// No RIFF buffer anywhere: the merge cannot rebuild a header and must
	// concatenate the raw bytes instead.
	buffers := [][]byte{
		[]byte("first compressed blob"),
		[]byte("second compressed blob"),
	}

	merged, err := Merge(buffers)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	expected := append(append([]byte{}, buffers[0]...), buffers[1]...)
	if !bytes.Equal(merged, expected) {
		t.Error("Expected raw concatenation of non-RIFF buffers")
	}
}

func TestMergeCorruptHeaderFallsBack(t *testing.T) {
	// RIFF signature present but the rest of the header is garbage.
	corrupt := append([]byte("RIFF"), bytes.Repeat([]byte{0x00}, 60)...)
	other := []byte("payload bytes")

	merged, err := Merge([][]byte{corrupt, other})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	expected := append(append([]byte{}, corrupt...), other...)
	if !bytes.Equal(merged, expected) {
		t.Error("Expected raw concatenation when the header cannot be parsed")
	}
}

func TestMergeEmptyInput(t *testing.T) {
	if _, err := Merge(nil); err == nil {
		t.Error("Expected error for empty buffer set")
	}
}

func TestDuration(t *testing.T) {
	// 16kHz mono 16-bit: 32000 bytes per second.
	format := Format{NumChannels: 1, SampleRate: 16000, BitsPerSample: 16}
	data := makeWAV(t, format, make([]byte, 32000*2)) // 2 seconds

	duration, err := Duration(data)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}

	if duration != 2.0 {
		t.Errorf("Expected duration 2.0s, got %f", duration)
	}
}
