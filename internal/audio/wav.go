package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// headerSize is the length of a canonical RIFF/WAVE header with a single
// fmt sub-chunk followed immediately by the data sub-chunk.
const headerSize = 44

// Format describes the PCM encoding parameters carried in a fmt sub-chunk.
type Format struct {
	NumChannels   uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ByteRate returns the number of payload bytes per second of audio.
func (f Format) ByteRate() uint32 {
	return f.SampleRate * uint32(f.NumChannels) * uint32(f.BitsPerSample) / 8
}

// WAVHeader represents the canonical 44-byte header of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// IsRIFF reports whether the buffer begins with the RIFF signature.
func IsRIFF(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[0:4], []byte("RIFF"))
}

// ParseFormat reads the channel count, sample rate, and bit depth from the
// fixed-offset fmt sub-chunk of a RIFF buffer.
func ParseFormat(data []byte) (Format, error) {
	if len(data) < headerSize {
		return Format{}, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", headerSize, len(data))
	}

	if !IsRIFF(data) {
		return Format{}, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if !bytes.Equal(data[8:12], []byte("WAVE")) {
		return Format{}, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if !bytes.Equal(data[12:16], []byte("fmt ")) {
		return Format{}, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	format := Format{
		NumChannels:   binary.LittleEndian.Uint16(data[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(data[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(data[34:36]),
	}

	if format.SampleRate == 0 {
		return Format{}, fmt.Errorf("invalid sample rate: 0")
	}

	if format.NumChannels == 0 {
		return Format{}, fmt.Errorf("invalid channel count: 0")
	}

	if format.BitsPerSample == 0 {
		return Format{}, fmt.Errorf("invalid bit depth: 0")
	}

	return format, nil
}

// ExtractPayload returns the raw audio payload of a buffer. RIFF buffers
// are scanned from byte 44 for a data sub-chunk by reading 4-byte id +
// 4-byte little-endian length pairs and skipping non-data sub-chunks by
// their declared length. If no data sub-chunk is found, everything after
// byte 44 is treated as payload. Non-RIFF buffers are returned whole.
func ExtractPayload(data []byte) []byte {
	if !IsRIFF(data) || len(data) <= headerSize {
		return data
	}

	pos := headerSize
	for pos+8 <= len(data) {
		id := data[pos : pos+4]
		length := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))

		if bytes.Equal(id, []byte("data")) {
			start := pos + 8
			end := start + length
			if length < 0 || end > len(data) {
				end = len(data)
			}
			return data[start:end]
		}

		if length < 0 {
			break
		}
		pos += 8 + length
	}

	// No data sub-chunk located past the fixed header.
	return data[headerSize:]
}

// BuildHeader constructs a canonical 44-byte RIFF/WAVE header for a
// payload of the given length and format.
func BuildHeader(payloadSize int, format Format) ([]byte, error) {
	if payloadSize < 0 {
		return nil, fmt.Errorf("payload size cannot be negative, got %d", payloadSize)
	}

	if format.SampleRate == 0 || format.NumChannels == 0 || format.BitsPerSample == 0 {
		return nil, fmt.Errorf("incomplete format: %+v", format)
	}

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + payloadSize),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   format.NumChannels,
		SampleRate:    format.SampleRate,
		ByteRate:      format.ByteRate(),
		BlockAlign:    format.NumChannels * format.BitsPerSample / 8,
		BitsPerSample: format.BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(payloadSize),
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return buf.Bytes(), nil
}

// Merge concatenates the audio payloads of multiple buffers under one
// fresh canonical header. The format parameters are taken from the first
// RIFF buffer; buffers without a RIFF signature contribute their full
// bytes as payload. A single buffer is returned unchanged. When header
// construction fails the buffers are concatenated raw, without repair.
func Merge(buffers [][]byte) ([]byte, error) {
	if len(buffers) == 0 {
		return nil, fmt.Errorf("no audio buffers to merge")
	}

	if len(buffers) == 1 {
		return buffers[0], nil
	}

	// Assume a uniform format across chunks: read it from the first
	// RIFF-prefixed buffer only.
	var format Format
	formatKnown := false
	for _, buf := range buffers {
		if !IsRIFF(buf) {
			continue
		}
		parsed, err := ParseFormat(buf)
		if err != nil {
			// Header repair is impossible; fall back to raw concatenation.
			return bytes.Join(buffers, nil), nil
		}
		format = parsed
		formatKnown = true
		break
	}

	if !formatKnown {
		// No container to repair anywhere in the set.
		return bytes.Join(buffers, nil), nil
	}

	totalSize := 0
	payloads := make([][]byte, 0, len(buffers))
	for _, buf := range buffers {
		payload := ExtractPayload(buf)
		payloads = append(payloads, payload)
		totalSize += len(payload)
	}

	header, err := BuildHeader(totalSize, format)
	if err != nil {
		return bytes.Join(buffers, nil), nil
	}

	merged := make([]byte, 0, headerSize+totalSize)
	merged = append(merged, header...)
	for _, payload := range payloads {
		merged = append(merged, payload...)
	}

	return merged, nil
}

// Duration calculates the playback duration of a WAV buffer in seconds
// from its format parameters and data payload size.
func Duration(data []byte) (float64, error) {
	format, err := ParseFormat(data)
	if err != nil {
		return 0, err
	}

	byteRate := format.ByteRate()
	if byteRate == 0 {
		return 0, fmt.Errorf("invalid byte rate: 0")
	}

	payload := ExtractPayload(data)
	return float64(len(payload)) / float64(byteRate), nil
}
