package wire

import (
	"errors"
	"fmt"
)

// DefaultChunkSize is the reference chunk size used when splitting a long
// SysEx payload into backend-friendly segments (spec §6).
const DefaultChunkSize = 256

// DefaultChunkPause is the reference inter-chunk pause, long enough for a
// slow hardware receiver to drain its buffer (spec §6). The in-memory
// Dummy and Loopback backends have no receiver to protect and do not
// sleep between chunks; a hardware-backed Port implementation applies
// this between each SendSysEx chunk.
const DefaultChunkPause = 80 // milliseconds

// ValidateSysEx checks that data starts with 0xF0, ends with 0xF7, and
// carries only 7-bit data bytes in between.
func ValidateSysEx(data []byte) error {
	if len(data) < 2 {
		return errors.New("sysex data too short")
	}
	if data[0] != SysExStart {
		return fmt.Errorf("invalid sysex: expected start byte %#x, got %#x", SysExStart, data[0])
	}
	if data[len(data)-1] != SysExEnd {
		return fmt.Errorf("invalid sysex: expected end byte %#x, got %#x", SysExEnd, data[len(data)-1])
	}
	for i := 1; i < len(data)-1; i++ {
		if data[i]&0x80 != 0 {
			return fmt.Errorf("invalid sysex: data byte %d (%#x) is not 7-bit", i, data[i])
		}
	}
	return nil
}

// ChunkSysEx splits a validated SysEx payload into consecutive chunks of
// size bytes each (the last one may be shorter). Boundaries fall at fixed
// offsets regardless of content, so the trailing 0xF7 can end up alone in
// the final chunk when len(data)%size == 1.
func ChunkSysEx(data []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]byte
	for start := 0; start < len(data); start += size {
		end := start + size
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-start)
		copy(chunk, data[start:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}
