// Command gen creates the prompt audio as 16kHz PCM WAV files. These
// are silence-filled placeholder files in the format the calling
// platform expects for prefetched media. Replace with real voice
// recordings for production use.
//
// Usage: go run ./internal/prompts/gen
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// prompt defines a prompt file to generate.
type prompt struct {
	filename   string
	durationMs int // silence duration in milliseconds
}

// defaultPrompts are the prompt files embedded in the binary.
// Each is a minimal PCM WAV file (16kHz, mono, 16-bit).
var defaultPrompts = []prompt{
	{"responder-notification.wav", 3000},
	{"responder-transfering.wav", 2000},
	{"bot-incoming.wav", 2000},
}

func main() {
	dir := filepath.Join("internal", "prompts", "audio")
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating directory: %v\n", err)
		os.Exit(1)
	}

	for _, p := range defaultPrompts {
		path := filepath.Join(dir, p.filename)
		if err := writePCMWAV(path, p.durationMs); err != nil {
			fmt.Fprintf(os.Stderr, "error writing %s: %v\n", p.filename, err)
			os.Exit(1)
		}
		fi, _ := os.Stat(path)
		fmt.Printf("created %s (%d bytes, %dms silence)\n", path, fi.Size(), p.durationMs)
	}
}

// writePCMWAV creates a WAV file containing PCM silence.
// Format: 16kHz, mono, 16-bit little-endian.
func writePCMWAV(path string, durationMs int) error {
	// 16000 samples/sec * 2 bytes/sample * durationMs/1000
	dataSize := uint32(16000 * 2 * durationMs / 1000)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// RIFF header
	f.Write([]byte("RIFF"))
	binary.Write(f, binary.LittleEndian, uint32(36+dataSize)) // file size - 8
	f.Write([]byte("WAVE"))

	// fmt chunk
	f.Write([]byte("fmt "))
	binary.Write(f, binary.LittleEndian, uint32(16))      // chunk size
	binary.Write(f, binary.LittleEndian, uint16(1))       // audio format: 1 = PCM
	binary.Write(f, binary.LittleEndian, uint16(1))       // channels: mono
	binary.Write(f, binary.LittleEndian, uint32(16000))   // sample rate
	binary.Write(f, binary.LittleEndian, uint32(16000*2)) // byte rate
	binary.Write(f, binary.LittleEndian, uint16(2))       // block align
	binary.Write(f, binary.LittleEndian, uint16(16))      // bits per sample

	// data chunk
	f.Write([]byte("data"))
	binary.Write(f, binary.LittleEndian, dataSize)

	// PCM silence is all zero samples.
	_, err = f.Write(make([]byte, dataSize))
	return err
}
