// Package prompts provides the embedded audio prompts the platform
// prefetches when an outbound call is placed. These are 16kHz, mono,
// 16-bit PCM WAV files.
//
// The platform fetches each prompt over HTTPS from the bot's own base
// URL, so the files are embedded in the binary and served at /audio/.
package prompts

import "embed"

// FS holds the prompt audio embedded in the binary.
// Files are under audio/ (e.g. audio/responder-notification.wav).
//
//go:embed audio/*.wav
var FS embed.FS

// Files lists the filenames of all prompt audio, in playback order.
var Files = []string{
	"responder-notification.wav",
	"responder-transfering.wav",
	"bot-incoming.wav",
}
