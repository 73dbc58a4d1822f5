package prompts

import (
	"io/fs"
	"net/http"
)

// Handler serves the embedded prompt audio. Mount it under the /audio/
// route prefix; paths are resolved relative to the audio/ directory of
// the embedded filesystem.
func Handler() http.Handler {
	sub, err := fs.Sub(FS, "audio")
	if err != nil {
		// The embedded tree always contains audio/; a failure here means
		// the binary was built without the prompt assets.
		panic("prompts: embedded audio directory missing: " + err.Error())
	}
	return http.FileServer(http.FS(sub))
}
