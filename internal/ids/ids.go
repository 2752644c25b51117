// Package ids centralizes identifier generation so every record in the
// system (runs, tasks, providers) gets the same id shape.
package ids

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// New returns a fresh uuid string, used for Run, Task and catalog ids.
func New() string {
	return uuid.New().String()
}

const randSuffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandSuffix returns a short random alphanumeric token used in output
// filenames to avoid collisions between versions generated in the same
// second.
func RandSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is not recoverable in a meaningful way here;
		// fall back to a fixed token rather than panic mid-run.
		for i := range buf {
			buf[i] = 'x'
		}
		return string(buf)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randSuffixChars[int(b)%len(randSuffixChars)]
	}
	return string(out)
}

// TaskOutputName builds the output filename base described
// in the filesystem layout contract: segment index, version, a timestamp,
// and a random suffix keep repeated generations for the same segment from
// colliding even across process restarts.
func TaskOutputName(segmentIndex, versionIndex int, timestampUnix int64, taskID string) string {
	return fmt.Sprintf("%d_v%d_%d_%s_%s", segmentIndex, versionIndex, timestampUnix, RandSuffix(4), taskID)
}
