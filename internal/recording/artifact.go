package recording

import (
	"time"

	"github.com/google/uuid"
)

// NameLayout renders artifact names as UTC ISO-8601 with milliseconds
const NameLayout = "2006-01-02T15:04:05.000Z"

// Artifact is a finalized, immutable WAV recording
type Artifact struct {
	name string
	id   string
	wav  []byte
}

// NewArtifact copies blob and names it after now. The id is a random UUID
// used only to correlate the artifact with its list entry.
func NewArtifact(blob []byte, now time.Time) Artifact {
	wav := make([]byte, len(blob))
	copy(wav, blob)
	return Artifact{
		name: now.UTC().Format(NameLayout),
		id:   NewID(),
		wav:  wav,
	}
}

// NewID returns a fresh version 4 UUID string
func NewID() string {
	return uuid.NewString()
}

func (a Artifact) Name() string { return a.name }

func (a Artifact) ID() string { return a.id }

// Filename is the name offered for download
func (a Artifact) Filename() string { return a.name + ".wav" }

func (a Artifact) Size() int { return len(a.wav) }

// Bytes returns a copy of the WAV blob
func (a Artifact) Bytes() []byte {
	out := make([]byte, len(a.wav))
	copy(out, a.wav)
	return out
}
