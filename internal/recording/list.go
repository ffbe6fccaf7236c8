package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Tone hints how a status line should be presented
type Tone int

const (
	ToneNeutral Tone = iota
	ToneSuccess
	ToneError
)

// Status is the text shown next to a recording
type Status struct {
	Text string
	Tone Tone
}

// Entry is one rendered recording
type Entry struct {
	Artifact Artifact
	Path     string // local file the player and the copy-path action point at
	Status   Status
}

// Renderer is notified of list changes (e.g., the tray menu)
type Renderer interface {
	EntryAppended(e Entry)
	StatusChanged(id string, s Status)
}

// List is the append-only, ordered set of recordings of this run
type List struct {
	dir string

	mu       sync.Mutex
	entries  []Entry
	index    map[string]int
	renderer Renderer
}

// NewList writes recordings under dir, creating it on first append
func NewList(dir string) *List {
	return &List{
		dir:   dir,
		index: make(map[string]int),
	}
}

// SetRenderer sets the list observer (for circular dependency resolution)
func (l *List) SetRenderer(r Renderer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renderer = r
}

func (l *List) Dir() string { return l.dir }

// Append stores the artifact as <name>.wav and adds its entry with an
// empty status. A name that is already taken on disk gets a numeric suffix.
func (l *List) Append(a Artifact) (Entry, error) {
	if a.ID() == "" {
		return Entry{}, fmt.Errorf("artifact has no id")
	}

	l.mu.Lock()
	if _, dup := l.index[a.ID()]; dup {
		l.mu.Unlock()
		return Entry{}, fmt.Errorf("duplicate recording id %s", a.ID())
	}
	path, err := l.write(a)
	if err != nil {
		l.mu.Unlock()
		return Entry{}, err
	}

	entry := Entry{Artifact: a, Path: path}
	l.index[a.ID()] = len(l.entries)
	l.entries = append(l.entries, entry)
	r := l.renderer
	l.mu.Unlock()

	if r != nil {
		r.EntryAppended(entry)
	}
	return entry, nil
}

// write creates a new file for the artifact without replacing an existing one
func (l *List) write(a Artifact) (string, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}

	base := safeFilename(a.Name())
	for n := 0; ; n++ {
		name := base + ".wav"
		if n > 0 {
			name = fmt.Sprintf("%s-%d.wav", base, n)
		}
		path := filepath.Join(l.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create recording: %w", err)
		}
		if _, err := f.Write(a.wav); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write recording: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("close recording: %w", err)
		}
		return path, nil
	}
}

// SetStatus replaces the status of the entry with the given id. Unknown ids
// are ignored.
func (l *List) SetStatus(id string, s Status) {
	l.mu.Lock()
	i, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	l.entries[i].Status = s
	r := l.renderer
	l.mu.Unlock()

	if r != nil {
		r.StatusChanged(id, s)
	}
}

// Get looks up an entry by id
func (l *List) Get(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// Entries returns a snapshot in insertion order
func (l *List) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// safeFilename keeps ISO timestamps usable on filesystems that reject ':'
func safeFilename(name string) string {
	return strings.ReplaceAll(name, ":", "-")
}
