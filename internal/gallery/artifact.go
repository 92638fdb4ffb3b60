package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
)

const currentArtifactVersion = 1

// Artifact is the on-disk form produced by the enrollment step: three parallel
// lists. Artifacts written by the older single-list enrollment have no
// student_ids; in that case the names double as identity ids, and since that
// enrollment wrote one encoding per photo a name may repeat.
type Artifact struct {
	Version    int         `json:"version"`
	Model      string      `json:"model,omitempty"`
	Encodings  [][]float32 `json:"encodings"`
	Names      []string    `json:"names"`
	StudentIDs []string    `json:"student_ids,omitempty"`
}

// Load reads and validates a gallery artifact.
func Load(path string) (*Gallery, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: artifact %s not found", ErrLoad, path)
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrLoad, path, err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrLoad, path, err)
	}

	return FromArtifact(a)
}

// FromArtifact converts parallel lists into a gallery, enforcing equal arity.
func FromArtifact(a Artifact) (*Gallery, error) {
	if a.Version > currentArtifactVersion {
		return nil, fmt.Errorf("%w: unsupported artifact version %d", ErrLoad, a.Version)
	}
	if len(a.Encodings) != len(a.Names) {
		return nil, fmt.Errorf("%w: %d encodings but %d names", ErrLoad, len(a.Encodings), len(a.Names))
	}

	if a.StudentIDs == nil {
		return New(legacyEntries(a), a.Model)
	}
	if len(a.StudentIDs) != len(a.Names) {
		return nil, fmt.Errorf("%w: %d names but %d student ids", ErrLoad, len(a.Names), len(a.StudentIDs))
	}

	entries := make([]Entry, len(a.Encodings))
	for i := range a.Encodings {
		entries[i] = Entry{ID: a.StudentIDs[i], Name: a.Names[i], Embedding: a.Encodings[i]}
	}
	return New(entries, a.Model)
}

// legacyEntries keys entries by name and keeps the first encoding of a
// repeated name.
func legacyEntries(a Artifact) []Entry {
	entries := make([]Entry, 0, len(a.Encodings))
	seen := make(map[string]bool, len(a.Names))
	skipped := 0
	for i, name := range a.Names {
		if seen[name] {
			skipped++
			continue
		}
		seen[name] = true
		entries = append(entries, Entry{ID: name, Name: name, Embedding: a.Encodings[i]})
	}
	if skipped > 0 {
		log.Printf("Warning: legacy gallery artifact repeats names, skipped %d extra encodings", skipped)
	}
	return entries
}

// ToArtifact converts the gallery back into parallel lists.
func (g *Gallery) ToArtifact() Artifact {
	a := Artifact{
		Version:    currentArtifactVersion,
		Model:      g.model,
		Encodings:  make([][]float32, len(g.entries)),
		Names:      make([]string, len(g.entries)),
		StudentIDs: make([]string, len(g.entries)),
	}
	for i, e := range g.entries {
		a.Encodings[i] = append([]float32(nil), e.Embedding...)
		a.Names[i] = e.Name
		a.StudentIDs[i] = e.ID
	}
	return a
}

// WriteArtifact writes the gallery to path as a JSON artifact.
func WriteArtifact(path string, g *Gallery) error {
	data, err := json.Marshal(g.ToArtifact())
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}
