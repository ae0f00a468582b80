package job

import (
	"os"
	"path/filepath"
)

// Artifact is a file-backed input or output unit.
type Artifact struct {
	// Path is the location of the bytes on disk.
	Path string `json:"path"`
	// MediaType is the declared media type.
	MediaType string `json:"media_type"`
	// Name is the original filename as supplied by the caller.
	Name string `json:"name"`
}

// NewArtifact describes the file at path. An empty name defaults to the
// path's base name, and the media type is inferred from the name.
func NewArtifact(path, name string) Artifact {
	if name == "" {
		name = filepath.Base(path)
	}
	return Artifact{Path: path, MediaType: MediaTypeFor(name), Name: name}
}

// Size returns the artifact's size in bytes.
func (a Artifact) Size() (int64, error) {
	fi, err := os.Stat(a.Path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Exists reports whether the artifact's file exists and is non-empty.
func (a Artifact) Exists() bool {
	fi, err := os.Stat(a.Path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}
