package whatsapp

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultArtifactPath is the page dump written when group creation fails
const DefaultArtifactPath = "debug_page_source.html"

// ArtifactWriter persists page markup for post-mortem inspection
type ArtifactWriter interface {
	Write(markup string) error
	String() string
}

// FileArtifact overwrites a single file on each failing run
type FileArtifact struct {
	Path string
}

func (a FileArtifact) Write(markup string) error {
	path := a.Path
	if path == "" {
		path = DefaultArtifactPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create artifact dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(markup), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (a FileArtifact) String() string {
	if a.Path == "" {
		return DefaultArtifactPath
	}
	return a.Path
}
